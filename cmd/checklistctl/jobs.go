package main

import (
	"errors"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/bebleo/checklist/jobs"
)

// NewJobsCmd creates the jobs command group for the mail and housekeeping queue.
func NewJobsCmd(deps Deps, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the background job queue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print counts for the default queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue := deps.OpenQueue(asynq.RedisClientOpt{Addr: flags.redisAddr})
			defer func() { _ = queue.Close() }()

			info, err := queue.GetQueueInfo(jobs.QueueDefault)
			if errors.Is(err, asynq.ErrQueueNotFound) {
				cmd.Printf("queue %s: empty\n", jobs.QueueDefault)
				return nil
			}
			if err != nil {
				return err
			}
			cmd.Printf("queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry, info.Archived)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge-tokens",
		Short: "Queue an expired token purge for the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue := deps.OpenQueue(asynq.RedisClientOpt{Addr: flags.redisAddr})
			defer func() { _ = queue.Close() }()

			info, err := queue.EnqueueContext(cmd.Context(), jobs.NewPurgeTokensTask(), asynq.MaxRetry(3))
			if err != nil {
				return err
			}
			cmd.Printf("queued %s (%s)\n", info.Type, info.ID)
			return nil
		},
	})
	return cmd
}
