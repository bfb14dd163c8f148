package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	databaseURL string
	redisAddr   string
}

// NewRootCmd creates the root command for checklistctl.
func NewRootCmd(deps Deps) *cobra.Command {
	deps = deps.withDefaults()
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:          "checklistctl",
		Short:        "Manage the checklist database and job queue",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.databaseURL, "database-url", os.Getenv("PG_DSN"), "PostgreSQL connection URL (defaults to PG_DSN)")
	cmd.PersistentFlags().StringVar(&flags.redisAddr, "redis-addr", envOr("REDIS_ADDR", "127.0.0.1:6379"), "Redis address of the job queue (defaults to REDIS_ADDR)")

	cmd.AddCommand(NewMigrateCmd(deps, flags))
	cmd.AddCommand(NewInitDBCmd(deps, flags))
	cmd.AddCommand(NewUsersCmd(deps, flags))
	cmd.AddCommand(NewTokensCmd(deps, flags))
	cmd.AddCommand(NewJobsCmd(deps, flags))
	return cmd
}

func (f *globalFlags) requireDatabaseURL() (string, error) {
	if f.databaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("--database-url or PG_DSN is required")
	}
	return f.databaseURL, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
