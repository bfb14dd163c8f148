package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bebleo/checklist/internal/jobs"
)

// TokenPurger deletes expired password tokens.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeTokensJob runs the expired token cleanup on a schedule.
type PurgeTokensJob struct {
	Tokens  TokenPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPurgeTokensJob wires dependencies for the purge handler.
func NewPurgeTokensJob(tokens TokenPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeTokensJob {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return &PurgeTokensJob{Tokens: tokens, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypePurgeTokens tasks.
func (j *PurgeTokensJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Tokens == nil {
		return errors.New("purge tokens: handler not configured")
	}
	tracker := j.Metrics.Track(TaskTypePurgeTokens)
	removed, err := j.Tokens.PurgeExpired(ctx)
	if err != nil {
		j.Logger.Error("purge expired tokens", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Logger.Info("purged expired tokens", slog.Int64("removed", removed))
	return tracker.End(nil)
}
