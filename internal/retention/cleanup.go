// Package retention schedules deletion of fetch logs past their retention.
package retention

import (
	"context"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cleaner deletes fetch logs older than the given number of days
type Cleaner interface {
	CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error)
}

type Job struct {
	cron    *cronlib.Cron
	cleaner Cleaner
	days    int
	timeout time.Duration
	logger  *zap.Logger
}

// New parses schedule (standard five-field expression or a descriptor such as
// "@daily") in UTC. The job does not run until Start.
func New(cleaner Cleaner, schedule string, days int, logger *zap.Logger) (*Job, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parser := cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)
	j := &Job{
		cron: cronlib.New(
			cronlib.WithLocation(time.UTC),
			cronlib.WithParser(parser),
		),
		cleaner: cleaner,
		days:    days,
		timeout: time.Minute,
		logger:  logger,
	}

	if _, err := j.cron.AddFunc(schedule, j.Run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	return j, nil
}

func (j *Job) Start() {
	j.cron.Start()
}

// Stop waits for a running cleanup to finish
func (j *Job) Stop() {
	<-j.cron.Stop().Done()
}

// Run deletes expired logs once
func (j *Job) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	deleted, err := j.cleaner.CleanupOldLogs(ctx, j.days)
	if err != nil {
		j.logger.Warn("fetch log cleanup failed", zap.Error(err))
		return
	}
	j.logger.Info("fetch log cleanup finished",
		zap.Int64("deleted", deleted),
		zap.Int("retention_days", j.days),
	)
}
