package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// job is a maintenance task run on a cron schedule.
type job struct {
	name     string
	schedule string
	timeout  time.Duration
	run      func(ctx context.Context) error
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{logger.Error(err)}, keysAndValues...)...)
}

// newScheduler registers jobs on a cron that skips a run while the previous
// one is still going and survives panics in a job.
func newScheduler(ctx context.Context, log *slog.Logger, jobs ...job) (*cron.Cron, error) {
	log = log.With(logger.Component("cron"))
	c := cron.New(
		cron.WithLogger(cronLogger{log: log}),
		cron.WithChain(cron.Recover(cronLogger{log: log}), cron.SkipIfStillRunning(cronLogger{log: log})),
	)
	for _, j := range jobs {
		if j.schedule == "" || j.schedule == "off" {
			continue
		}
		if _, err := c.AddFunc(j.schedule, func() {
			jctx, cancel := context.WithTimeout(ctx, j.timeout)
			defer cancel()
			start := time.Now()
			if err := j.run(jctx); err != nil {
				log.LogAttrs(jctx, slog.LevelError, "maintenance job failed",
					slog.String("job", j.name), logger.Duration(time.Since(start)), logger.Error(err))
				return
			}
			log.LogAttrs(jctx, slog.LevelDebug, "maintenance job finished",
				slog.String("job", j.name), logger.Duration(time.Since(start)))
		}); err != nil {
			return nil, fmt.Errorf("job %s: schedule %q: %w", j.name, j.schedule, err)
		}
	}
	return c, nil
}
