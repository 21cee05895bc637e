package scheduler

import (
	"context"
	"fmt"
	"time"

	"ruwave_bot/internal/logger"

	"github.com/robfig/cron/v3"
)

// Scheduler runs refresh jobs on a fixed interval. A job still running when its
// next tick arrives is skipped for that tick.
type Scheduler struct {
	cron *cron.Cron
	spec string
}

// New creates a scheduler firing every interval
func New(interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", interval)
	}

	l := cronLogger{}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l))),
		spec: "@every " + interval.String(),
	}, nil
}

// Add registers fn under name. Failures are logged and the job keeps its schedule.
func (s *Scheduler) Add(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if ctx.Err() != nil {
			return
		}
		if err := fn(ctx); err != nil {
			logger.Warn().Err(err).Str("job", name).Msg("⚠️ Scheduled job failed")
			return
		}
		logger.Debug().Str("job", name).Msg("⏰ Scheduled job done")
	})
	if err != nil {
		return fmt.Errorf("error scheduling %s: %w", name, err)
	}
	return nil
}

// Start runs the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs; the returned context is done once running jobs finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger routes cron's logging to zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
