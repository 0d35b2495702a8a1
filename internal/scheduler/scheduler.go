// Package scheduler runs periodic maintenance, currently the expired challenge sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper removes lapsed verification entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler wraps a cron runner. Jobs run on their own goroutines; a job still
// running when its next tick comes is skipped, and a panicking job is logged.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func New(log *zap.Logger) *Scheduler {
	cl := cronLogger{log.Named("cron").Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
	}
}

// AddSweep schedules s every interval. Each run gets a context derived from ctx,
// bounded by the interval, so a stuck backend cannot pile runs up.
func (s *Scheduler) AddSweep(ctx context.Context, every time.Duration, sw Sweeper) {
	s.cron.Schedule(cron.Every(every), cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(ctx, every)
		defer cancel()
		n, err := sw.Sweep(runCtx)
		if err != nil {
			s.log.Error("sweep expired verifications", zap.Int("removed", n), zap.Error(err))
			return
		}
		if n > 0 {
			s.log.Info("swept expired verifications", zap.Int("removed", n))
		}
	}))
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
