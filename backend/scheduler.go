package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// newScheduler registers the daily batch match and the nightly status reset.
// Specs use the six-field format with seconds.
func newScheduler(ctx context.Context, st store, matchSpec, resetSpec string) (*cron.Cron, error) {
	cl := cronLogger{log: logger.Sugar()}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(matchSpec, func() {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		n, err := runDailyMatch(jobCtx, st)
		if err != nil {
			logger.Error("daily match job", zap.Error(err))
			return
		}
		logger.Info("daily match job done", zap.Int("matched", n))
	}); err != nil {
		return nil, fmt.Errorf("match cron %q: %w", matchSpec, err)
	}

	if _, err := c.AddFunc(resetSpec, func() {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		n, err := resetMatched(jobCtx, st)
		if err != nil {
			logger.Error("reset job", zap.Error(err))
			return
		}
		logger.Info("reset job done", zap.Int64("reset", n))
	}); err != nil {
		return nil, fmt.Errorf("reset cron %q: %w", resetSpec, err)
	}
	return c, nil
}
