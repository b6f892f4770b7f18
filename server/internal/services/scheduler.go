package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// ExpirySweeper periodically closes timed attempts nobody finished.
type ExpirySweeper struct {
	scheduler *gocron.Scheduler
	attempts  *AttemptService
	interval  time.Duration
	log       *zap.Logger
}

func NewExpirySweeper(attempts *AttemptService, interval time.Duration, log *zap.Logger) *ExpirySweeper {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &ExpirySweeper{
		scheduler: s,
		attempts:  attempts,
		interval:  interval,
		log:       log,
	}
}

// Start runs the sweep every interval without blocking.
func (s *ExpirySweeper) Start() error {
	s.log.Info("Starting expiry sweeper...", zap.Duration("interval", s.interval))
	if _, err := s.scheduler.Every(s.interval).Do(s.Sweep); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates the scheduler.
func (s *ExpirySweeper) Stop() {
	s.scheduler.Stop()
}

// Sweep runs one pass.
func (s *ExpirySweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	closed, err := s.attempts.CloseExpired(ctx)
	if err != nil {
		s.log.Error("Failed to sweep expired attempts", zap.Error(err))
		return
	}
	if closed > 0 {
		s.log.Info("Closed expired attempts", zap.Int("count", closed))
	} else {
		s.log.Debug("Running expiry sweep, nothing to close")
	}
}
