package processor

import (
	"context"
	"errors"
	"time"

	"usdc-vault-custody/internal/models"

	"go.uber.org/zap"
)

const defaultRunTimeout = 60 * time.Second

type runner interface {
	Run(ctx context.Context) (*models.ProcessReport, error)
}

// Scheduler triggers processor runs on a fixed interval.
type Scheduler struct {
	processor  runner
	interval   time.Duration
	runTimeout time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	started  bool
}

func NewScheduler(processor runner, interval, runTimeout time.Duration) *Scheduler {
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &Scheduler{
		processor:  processor,
		interval:   interval,
		runTimeout: runTimeout,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start begins the run loop. A non-positive interval leaves the scheduler idle.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		zap.L().Info("Withdrawal scheduler disabled")
		return
	}
	s.started = true
	go s.loop(ctx)
	zap.L().Info("Withdrawal scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("run_timeout", s.runTimeout))
}

// Stop waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	close(s.stopChan)
	<-s.doneChan
	zap.L().Info("Withdrawal scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	report, err := s.processor.Run(runCtx)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			zap.L().Debug("Skipping scheduled run, previous run still active")
			return
		}
		zap.L().Error("Scheduled withdrawal run failed", zap.Error(err))
		return
	}
	if report.Total > 0 {
		zap.L().Info("Scheduled withdrawal run",
			zap.Int("total", report.Total),
			zap.Int("completed", report.Processed))
	}
}
