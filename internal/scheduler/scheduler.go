package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/repo"
)

const defaultInterval = 150 * time.Second

// Runner runs one probe cycle; *probe.Executor satisfies it.
type Runner interface {
	RunCheck(ctx context.Context) (bool, error)
}

// Scheduler runs probe cycles at the interval stored in settings.
type Scheduler struct {
	Logger   *zap.Logger
	Settings repo.SettingsStore
	Runner   Runner

	timer Timer

	mu   sync.Mutex
	base context.Context
}

func New(logger *zap.Logger, settings repo.SettingsStore, runner Runner) *Scheduler {
	return &Scheduler{Logger: logger, Settings: settings, Runner: runner}
}

// Start arms the loop under ctx, which bounds every later Restart as well.
// A check fires immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	return s.arm(ctx, "scheduler_started")
}

// Restart re-reads the interval and replaces the running loop. ctx is only
// used to read settings; the loop keeps running under Start's context.
func (s *Scheduler) Restart(ctx context.Context) error {
	return s.arm(ctx, "scheduler_restarted")
}

func (s *Scheduler) Stop() {
	s.timer.Stop()
	s.Logger.Info("scheduler_stopped")
}

func (s *Scheduler) arm(ctx context.Context, event string) error {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	if base == nil {
		return fmt.Errorf("scheduler not started")
	}

	st, err := s.Settings.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("read interval: %w", err)
	}
	interval := st.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	s.timer.Arm(base, interval, s.cycle)
	s.Logger.Info(event, zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) cycle(ctx context.Context) {
	if _, err := s.Runner.RunCheck(ctx); err != nil {
		// the next tick still fires
		s.Logger.Warn("scheduler_cycle_error", zap.Error(err))
	}
}
