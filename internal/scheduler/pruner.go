package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/repo"
)

// Pruner deletes check records older than Retention.
type Pruner struct {
	Logger    *zap.Logger
	Checks    repo.CheckStore
	Retention time.Duration
	Every     time.Duration

	now func() time.Time
}

func NewPruner(logger *zap.Logger, checks repo.CheckStore, retentionDays int) *Pruner {
	return &Pruner{
		Logger:    logger,
		Checks:    checks,
		Retention: time.Duration(retentionDays) * 24 * time.Hour,
		Every:     time.Hour,
	}
}

// Run prunes immediately and then every tick until ctx is cancelled.
// A zero retention disables pruning.
func (p *Pruner) Run(ctx context.Context) {
	if p.Retention <= 0 {
		p.Logger.Info("pruner_disabled")
		return
	}
	every := p.Every
	if every <= 0 {
		every = time.Hour
	}
	t := time.NewTicker(every)
	defer t.Stop()

	p.pruneOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			p.Logger.Info("pruner_stopped")
			return
		case <-t.C:
			p.pruneOnce(ctx)
		}
	}
}

func (p *Pruner) pruneOnce(ctx context.Context) {
	now := time.Now().UTC()
	if p.now != nil {
		now = p.now()
	}
	cutoff := now.Add(-p.Retention)
	n, err := p.Checks.PruneChecks(ctx, cutoff)
	if err != nil {
		p.Logger.Warn("pruner_error", zap.Error(err))
		return
	}
	if n > 0 {
		p.Logger.Info("pruner_deleted", zap.Int64("rows", n), zap.Time("before", cutoff))
	}
}
