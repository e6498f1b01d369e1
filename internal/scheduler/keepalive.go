package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/metrics"
	"github.com/hamed0406/botwatch/internal/probe"
	"github.com/hamed0406/botwatch/internal/repo"
)

const (
	minKeepaliveInterval      = 60 * time.Second
	fallbackKeepaliveInterval = 300 * time.Second
)

// Keepalive GETs the configured URL periodically to keep a host awake.
type Keepalive struct {
	Logger   *zap.Logger
	Settings repo.SettingsStore
	Checker  probe.Checker

	timer Timer

	mu   sync.Mutex
	base context.Context
}

func NewKeepalive(logger *zap.Logger, settings repo.SettingsStore, checker probe.Checker) *Keepalive {
	return &Keepalive{Logger: logger, Settings: settings, Checker: checker}
}

func (k *Keepalive) Start(ctx context.Context) error {
	k.mu.Lock()
	k.base = ctx
	k.mu.Unlock()
	return k.Restart(ctx)
}

// Restart re-reads the URL and interval. An empty URL stops the loop.
func (k *Keepalive) Restart(ctx context.Context) error {
	k.mu.Lock()
	base := k.base
	k.mu.Unlock()
	if base == nil {
		return fmt.Errorf("keepalive not started")
	}

	st, err := k.Settings.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("read keepalive settings: %w", err)
	}
	if st.KeepaliveURL == "" {
		k.timer.Disarm()
		k.Logger.Info("keepalive_disabled")
		return nil
	}
	interval := st.KeepaliveInterval
	if interval < minKeepaliveInterval {
		interval = fallbackKeepaliveInterval
	}
	target := st.KeepaliveURL
	k.timer.Arm(base, interval, func(ctx context.Context) { k.ping(ctx, target) })
	k.Logger.Info("keepalive_started", zap.String("url", target), zap.Duration("interval", interval))
	return nil
}

func (k *Keepalive) Stop() { k.timer.Stop() }

func (k *Keepalive) ping(ctx context.Context, target string) {
	res := k.Checker.Check(ctx, target)
	if res.Success {
		metrics.IncKeepalive(metrics.ResultOK)
		k.Logger.Debug("keepalive_ok",
			zap.String("url", target),
			zap.Int("status", res.StatusCode),
			zap.Float64("latency_ms", res.LatencyMS),
		)
		return
	}
	metrics.IncKeepalive(metrics.ResultError)
	dns := probe.CheckDNS(ctx, probe.HostOf(target))
	k.Logger.Warn("keepalive_failed",
		zap.String("url", target),
		zap.Int("status", res.StatusCode),
		zap.String("reason", res.Message),
		zap.String("dns_class", dns.Class),
	)
}
