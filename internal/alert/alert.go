// Package alert owns the monitor's up/down state and turns probe outcomes
// into incidents and owner notifications.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/domain"
	"github.com/hamed0406/botwatch/internal/metrics"
	"github.com/hamed0406/botwatch/internal/repo"
)

// Causes attached to a down outcome.
const (
	CauseNone       = ""
	CauseTimeout    = "timeout"
	CauseSendFailed = "send_failed"
)

type Transition int

const (
	None Transition = iota
	WentDown
	CameUp
)

func (t Transition) String() string {
	switch t {
	case WentDown:
		return "went_down"
	case CameUp:
		return "came_up"
	default:
		return "none"
	}
}

// Decide maps the previous status and a probe outcome to a transition.
// unknown -> up sets the status without a transition.
func Decide(prev domain.Status, up bool) Transition {
	switch {
	case !up && prev != domain.StatusDown:
		return WentDown
	case up && prev == domain.StatusDown:
		return CameUp
	default:
		return None
	}
}

// Notifier matches notify.Notifier.
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

type Alerter struct {
	incidents repo.IncidentStore
	notifier  Notifier
	botName   string
	log       *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	status    domain.Status
	downSince *time.Time
}

func New(incidents repo.IncidentStore, notifier Notifier, botName string, log *zap.Logger) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	if botName == "" {
		botName = "Maxy"
	}
	return &Alerter{
		incidents: incidents,
		notifier:  notifier,
		botName:   botName,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		status:    domain.StatusUnknown,
	}
}

// Restore rebuilds the state from storage: an open incident means down since
// its start, otherwise the last stored check decides up or down, otherwise
// unknown. A down check without an open incident has no known start.
func (a *Alerter) Restore(ctx context.Context, checks repo.CheckStore) error {
	inc, err := a.incidents.LatestIncident(ctx)
	if err != nil {
		return fmt.Errorf("restore: latest incident: %w", err)
	}
	last, err := checks.LastCheck(ctx)
	if err != nil {
		return fmt.Errorf("restore: last check: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case inc != nil && inc.Open():
		start := inc.Start
		a.status, a.downSince = domain.StatusDown, &start
	case last != nil && last.Up:
		a.status, a.downSince = domain.StatusUp, nil
	case last != nil:
		a.status, a.downSince = domain.StatusDown, nil
	default:
		a.status, a.downSince = domain.StatusUnknown, nil
	}
	a.log.Info("monitor_state_restored", zap.String("status", string(a.status)))
	return nil
}

// Status returns the current status and, when down, when it went down.
func (a *Alerter) Status() (domain.Status, *time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.downSince == nil {
		return a.status, nil
	}
	ds := *a.downSince
	return a.status, &ds
}

// Apply records a probe outcome. Decision, incident write and state update
// happen under one lock so overlapping probes produce one transition. If the
// incident write fails the state is left as it was.
func (a *Alerter) Apply(ctx context.Context, up bool, cause string) (Transition, error) {
	a.mu.Lock()
	tr := Decide(a.status, up)
	now := a.now()

	var msg string
	switch tr {
	case None:
		if up {
			a.status = domain.StatusUp
		}
		a.mu.Unlock()
		return None, nil

	case WentDown:
		inc, err := a.incidents.OpenIncident(ctx, now)
		if err != nil {
			a.mu.Unlock()
			return None, fmt.Errorf("open incident: %w", err)
		}
		a.status, a.downSince = domain.StatusDown, &inc.Start
		msg = fmt.Sprintf("❌ **%s is DOWN**", a.botName)
		if cause == CauseSendFailed {
			msg = fmt.Sprintf("❌ **%s is DOWN (error sending test message)**", a.botName)
		}
		a.log.Warn("incident_opened", zap.Int64("incident_id", inc.ID), zap.String("cause", cause))

	case CameUp:
		inc, err := a.incidents.CloseLatestIncident(ctx, now)
		if err != nil {
			a.mu.Unlock()
			return None, fmt.Errorf("close incident: %w", err)
		}
		start, end := now, now
		if a.downSince != nil {
			start = *a.downSince
		}
		if inc != nil {
			start, end = inc.Start, *inc.End
		} else {
			a.log.Warn("incident_close_missing")
		}
		secs := int64(end.Sub(start) / time.Second)
		a.status, a.downSince = domain.StatusUp, nil
		msg = fmt.Sprintf("✅ **%s is BACK UP** (downtime: %ds)", a.botName, secs)
		a.log.Info("incident_closed", zap.Int64("downtime_s", secs))
	}
	a.mu.Unlock()

	metrics.IncTransition(tr.String())
	a.notify(ctx, msg)
	return tr, nil
}

func (a *Alerter) notify(ctx context.Context, msg string) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Send(ctx, msg, ""); err != nil {
		metrics.IncNotify(metrics.ResultError)
		a.log.Warn("notify_failed", zap.String("message", msg), zap.Error(err))
		return
	}
	metrics.IncNotify(metrics.ResultOK)
}
