package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/alert"
	"github.com/hamed0406/botwatch/internal/chat"
	"github.com/hamed0406/botwatch/internal/correlate"
	"github.com/hamed0406/botwatch/internal/domain"
	"github.com/hamed0406/botwatch/internal/hub"
	"github.com/hamed0406/botwatch/internal/metrics"
	"github.com/hamed0406/botwatch/internal/repo"
)

// Policy applies a probe outcome to the monitor state.
type Policy interface {
	Apply(ctx context.Context, up bool, cause string) (alert.Transition, error)
}

// Broadcaster receives live events; *hub.Hub satisfies it.
type Broadcaster interface {
	Broadcast(hub.Event)
}

// CheckEvent is the payload of a check.completed event.
type CheckEvent struct {
	Up         bool      `json:"up"`
	Cause      string    `json:"cause,omitempty"`
	Transition string    `json:"transition"`
	At         time.Time `json:"at"`
	DurationMS int64     `json:"duration_ms"`
}

// Executor runs one probe cycle: send, wait for the reply, record, apply.
type Executor struct {
	Logger      *zap.Logger
	Settings    repo.SettingsStore
	Checks      repo.CheckStore
	Sender      chat.Sender
	Replies     *correlate.Correlator
	Policy      Policy
	Events      Broadcaster
	TargetID    string
	SendTimeout time.Duration

	now func() time.Time
}

func NewExecutor(
	logger *zap.Logger,
	store repo.Store,
	sender chat.Sender,
	replies *correlate.Correlator,
	policy Policy,
	targetID string,
	sendTimeout time.Duration,
) *Executor {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Executor{
		Logger:      logger,
		Settings:    store,
		Checks:      store,
		Sender:      sender,
		Replies:     replies,
		Policy:      policy,
		TargetID:    targetID,
		SendTimeout: sendTimeout,
	}
}

func (e *Executor) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now().UTC()
}

// RunCheck runs one cycle and reports whether the target answered. Once
// started the cycle is not cancelled by ctx: it always finishes and, when a
// channel is configured, appends exactly one check record. Store failures are
// logged and returned alongside the outcome.
func (e *Executor) RunCheck(ctx context.Context) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	st, err := e.Settings.GetSettings(ctx)
	if err != nil {
		e.Logger.Error("check_settings_error", zap.Error(err))
		return false, fmt.Errorf("read settings: %w", err)
	}
	if st.ChannelID == "" {
		e.Logger.Info("check_skipped_no_channel")
		return false, nil
	}
	timeout := st.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// subscribe before sending so a fast reply is not missed
	pending := e.Replies.Arm(e.TargetID, st.ResponseMatch)

	sendCtx, cancel := context.WithTimeout(ctx, e.SendTimeout)
	err = e.Sender.SendToChannel(sendCtx, st.ChannelID, st.Mode.Compose(st.Command, e.TargetID))
	cancel()

	var (
		up    bool
		cause string
	)
	if err != nil {
		pending.Cancel()
		cause = alert.CauseSendFailed
		e.Logger.Warn("probe_send_failed", zap.String("channel_id", st.ChannelID), zap.Error(err))
	} else {
		up = pending.Wait(ctx, timeout)
		if !up {
			cause = alert.CauseTimeout
		}
	}

	at := e.clock()
	var errs []error
	if err := e.Checks.AppendCheck(ctx, domain.CheckRecord{Timestamp: at, Up: up}); err != nil {
		e.Logger.Error("check_append_error", zap.Error(err))
		errs = append(errs, fmt.Errorf("append check: %w", err))
	}

	tr, err := e.Policy.Apply(ctx, up, cause)
	if err != nil {
		e.Logger.Error("check_transition_error", zap.Error(err))
		errs = append(errs, fmt.Errorf("apply transition: %w", err))
	}

	elapsed := time.Since(started)
	metrics.ObserveCheck(up, cause, elapsed)
	e.Logger.Info("check_completed",
		zap.Bool("up", up),
		zap.String("cause", cause),
		zap.String("transition", tr.String()),
		zap.Duration("elapsed", elapsed),
	)
	if e.Events != nil {
		e.Events.Broadcast(hub.Event{
			Type: hub.EventCheckCompleted,
			At:   at,
			Payload: CheckEvent{
				Up:         up,
				Cause:      cause,
				Transition: tr.String(),
				At:         at,
				DurationMS: elapsed.Milliseconds(),
			},
		})
	}
	return up, errors.Join(errs...)
}
