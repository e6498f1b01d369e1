package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProbeMode controls how the probe message body is built.
type ProbeMode string

const (
	ModePrefix  ProbeMode = "prefix"
	ModeMention ProbeMode = "mention"
	ModeRaw     ProbeMode = "raw"
)

// Compose builds the probe body sent into the channel. Unknown modes send the
// raw command.
func (m ProbeMode) Compose(command, targetID string) string {
	switch m {
	case ModeMention:
		return fmt.Sprintf("<@%s> %s", targetID, command)
	default:
		return command
	}
}

var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the singleton probe configuration. Always re-read from the store;
// operators may change it mid-run.
type Settings struct {
	ChannelID         string        `json:"channel_id"`
	Mode              ProbeMode     `json:"mode"`
	Command           string        `json:"command"`
	Interval          time.Duration `json:"-"`
	Timeout           time.Duration `json:"-"`
	ResponseMatch     string        `json:"response_match"`
	StatusOverride    *string       `json:"status_override"`
	KeepaliveURL      string        `json:"keepalive_url,omitempty"`
	KeepaliveInterval time.Duration `json:"-"`
}

func DefaultSettings() Settings {
	return Settings{
		Mode:              ModePrefix,
		Command:           ".ping",
		Interval:          150 * time.Second,
		Timeout:           5 * time.Second,
		ResponseMatch:     "pong",
		KeepaliveInterval: 300 * time.Second,
	}
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	ChannelID         *string
	Mode              *ProbeMode
	Command           *string
	Interval          *time.Duration
	Timeout           *time.Duration
	ResponseMatch     *string
	StatusOverride    *string
	ClearOverride     bool
	KeepaliveURL      *string
	KeepaliveInterval *time.Duration
	ClearKeepalive    bool
}

// Apply returns a copy of s with p applied. The result is not validated.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.ChannelID != nil {
		s.ChannelID = strings.TrimSpace(*p.ChannelID)
	}
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	if p.Command != nil {
		s.Command = *p.Command
	}
	if p.Interval != nil {
		s.Interval = *p.Interval
	}
	if p.Timeout != nil {
		s.Timeout = *p.Timeout
	}
	if p.ResponseMatch != nil {
		s.ResponseMatch = *p.ResponseMatch
	}
	if p.ClearOverride {
		s.StatusOverride = nil
	} else if p.StatusOverride != nil {
		v := *p.StatusOverride
		s.StatusOverride = &v
	}
	if p.ClearKeepalive {
		s.KeepaliveURL = ""
	} else if p.KeepaliveURL != nil {
		s.KeepaliveURL = strings.TrimSpace(*p.KeepaliveURL)
	}
	if p.KeepaliveInterval != nil {
		s.KeepaliveInterval = *p.KeepaliveInterval
	}
	if s.Mode == "" {
		s.Mode = ModePrefix
	}
	return s
}

func (s Settings) Validate() error {
	switch s.Mode {
	case ModePrefix, ModeMention, ModeRaw:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s.Mode)
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("%w: command is empty", ErrInvalidSettings)
	}
	if s.ResponseMatch == "" {
		return fmt.Errorf("%w: response match is empty", ErrInvalidSettings)
	}
	if s.Interval < time.Second {
		return fmt.Errorf("%w: interval must be at least 1s", ErrInvalidSettings)
	}
	if s.Timeout < 100*time.Millisecond {
		return fmt.Errorf("%w: timeout must be at least 100ms", ErrInvalidSettings)
	}
	if s.KeepaliveInterval < 0 {
		return fmt.Errorf("%w: keepalive interval is negative", ErrInvalidSettings)
	}
	return nil
}

// CheckRecord is one completed probe cycle.
type CheckRecord struct {
	Timestamp time.Time `json:"ts"`
	Up        bool      `json:"up"`
}

// Incident is a downtime span; End is nil while it is ongoing.
type Incident struct {
	ID    int64      `json:"id"`
	Start time.Time  `json:"start_ts"`
	End   *time.Time `json:"end_ts"`
}

func (i Incident) Open() bool { return i.End == nil }

// Duration is the span length; ongoing incidents are measured up to now.
func (i Incident) Duration(now time.Time) time.Duration {
	if i.End != nil {
		return i.End.Sub(i.Start)
	}
	return now.Sub(i.Start)
}

// DaySummary is one calendar day (UTC) of the daily uptime view.
type DaySummary struct {
	Day           string  `json:"day"`
	UptimePercent float64 `json:"uptime"`
	Checks        int     `json:"checks"`
}
