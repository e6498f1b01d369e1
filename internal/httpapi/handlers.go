package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/domain"
	"github.com/hamed0406/botwatch/internal/hub"
)

const maxUptimeHours = 24 * 365

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Views.CurrentStatus(r.Context())
	if err != nil {
		s.Logger.Error("status_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": st})
}

// handleUptime returns one window when ?hours= is given, else 24h/7d/30d.
func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 1 || hours > maxUptimeHours {
			writeError(w, http.StatusBadRequest, "hours must be between 1 and 8760")
			return
		}
		pct, err := s.Views.RollingUptime(r.Context(), hours)
		if err != nil {
			s.Logger.Error("uptime_error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "uptime error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"hours": hours, "uptime": pct})
		return
	}
	sum, err := s.Views.Summary(r.Context())
	if err != nil {
		s.Logger.Error("uptime_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "uptime error")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	days, err := s.Views.DailySummary(r.Context())
	if err != nil {
		s.Logger.Error("daily_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "daily error")
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleLastIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.Views.LastIncident(r.Context())
	if err != nil {
		s.Logger.Error("incident_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "incident error")
		return
	}
	// null when nothing has gone wrong yet
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleHealthSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Views.Summary(r.Context())
	if err != nil {
		s.Logger.Error("health_summary_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "health summary error")
		return
	}
	text, err := s.Views.HealthText(r.Context(), s.BotName)
	if err != nil {
		s.Logger.Error("health_summary_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "health summary error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": sum, "text": text})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.Settings.GetSettings(r.Context())
	if err != nil {
		s.Logger.Error("settings_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "settings error")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

type settingsPayload struct {
	ChannelID          *string `json:"channel_id"`
	Mode               *string `json:"mode"`
	Command            *string `json:"command"`
	IntervalMS         *int64  `json:"interval_ms"`
	TimeoutMS          *int64  `json:"timeout_ms"`
	ResponseMatch      *string `json:"response_match"`
	KeepaliveURL       *string `json:"keepalive_url"`
	KeepaliveIntervalS *int64  `json:"keepalive_interval_s"`
}

func (p settingsPayload) patch() domain.SettingsPatch {
	var out domain.SettingsPatch
	out.ChannelID = p.ChannelID
	out.Command = p.Command
	out.ResponseMatch = p.ResponseMatch
	if p.Mode != nil {
		m := domain.ProbeMode(strings.ToLower(strings.TrimSpace(*p.Mode)))
		out.Mode = &m
	}
	if p.IntervalMS != nil {
		d := time.Duration(*p.IntervalMS) * time.Millisecond
		out.Interval = &d
	}
	if p.TimeoutMS != nil {
		d := time.Duration(*p.TimeoutMS) * time.Millisecond
		out.Timeout = &d
	}
	if p.KeepaliveURL != nil {
		if strings.TrimSpace(*p.KeepaliveURL) == "" {
			out.ClearKeepalive = true
		} else {
			out.KeepaliveURL = p.KeepaliveURL
		}
	}
	if p.KeepaliveIntervalS != nil {
		d := time.Duration(*p.KeepaliveIntervalS) * time.Second
		out.KeepaliveInterval = &d
	}
	return out
}

// handlePutSettings saves a partial update, then re-arms the periodic loops so
// the new interval applies and an immediate check runs.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var p settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	st, err := s.Settings.UpdateSettings(r.Context(), p.patch())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.Logger.Error("settings_update_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	s.Logger.Info("settings_updated",
		zap.String("channel_id", st.ChannelID),
		zap.String("mode", string(st.Mode)),
		zap.Duration("interval", st.Interval),
		zap.Duration("timeout", st.Timeout),
	)

	for _, rs := range s.Restarters {
		if err := rs.Restart(r.Context()); err != nil {
			s.Logger.Warn("restart_failed", zap.Error(err))
		}
	}

	v := viewOf(st)
	s.broadcast(hub.EventSettingsSaved, v)
	writeJSON(w, http.StatusOK, v)
}

type overridePayload struct {
	Status *string `json:"status"`
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	var p overridePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	var patch domain.SettingsPatch
	if p.Status == nil || strings.TrimSpace(*p.Status) == "" {
		patch.ClearOverride = true
	} else {
		v := strings.TrimSpace(*p.Status)
		patch.StatusOverride = &v
	}
	if _, err := s.Settings.UpdateSettings(r.Context(), patch); err != nil {
		s.Logger.Error("override_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save override")
		return
	}

	st, err := s.Views.CurrentStatus(r.Context())
	if err != nil {
		s.Logger.Error("status_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status error")
		return
	}
	s.Logger.Info("status_override", zap.Bool("cleared", patch.ClearOverride), zap.String("status", st))
	s.broadcast(hub.EventOverrideSet, map[string]any{"status": st, "override": patch.StatusOverride})
	writeJSON(w, http.StatusOK, map[string]string{"status": st})
}

type runCheckResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	up, err := s.Runner.RunCheck(r.Context())
	if err != nil {
		s.Logger.Error("run_check_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, runCheckResponse{OK: false, Message: "error"})
		return
	}
	msg := "No response (DOWN)"
	if up {
		msg = s.BotName + " responded (UP)"
	}
	writeJSON(w, http.StatusOK, runCheckResponse{OK: up, Message: msg})
}
