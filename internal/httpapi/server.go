package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/domain"
	apimw "github.com/hamed0406/botwatch/internal/httpapi/middleware"
	"github.com/hamed0406/botwatch/internal/hub"
	"github.com/hamed0406/botwatch/internal/metrics"
	"github.com/hamed0406/botwatch/internal/repo"
	"github.com/hamed0406/botwatch/internal/uptime"
)

// CheckRunner triggers a probe cycle out of band.
type CheckRunner interface {
	RunCheck(ctx context.Context) (bool, error)
}

// Restarter re-reads settings and re-arms a periodic loop.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Broadcaster fans events out to live dashboard clients.
type Broadcaster interface {
	Broadcast(hub.Event)
}

type Server struct {
	Logger     *zap.Logger
	Settings   repo.SettingsStore
	Views      *uptime.Service
	Runner     CheckRunner
	Restarters []Restarter
	Events     Broadcaster
	Live       http.HandlerFunc
	BotName    string
}

func NewServer(l *zap.Logger, settings repo.SettingsStore, views *uptime.Service, runner CheckRunner, botName string) *Server {
	return &Server{Logger: l, Settings: settings, Views: views, Runner: runner, BotName: botName}
}

func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(apimw.Instrument)

	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	ok := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
	r.Get("/healthz", ok)
	r.Get("/_health", ok)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Group(func(read chi.Router) {
			read.Use(apimw.RateLimit(pubRPM, pubBurst))
			read.Use(apimw.RequireAny(keys))
			read.Get("/status", s.handleStatus)
			read.Get("/uptime", s.handleUptime)
			read.Get("/daily", s.handleDaily)
			read.Get("/incidents/last", s.handleLastIncident)
			read.Get("/health-summary", s.handleHealthSummary)
			if s.Live != nil {
				read.Get("/ws", s.Live)
			}
		})
		api.Group(func(adm chi.Router) {
			adm.Use(apimw.RateLimit(admRPM, admBurst))
			adm.Use(apimw.RequireAdmin(keys))
			adm.Get("/settings", s.handleGetSettings)
			adm.Put("/settings", s.handlePutSettings)
			adm.Post("/override", s.handleOverride)
			adm.Post("/run-check", s.handleRunCheck)
		})
	})

	return r
}

func (s *Server) broadcast(kind string, payload any) {
	if s.Events == nil {
		return
	}
	s.Events.Broadcast(hub.Event{Type: kind, At: time.Now().UTC(), Payload: payload})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// settingsView is the wire form of domain.Settings with durations flattened.
type settingsView struct {
	domain.Settings
	IntervalMS         int64 `json:"interval_ms"`
	TimeoutMS          int64 `json:"timeout_ms"`
	KeepaliveIntervalS int64 `json:"keepalive_interval_s"`
}

func viewOf(st domain.Settings) settingsView {
	return settingsView{
		Settings:           st,
		IntervalMS:         st.Interval.Milliseconds(),
		TimeoutMS:          st.Timeout.Milliseconds(),
		KeepaliveIntervalS: int64(st.KeepaliveInterval / time.Second),
	}
}
