package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/alert"
	"github.com/hamed0406/botwatch/internal/chat"
	"github.com/hamed0406/botwatch/internal/chat/gateway"
	"github.com/hamed0406/botwatch/internal/chatcmd"
	"github.com/hamed0406/botwatch/internal/config"
	"github.com/hamed0406/botwatch/internal/correlate"
	"github.com/hamed0406/botwatch/internal/httpapi"
	apimw "github.com/hamed0406/botwatch/internal/httpapi/middleware"
	"github.com/hamed0406/botwatch/internal/hub"
	"github.com/hamed0406/botwatch/internal/logging"
	"github.com/hamed0406/botwatch/internal/metrics"
	"github.com/hamed0406/botwatch/internal/notify"
	"github.com/hamed0406/botwatch/internal/probe"
	"github.com/hamed0406/botwatch/internal/repo"
	"github.com/hamed0406/botwatch/internal/repo/memory"
	"github.com/hamed0406/botwatch/internal/repo/postgres"
	"github.com/hamed0406/botwatch/internal/repo/sqldb"
	"github.com/hamed0406/botwatch/internal/scheduler"
	"github.com/hamed0406/botwatch/internal/uptime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.String("driver", cfg.Driver()), zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store_close_failed", zap.Error(err))
		}
	}()
	metrics.Init(db, logger)

	// chat: gateway feeds the bus; correlator and commands read from it
	bus := chat.NewBus(logger)
	gw := gateway.New(gateway.Config{
		URL:         cfg.GatewayURL,
		Token:       cfg.MonitorBotToken,
		SendTimeout: cfg.SendTimeout,
	}, bus, logger.Named("gateway"))
	go func() { _ = gw.Run(ctx) }()

	var notifiers notify.Multi
	if d := notify.NewDirect(gw, cfg.OwnerUserID); d != nil {
		notifiers = append(notifiers, d)
	}
	if s := notify.NewSlack(cfg.SlackWebhookURL); s != nil {
		notifiers = append(notifiers, s)
	}

	alerter := alert.New(store, notifiers, cfg.TargetBotName, logger.Named("alert"))
	if err := alerter.Restore(ctx, store); err != nil {
		logger.Warn("state_restore_failed", zap.Error(err))
	}
	st, _ := alerter.Status()
	logger.Info("state_restored", zap.String("status", string(st)))

	events := hub.New(cfg.AllowedOrigins, logger.Named("hub"))
	go events.Run(ctx)

	replies := correlate.New(bus, logger.Named("correlate"))
	exec := probe.NewExecutor(logger.Named("probe"), store, gw, replies, alerter, cfg.MaxyBotID, cfg.SendTimeout)
	exec.Events = events

	sched := scheduler.New(logger.Named("scheduler"), store, exec)
	keepalive := scheduler.NewKeepalive(logger.Named("keepalive"), store, &probe.RetryChecker{
		Inner:    probe.NewHTTPChecker(cfg.HTTPTimeout),
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoff,
	})
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler_start_failed", zap.Error(err))
	}
	if err := keepalive.Start(ctx); err != nil {
		logger.Error("keepalive_start_failed", zap.Error(err))
	}
	go scheduler.NewPruner(logger.Named("pruner"), store, cfg.RetentionDays).Run(ctx)

	views := uptime.NewService(store)
	go chatcmd.New(bus, gw, views, cfg.TargetBotName, logger.Named("chatcmd")).Run(ctx)

	api := httpapi.NewServer(logger, store, views, exec, cfg.TargetBotName)
	api.Restarters = []httpapi.Restarter{sched, keepalive}
	api.Events = events
	api.Live = events.HandleConnect

	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("store", cfg.Driver()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", zap.Error(err))
	}
	sched.Stop()
	keepalive.Stop()
	logger.Info("shutdown_complete")
}

// openStore picks the backend named by cfg.Driver. The returned *sql.DB feeds
// the metrics gauges and is nil for the memory store.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Store, *sql.DB, error) {
	switch cfg.Driver() {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, log.Named("postgres"))
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.DB(), nil
	case config.DriverMySQL:
		s, err := sqldb.OpenMySQL(ctx, cfg.MySQLDSN, log.Named("mysql"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.DB(), nil
	case config.DriverSQLite:
		s, err := sqldb.OpenSQLite(ctx, cfg.SQLitePath, log.Named("sqlite"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.DB(), nil
	case config.DriverMemory:
		log.Warn("store_in_memory", zap.String("note", "checks and incidents are lost on restart"))
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver())
	}
}
