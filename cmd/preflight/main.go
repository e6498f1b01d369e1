// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/config"
	"github.com/hamed0406/botwatch/internal/probe"
	"github.com/hamed0406/botwatch/internal/repo"
	"github.com/hamed0406/botwatch/internal/repo/postgres"
	"github.com/hamed0406/botwatch/internal/repo/sqldb"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load()
	if err != nil {
		fail(err.Error())
	}
	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintln(os.Stderr, "✖", line)
		}
		os.Exit(1)
	}
	ok("required settings present")

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty; admin routes are open to anyone.")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) > 0 {
		warn("PUBLIC_API_KEYS is empty; read routes need an admin key.")
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS is empty; every origin is allowed.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	ok("API_ADDR=" + cfg.Addr)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	host := probe.HostOf(cfg.GatewayURL)
	dns := probe.CheckDNS(ctx, host)
	if dns.Class != probe.DNSResolves {
		fail(fmt.Sprintf("gateway host %s does not resolve (%s %s)", host, dns.Class, dns.ResolverError))
	}
	ok(fmt.Sprintf("gateway host %s resolves (%d addresses)", host, len(dns.IPs)))

	if err := checkStore(ctx, cfg); err != nil {
		fail(fmt.Sprintf("store %s: %v", cfg.Driver(), err))
	}
	ok("store " + cfg.Driver() + " reachable")

	ok("preflight passed")
}

// checkStore opens the configured backend and reads settings once.
func checkStore(ctx context.Context, cfg config.Config) error {
	var (
		s   repo.Store
		err error
	)
	switch cfg.Driver() {
	case config.DriverPostgres:
		var pg *postgres.Store
		pg, err = postgres.New(ctx, cfg.DatabaseURL, zap.NewNop())
		if err == nil {
			if err = pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return err
			}
			s = pg
		}
	case config.DriverMySQL:
		s, err = sqldb.OpenMySQL(ctx, cfg.MySQLDSN, zap.NewNop())
	case config.DriverSQLite:
		s, err = sqldb.OpenSQLite(ctx, cfg.SQLitePath, zap.NewNop())
	default:
		return nil
	}
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = s.GetSettings(ctx)
	return err
}
