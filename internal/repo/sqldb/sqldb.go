// Package sqldb is a database/sql Store for SQLite (modernc.org/sqlite) and
// MySQL (go-sql-driver/mysql). Timestamps are stored as Unix milliseconds.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/botwatch/internal/domain"
	"github.com/hamed0406/botwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type dialect struct {
	driver     string
	schema     []string
	seedConfig string
}

var sqlite = dialect{
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS settings (
			id                   INTEGER PRIMARY KEY CHECK (id = 1),
			channel_id           TEXT    NOT NULL DEFAULT '',
			test_type            TEXT    NOT NULL DEFAULT 'prefix',
			command              TEXT    NOT NULL DEFAULT '.ping',
			interval_ms          INTEGER NOT NULL DEFAULT 150000,
			timeout_ms           INTEGER NOT NULL DEFAULT 5000,
			response_match       TEXT    NOT NULL DEFAULT 'pong',
			status_override      TEXT    DEFAULT NULL,
			auto_ping_url        TEXT    DEFAULT NULL,
			auto_ping_interval_s INTEGER NOT NULL DEFAULT 300
		)`,
		`CREATE TABLE IF NOT EXISTS checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			up INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_ts ON checks(ts)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			start_ts INTEGER NOT NULL,
			end_ts   INTEGER
		)`,
	},
	seedConfig: `INSERT OR IGNORE INTO settings (id) VALUES (1)`,
}

var mysql = dialect{
	driver: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS settings (
			id                   INT          PRIMARY KEY,
			channel_id           VARCHAR(64)  NOT NULL DEFAULT '',
			test_type            VARCHAR(16)  NOT NULL DEFAULT 'prefix',
			command              VARCHAR(512) NOT NULL DEFAULT '.ping',
			interval_ms          BIGINT       NOT NULL DEFAULT 150000,
			timeout_ms           BIGINT       NOT NULL DEFAULT 5000,
			response_match       VARCHAR(512) NOT NULL DEFAULT 'pong',
			status_override      VARCHAR(64)  NULL,
			auto_ping_url        VARCHAR(1024) NULL,
			auto_ping_interval_s BIGINT       NOT NULL DEFAULT 300
		)`,
		`CREATE TABLE IF NOT EXISTS checks (
			id BIGINT     AUTO_INCREMENT PRIMARY KEY,
			ts BIGINT     NOT NULL,
			up TINYINT(1) NOT NULL,
			INDEX idx_checks_ts (ts)
		)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id       BIGINT AUTO_INCREMENT PRIMARY KEY,
			start_ts BIGINT NOT NULL,
			end_ts   BIGINT NULL
		)`,
	},
	seedConfig: `INSERT IGNORE INTO settings (id) VALUES (1)`,
}

// Store wraps sql.DB with the repo ports.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// migrates it. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open(sqlite.driver, path)
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	// one writer; also keeps ":memory:" on a single shared connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		log.Warn("sqlite_pragma_failed", zap.String("pragma", "journal_mode"), zap.Error(err))
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous=NORMAL"); err != nil {
		log.Warn("sqlite_pragma_failed", zap.String("pragma", "synchronous"), zap.Error(err))
	}
	return open(ctx, db, sqlite, log)
}

// OpenMySQL connects with a go-sql-driver DSN, e.g.
// user:pass@tcp(localhost:3306)/botwatch.
func OpenMySQL(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open(mysql.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	return open(ctx, db, mysql, log)
}

func open(ctx context.Context, db *sql.DB, d dialect, log *zap.Logger) (*Store, error) {
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("schema creation failed: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, d.seedConfig); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for metrics gauges.
func (s *Store) DB() *sql.DB { return s.db }

// ---- SettingsStore ----

const selectSettings = `
SELECT channel_id, test_type, command, interval_ms, timeout_ms, response_match,
       status_override, auto_ping_url, auto_ping_interval_s
  FROM settings WHERE id = 1`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readSettings(ctx context.Context, q queryer) (domain.Settings, error) {
	var (
		st                    domain.Settings
		mode                  string
		intervalMS, timeoutMS int64
		keepaliveS            int64
		override, keepalive   sql.NullString
	)
	err := q.QueryRowContext(ctx, selectSettings).Scan(
		&st.ChannelID, &mode, &st.Command, &intervalMS, &timeoutMS, &st.ResponseMatch,
		&override, &keepalive, &keepaliveS,
	)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("select settings: %w", err)
	}
	st.Mode = domain.ProbeMode(mode)
	st.Interval = time.Duration(intervalMS) * time.Millisecond
	st.Timeout = time.Duration(timeoutMS) * time.Millisecond
	st.KeepaliveInterval = time.Duration(keepaliveS) * time.Second
	if override.Valid {
		v := override.String
		st.StatusOverride = &v
	}
	st.KeepaliveURL = keepalive.String
	return st, nil
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	return readSettings(ctx, s.db)
}

func (s *Store) UpdateSettings(ctx context.Context, p domain.SettingsPatch) (domain.Settings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	cur, err := readSettings(ctx, tx)
	if err != nil {
		return domain.Settings{}, err
	}
	next := cur.Apply(p)
	if err := next.Validate(); err != nil {
		return domain.Settings{}, err
	}

	var override, keepalive sql.NullString
	if next.StatusOverride != nil {
		override = sql.NullString{String: *next.StatusOverride, Valid: true}
	}
	if next.KeepaliveURL != "" {
		keepalive = sql.NullString{String: next.KeepaliveURL, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE settings
		    SET channel_id=?, test_type=?, command=?, interval_ms=?, timeout_ms=?,
		        response_match=?, status_override=?, auto_ping_url=?, auto_ping_interval_s=?
		  WHERE id = 1`,
		next.ChannelID, string(next.Mode), next.Command,
		next.Interval.Milliseconds(), next.Timeout.Milliseconds(),
		next.ResponseMatch, override, keepalive, int64(next.KeepaliveInterval/time.Second),
	)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("update settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Settings{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// ---- CheckStore ----

func (s *Store) AppendCheck(ctx context.Context, rec domain.CheckRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checks (ts, up) VALUES (?, ?)`,
		rec.Timestamp.UnixMilli(), rec.Up,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) ChecksSince(ctx context.Context, since time.Time) ([]domain.CheckRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, up FROM checks WHERE ts >= ? ORDER BY ts ASC, id ASC`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckRecord
	for rows.Next() {
		var (
			ts int64
			up bool
		)
		if err := rows.Scan(&ts, &up); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		out = append(out, domain.CheckRecord{Timestamp: time.UnixMilli(ts).UTC(), Up: up})
	}
	return out, rows.Err()
}

func (s *Store) LastCheck(ctx context.Context) (*domain.CheckRecord, error) {
	var (
		ts int64
		up bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT ts, up FROM checks ORDER BY ts DESC, id DESC LIMIT 1`,
	).Scan(&ts, &up)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last check: %w", err)
	}
	return &domain.CheckRecord{Timestamp: time.UnixMilli(ts).UTC(), Up: up}, nil
}

func (s *Store) PruneChecks(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checks WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune checks: %w", err)
	}
	return res.RowsAffected()
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, start time.Time) (domain.Incident, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (start_ts, end_ts) VALUES (?, NULL)`,
		start.UnixMilli(),
	)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("insert incident: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Incident{}, fmt.Errorf("incident id: %w", err)
	}
	return domain.Incident{ID: id, Start: time.UnixMilli(start.UnixMilli()).UTC()}, nil
}

func (s *Store) CloseLatestIncident(ctx context.Context, end time.Time) (*domain.Incident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var id, startMS int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, start_ts FROM incidents WHERE end_ts IS NULL ORDER BY id DESC LIMIT 1`,
	).Scan(&id, &startMS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open incident: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE incidents SET end_ts = ? WHERE id = ?`, end.UnixMilli(), id); err != nil {
		return nil, fmt.Errorf("close incident: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	e := time.UnixMilli(end.UnixMilli()).UTC()
	return &domain.Incident{ID: id, Start: time.UnixMilli(startMS).UTC(), End: &e}, nil
}

func (s *Store) LatestIncident(ctx context.Context) (*domain.Incident, error) {
	var (
		id, startMS int64
		endMS       sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, start_ts, end_ts FROM incidents ORDER BY id DESC LIMIT 1`,
	).Scan(&id, &startMS, &endMS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest incident: %w", err)
	}
	inc := &domain.Incident{ID: id, Start: time.UnixMilli(startMS).UTC()}
	if endMS.Valid {
		e := time.UnixMilli(endMS.Int64).UTC()
		inc.End = &e
	}
	return inc, nil
}
