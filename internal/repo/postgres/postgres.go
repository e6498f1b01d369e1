package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/domain"
	"github.com/hamed0406/botwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Schema is applied by Migrate. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
  id                   SMALLINT PRIMARY KEY CHECK (id = 1),
  channel_id           TEXT    NOT NULL DEFAULT '',
  test_type            TEXT    NOT NULL DEFAULT 'prefix',
  command              TEXT    NOT NULL DEFAULT '.ping',
  interval_ms          BIGINT  NOT NULL DEFAULT 150000,
  timeout_ms           BIGINT  NOT NULL DEFAULT 5000,
  response_match       TEXT    NOT NULL DEFAULT 'pong',
  status_override      TEXT    NULL,
  auto_ping_url        TEXT    NULL,
  auto_ping_interval_s BIGINT  NOT NULL DEFAULT 300
);

INSERT INTO settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS checks (
  id BIGSERIAL   PRIMARY KEY,
  ts TIMESTAMPTZ NOT NULL,
  up BOOLEAN     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_ts ON checks (ts DESC);

CREATE TABLE IF NOT EXISTS incidents (
  id       BIGSERIAL   PRIMARY KEY,
  start_ts TIMESTAMPTZ NOT NULL,
  end_ts   TIMESTAMPTZ NULL
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate creates tables and seeds the settings row.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// DB wraps the pool as a *sql.DB for the metrics gauges. Closing it does
// not close the pool.
func (s *Store) DB() *sql.DB { return stdlib.OpenDBFromPool(s.pool) }

// ---- SettingsStore ----

const selectSettings = `
SELECT channel_id, test_type, command, interval_ms, timeout_ms, response_match,
       status_override, auto_ping_url, auto_ping_interval_s
  FROM settings
 WHERE id = 1`

func scanSettings(row pgx.Row) (domain.Settings, error) {
	var (
		st                    domain.Settings
		mode                  string
		intervalMS, timeoutMS int64
		keepaliveS            int64
		override, keepalive   *string
	)
	if err := row.Scan(&st.ChannelID, &mode, &st.Command, &intervalMS, &timeoutMS,
		&st.ResponseMatch, &override, &keepalive, &keepaliveS); err != nil {
		return domain.Settings{}, fmt.Errorf("select settings: %w", err)
	}
	st.Mode = domain.ProbeMode(mode)
	st.Interval = time.Duration(intervalMS) * time.Millisecond
	st.Timeout = time.Duration(timeoutMS) * time.Millisecond
	st.KeepaliveInterval = time.Duration(keepaliveS) * time.Second
	st.StatusOverride = override
	if keepalive != nil {
		st.KeepaliveURL = *keepalive
	}
	return st, nil
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	return scanSettings(s.pool.QueryRow(ctx, selectSettings))
}

func (s *Store) UpdateSettings(ctx context.Context, p domain.SettingsPatch) (domain.Settings, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cur, err := scanSettings(tx.QueryRow(ctx, selectSettings+" FOR UPDATE"))
	if err != nil {
		return domain.Settings{}, err
	}
	next := cur.Apply(p)
	if err := next.Validate(); err != nil {
		return domain.Settings{}, err
	}

	var keepalive *string
	if next.KeepaliveURL != "" {
		keepalive = &next.KeepaliveURL
	}
	_, err = tx.Exec(ctx, `
UPDATE settings
   SET channel_id = $1, test_type = $2, command = $3, interval_ms = $4, timeout_ms = $5,
       response_match = $6, status_override = $7, auto_ping_url = $8, auto_ping_interval_s = $9
 WHERE id = 1`,
		next.ChannelID, string(next.Mode), next.Command,
		next.Interval.Milliseconds(), next.Timeout.Milliseconds(),
		next.ResponseMatch, next.StatusOverride, keepalive, int64(next.KeepaliveInterval/time.Second),
	)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("update settings: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Settings{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// ---- CheckStore ----

func (s *Store) AppendCheck(ctx context.Context, rec domain.CheckRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO checks (ts, up) VALUES ($1, $2)`, rec.Timestamp, rec.Up)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) ChecksSince(ctx context.Context, since time.Time) ([]domain.CheckRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, up
		   FROM checks
		  WHERE ts >= $1
		  ORDER BY ts ASC, id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckRecord
	for rows.Next() {
		var rec domain.CheckRecord
		if err := rows.Scan(&rec.Timestamp, &rec.Up); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) LastCheck(ctx context.Context) (*domain.CheckRecord, error) {
	var rec domain.CheckRecord
	err := s.pool.QueryRow(ctx,
		`SELECT ts, up FROM checks ORDER BY ts DESC, id DESC LIMIT 1`,
	).Scan(&rec.Timestamp, &rec.Up)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last check: %w", err)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}

func (s *Store) PruneChecks(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checks WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune checks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, start time.Time) (domain.Incident, error) {
	inc := domain.Incident{Start: start.UTC()}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO incidents (start_ts) VALUES ($1) RETURNING id`, start,
	).Scan(&inc.ID)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("insert incident: %w", err)
	}
	return inc, nil
}

func (s *Store) CloseLatestIncident(ctx context.Context, end time.Time) (*domain.Incident, error) {
	var (
		inc  domain.Incident
		endT time.Time
	)
	err := s.pool.QueryRow(ctx, `
UPDATE incidents
   SET end_ts = $1
 WHERE id = (SELECT id FROM incidents WHERE end_ts IS NULL ORDER BY id DESC LIMIT 1 FOR UPDATE)
RETURNING id, start_ts, end_ts`, end,
	).Scan(&inc.ID, &inc.Start, &endT)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("close incident: %w", err)
	}
	inc.Start = inc.Start.UTC()
	endT = endT.UTC()
	inc.End = &endT
	return &inc, nil
}

func (s *Store) LatestIncident(ctx context.Context) (*domain.Incident, error) {
	var (
		inc domain.Incident
		end *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, start_ts, end_ts FROM incidents ORDER BY id DESC LIMIT 1`,
	).Scan(&inc.ID, &inc.Start, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest incident: %w", err)
	}
	inc.Start = inc.Start.UTC()
	if end != nil {
		e := end.UTC()
		inc.End = &e
	}
	return &inc, nil
}
