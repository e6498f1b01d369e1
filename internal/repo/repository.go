package repo

import (
	"context"
	"time"

	"github.com/hamed0406/botwatch/internal/domain"
)

// Ports implemented by the memory, sqldb and postgres adapters.

type SettingsStore interface {
	GetSettings(ctx context.Context) (domain.Settings, error)
	// UpdateSettings applies the patch, validates the result and persists it.
	UpdateSettings(ctx context.Context, p domain.SettingsPatch) (domain.Settings, error)
}

type CheckStore interface {
	AppendCheck(ctx context.Context, rec domain.CheckRecord) error
	// ChecksSince returns records with Timestamp >= since, oldest first.
	ChecksSince(ctx context.Context, since time.Time) ([]domain.CheckRecord, error)
	// LastCheck returns nil, nil when no record exists yet.
	LastCheck(ctx context.Context) (*domain.CheckRecord, error)
	PruneChecks(ctx context.Context, before time.Time) (int64, error)
}

type IncidentStore interface {
	OpenIncident(ctx context.Context, start time.Time) (domain.Incident, error)
	// CloseLatestIncident sets End on the most recent open incident and returns
	// it; nil, nil when none is open.
	CloseLatestIncident(ctx context.Context, end time.Time) (*domain.Incident, error)
	// LatestIncident returns the incident with the highest id, or nil, nil.
	LatestIncident(ctx context.Context) (*domain.Incident, error)
}

type Store interface {
	SettingsStore
	CheckStore
	IncidentStore
	Close() error
}
