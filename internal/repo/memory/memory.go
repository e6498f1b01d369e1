package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/botwatch/internal/domain"
	"github.com/hamed0406/botwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	mu        sync.RWMutex
	settings  domain.Settings
	checks    []domain.CheckRecord
	incidents []domain.Incident
	nextID    int64
}

func New() *Store {
	return &Store{
		settings: domain.DefaultSettings(),
		checks:   make([]domain.CheckRecord, 0, 128),
		nextID:   1,
	}
}

func (m *Store) Close() error { return nil }

// ---- SettingsStore ----

func (m *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySettings(m.settings), nil
}

func (m *Store) UpdateSettings(ctx context.Context, p domain.SettingsPatch) (domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.settings.Apply(p)
	if err := next.Validate(); err != nil {
		return domain.Settings{}, err
	}
	m.settings = next
	return copySettings(next), nil
}

func copySettings(s domain.Settings) domain.Settings {
	if s.StatusOverride != nil {
		v := *s.StatusOverride
		s.StatusOverride = &v
	}
	return s
}

// ---- CheckStore ----

func (m *Store) AppendCheck(ctx context.Context, rec domain.CheckRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, rec)
	return nil
}

func (m *Store) ChecksSince(ctx context.Context, since time.Time) ([]domain.CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CheckRecord, 0, len(m.checks))
	for _, c := range m.checks {
		if !c.Timestamp.Before(since) {
			out = append(out, c)
		}
	}
	// overlapping cycles append in completion order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Store) LastCheck(ctx context.Context) (*domain.CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *domain.CheckRecord
	for i := range m.checks {
		if last == nil || !m.checks[i].Timestamp.Before(last.Timestamp) {
			c := m.checks[i]
			last = &c
		}
	}
	return last, nil
}

func (m *Store) PruneChecks(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.checks[:0]
	var n int64
	for _, c := range m.checks {
		if c.Timestamp.Before(before) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.checks = kept
	return n, nil
}

// ---- IncidentStore ----

func (m *Store) OpenIncident(ctx context.Context, start time.Time) (domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc := domain.Incident{ID: m.nextID, Start: start}
	m.nextID++
	m.incidents = append(m.incidents, inc)
	return inc, nil
}

func (m *Store) CloseLatestIncident(ctx context.Context, end time.Time) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.incidents) - 1; i >= 0; i-- {
		if m.incidents[i].End != nil {
			continue
		}
		e := end
		m.incidents[i].End = &e
		out := m.incidents[i]
		return &out, nil
	}
	return nil, nil
}

func (m *Store) LatestIncident(ctx context.Context) (*domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.incidents) == 0 {
		return nil, nil
	}
	out := m.incidents[len(m.incidents)-1]
	if out.End != nil {
		e := *out.End
		out.End = &e
	}
	return &out, nil
}
