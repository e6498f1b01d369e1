// Package uptime derives dashboard views from the check log. Nothing here
// writes to the store.
package uptime

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hamed0406/botwatch/internal/domain"
	"github.com/hamed0406/botwatch/internal/repo"
)

const DailyWindow = 30

// round2 rounds to two decimals.
func round2(x float64) float64 { return math.Round(x*100) / 100 }

// percent is 100 when total is zero: no data counts as healthy.
func percent(up, total int) float64 {
	if total == 0 {
		return 100
	}
	return round2(float64(up) / float64(total) * 100)
}

// Rolling is the share of up records at or after since, in percent.
func Rolling(records []domain.CheckRecord, since time.Time) float64 {
	var up, total int
	for _, r := range records {
		if r.Timestamp.Before(since) {
			continue
		}
		total++
		if r.Up {
			up++
		}
	}
	return percent(up, total)
}

// Daily buckets records by UTC day for the trailing days ending today,
// oldest first. Days without records report 100% and zero checks.
func Daily(records []domain.CheckRecord, now time.Time, days int) []domain.DaySummary {
	type tally struct{ up, total int }
	byDay := make(map[string]*tally, days)
	for _, r := range records {
		key := r.Timestamp.UTC().Format(time.DateOnly)
		t := byDay[key]
		if t == nil {
			t = &tally{}
			byDay[key] = t
		}
		t.total++
		if r.Up {
			t.up++
		}
	}

	today := now.UTC().Truncate(24 * time.Hour)
	out := make([]domain.DaySummary, 0, days)
	for i := days - 1; i >= 0; i-- {
		key := today.AddDate(0, 0, -i).Format(time.DateOnly)
		s := domain.DaySummary{Day: key, UptimePercent: 100}
		if t := byDay[key]; t != nil {
			s.UptimePercent = percent(t.up, t.total)
			s.Checks = t.total
		}
		out = append(out, s)
	}
	return out
}

// Service answers dashboard queries against a store.
type Service struct {
	store repo.Store
	now   func() time.Time
}

func NewService(store repo.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) RollingUptime(ctx context.Context, hours int) (float64, error) {
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	recs, err := s.store.ChecksSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("rolling uptime: %w", err)
	}
	return Rolling(recs, since), nil
}

// DailySummary covers the last DailyWindow UTC days including today.
func (s *Service) DailySummary(ctx context.Context) ([]domain.DaySummary, error) {
	now := s.now()
	start := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -(DailyWindow - 1))
	recs, err := s.store.ChecksSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	return Daily(recs, now, DailyWindow), nil
}

func (s *Service) LastIncident(ctx context.Context) (*domain.Incident, error) {
	inc, err := s.store.LatestIncident(ctx)
	if err != nil {
		return nil, fmt.Errorf("last incident: %w", err)
	}
	return inc, nil
}

// CurrentStatus returns the operator override when set, otherwise "online"
// if the last check was up and "down" if not (or if there are no checks).
func (s *Service) CurrentStatus(ctx context.Context) (string, error) {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("current status: %w", err)
	}
	if st.StatusOverride != nil && *st.StatusOverride != "" {
		return *st.StatusOverride, nil
	}
	last, err := s.store.LastCheck(ctx)
	if err != nil {
		return "", fmt.Errorf("current status: %w", err)
	}
	if last != nil && last.Up {
		return domain.PublicOnline, nil
	}
	return domain.PublicDown, nil
}
