// Package repotest holds behaviour tests shared by every repo.Store adapter.
package repotest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/botwatch/internal/domain"
	"github.com/hamed0406/botwatch/internal/repo"
)

// Run exercises s through the repo ports. The store must start empty.
func Run(t *testing.T, s repo.Store) {
	t.Helper()
	t.Run("settings", func(t *testing.T) { settings(t, s) })
	t.Run("checks", func(t *testing.T) { checks(t, s) })
	t.Run("incidents", func(t *testing.T) { incidents(t, s) })
}

func settings(t *testing.T, s repo.Store) {
	ctx := context.Background()

	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	def := domain.DefaultSettings()
	if got.Command != def.Command || got.Interval != def.Interval || got.ResponseMatch != def.ResponseMatch {
		t.Fatalf("want defaults, got %+v", got)
	}
	if got.StatusOverride != nil {
		t.Fatalf("override should start nil")
	}

	ch := "C"
	mode := domain.ModeMention
	iv := 20 * time.Second
	ov := "maintenance"
	ka := "https://example.com/ping"
	upd, err := s.UpdateSettings(ctx, domain.SettingsPatch{
		ChannelID:      &ch,
		Mode:           &mode,
		Interval:       &iv,
		StatusOverride: &ov,
		KeepaliveURL:   &ka,
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if upd.ChannelID != "C" || upd.Mode != domain.ModeMention || upd.Interval != iv {
		t.Fatalf("update not applied: %+v", upd)
	}

	got, err = s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings after update: %v", err)
	}
	if got.ChannelID != "C" || got.Interval != iv || got.Timeout != def.Timeout || got.KeepaliveURL != ka {
		t.Fatalf("update not persisted: %+v", got)
	}
	if got.StatusOverride == nil || *got.StatusOverride != "maintenance" {
		t.Fatalf("override not persisted: %v", got.StatusOverride)
	}

	bad := 5 * time.Millisecond
	if _, err := s.UpdateSettings(ctx, domain.SettingsPatch{Timeout: &bad}); !errors.Is(err, domain.ErrInvalidSettings) {
		t.Fatalf("want ErrInvalidSettings, got %v", err)
	}
	got, _ = s.GetSettings(ctx)
	if got.Timeout != def.Timeout {
		t.Fatalf("invalid update leaked: %v", got.Timeout)
	}

	got, err = s.UpdateSettings(ctx, domain.SettingsPatch{ClearOverride: true, ClearKeepalive: true})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got.StatusOverride != nil || got.KeepaliveURL != "" {
		t.Fatalf("clear failed: %+v", got)
	}
}

func checks(t *testing.T, s repo.Store) {
	ctx := context.Background()

	last, err := s.LastCheck(ctx)
	if err != nil || last != nil {
		t.Fatalf("want nil last check, got %+v err=%v", last, err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond).Add(-3 * time.Hour)
	recs := []domain.CheckRecord{
		{Timestamp: base, Up: true},
		{Timestamp: base.Add(2 * time.Hour), Up: false},
		{Timestamp: base.Add(time.Hour), Up: true},
	}
	for _, r := range recs {
		if err := s.AppendCheck(ctx, r); err != nil {
			t.Fatalf("AppendCheck: %v", err)
		}
	}

	all, err := s.ChecksSince(ctx, base)
	if err != nil {
		t.Fatalf("ChecksSince: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("want 3 records, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatalf("records not ascending: %+v", all)
		}
	}

	recent, _ := s.ChecksSince(ctx, base.Add(90*time.Minute))
	if len(recent) != 1 || recent[0].Up {
		t.Fatalf("window filter wrong: %+v", recent)
	}

	last, err = s.LastCheck(ctx)
	if err != nil || last == nil {
		t.Fatalf("LastCheck: %+v err=%v", last, err)
	}
	if last.Up || !last.Timestamp.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("want latest (down) record, got %+v", last)
	}

	n, err := s.PruneChecks(ctx, base.Add(30*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("PruneChecks: n=%d err=%v", n, err)
	}

	// concurrent appends from overlapping cycles
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AppendCheck(ctx, domain.CheckRecord{Timestamp: time.Now().UTC(), Up: true})
		}()
	}
	wg.Wait()
	all, _ = s.ChecksSince(ctx, base)
	if len(all) != 10 {
		t.Fatalf("want 10 records after concurrent appends, got %d", len(all))
	}
}

func incidents(t *testing.T, s repo.Store) {
	ctx := context.Background()

	inc, err := s.LatestIncident(ctx)
	if err != nil || inc != nil {
		t.Fatalf("want no incident, got %+v err=%v", inc, err)
	}
	closed, err := s.CloseLatestIncident(ctx, time.Now())
	if err != nil || closed != nil {
		t.Fatalf("close with none open: %+v err=%v", closed, err)
	}

	start := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Minute)
	opened, err := s.OpenIncident(ctx, start)
	if err != nil {
		t.Fatalf("OpenIncident: %v", err)
	}
	if opened.ID == 0 || !opened.Open() || !opened.Start.Equal(start) {
		t.Fatalf("bad opened incident: %+v", opened)
	}

	latest, err := s.LatestIncident(ctx)
	if err != nil || latest == nil || latest.ID != opened.ID || !latest.Open() {
		t.Fatalf("LatestIncident: %+v err=%v", latest, err)
	}

	end := start.Add(42 * time.Second)
	closed, err = s.CloseLatestIncident(ctx, end)
	if err != nil || closed == nil {
		t.Fatalf("CloseLatestIncident: %+v err=%v", closed, err)
	}
	if closed.ID != opened.ID || closed.End == nil || closed.Duration(time.Now()) != 42*time.Second {
		t.Fatalf("bad closed incident: %+v", closed)
	}

	second, err := s.OpenIncident(ctx, end.Add(time.Minute))
	if err != nil {
		t.Fatalf("OpenIncident second: %v", err)
	}
	if second.ID <= opened.ID {
		t.Fatalf("ids must increase: %d then %d", opened.ID, second.ID)
	}
	latest, _ = s.LatestIncident(ctx)
	if latest == nil || latest.ID != second.ID || !latest.Open() {
		t.Fatalf("latest should be second open incident: %+v", latest)
	}
}
