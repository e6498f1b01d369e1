package memory

import (
	"context"
	"testing"
	"time"

	"github.com/hamed0406/botwatch/internal/domain"
	"github.com/hamed0406/botwatch/internal/repo/repotest"
)

func TestMemoryStore_Conformance(t *testing.T) {
	repotest.Run(t, New())
}

func TestMemoryStore_AppendFillsTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.AppendCheck(ctx, domain.CheckRecord{Up: true}); err != nil {
		t.Fatalf("AppendCheck: %v", err)
	}
	last, err := s.LastCheck(ctx)
	if err != nil || last == nil {
		t.Fatalf("LastCheck: %+v err=%v", last, err)
	}
	if last.Timestamp.IsZero() || time.Since(last.Timestamp) > time.Minute {
		t.Fatalf("timestamp not filled: %v", last.Timestamp)
	}
}

func TestMemoryStore_SettingsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	ov := "maintenance"
	if _, err := s.UpdateSettings(ctx, domain.SettingsPatch{StatusOverride: &ov}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	a, _ := s.GetSettings(ctx)
	*a.StatusOverride = "tampered"

	b, _ := s.GetSettings(ctx)
	if *b.StatusOverride != "maintenance" {
		t.Fatalf("store state leaked through returned pointer: %q", *b.StatusOverride)
	}
}
