package scheduler

import (
	"testing"
	"time"

	"github.com/solidex/shpak/internal/config"
)

func TestDurationToNextTick_LaterToday(t *testing.T) {
	s := &Scheduler{cfg: config.ReportConfig{SendTime: "08:00"}}
	now := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	got := s.durationToNextTick(now)

	want := 2 * time.Hour
	if got != want {
		t.Fatalf("durationToNextTick() = %v, want %v", got, want)
	}
}

func TestDurationToNextTick_AlreadyPassedToday(t *testing.T) {
	s := &Scheduler{cfg: config.ReportConfig{SendTime: "08:00"}}
	now := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)

	got := s.durationToNextTick(now)

	want := 22*time.Hour + 30*time.Minute
	if got != want {
		t.Fatalf("durationToNextTick() = %v, want %v", got, want)
	}
}

func TestDurationToNextTick_ExactBoundaryRollsToTomorrow(t *testing.T) {
	s := &Scheduler{cfg: config.ReportConfig{SendTime: "08:00"}}
	now := time.Date(2026, 7, 29, 8, 0, 0, 0, time.UTC)

	got := s.durationToNextTick(now)

	if got != 24*time.Hour {
		t.Fatalf("durationToNextTick() at exact boundary = %v, want 24h", got)
	}
}

func TestDurationToNextTick_MalformedSendTimeDefaultsToEightAM(t *testing.T) {
	s := &Scheduler{cfg: config.ReportConfig{SendTime: "not-a-time"}}
	now := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	got := s.durationToNextTick(now)

	want := 2 * time.Hour
	if got != want {
		t.Fatalf("durationToNextTick() with malformed config = %v, want %v (default 08:00)", got, want)
	}
}
