package clock

import (
	"testing"
	"time"
)

func mustGate(t *testing.T, tz, start, end string) *Gate {
	t.Helper()
	g, err := NewGate(tz, start, end)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestShouldRun_WindowBounds(t *testing.T) {
	g := mustGate(t, "Australia/Adelaide", "08:30", "10:00")
	loc := g.Location()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"well before window", time.Date(2025, 7, 15, 6, 0, 0, 0, loc), false},
		{"minute before start", time.Date(2025, 7, 15, 8, 29, 0, 0, loc), false},
		{"window start inclusive", time.Date(2025, 7, 15, 8, 30, 0, 0, loc), true},
		{"mid window", time.Date(2025, 7, 15, 9, 0, 0, 0, loc), true},
		{"last minute of window", time.Date(2025, 7, 15, 9, 59, 59, 0, loc), true},
		{"window end exclusive", time.Date(2025, 7, 15, 10, 0, 0, 0, loc), false},
		{"afternoon", time.Date(2025, 7, 15, 15, 0, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.ShouldRun(tt.at); got != tt.want {
				t.Errorf("ShouldRun(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestShouldRun_AcrossDaylightSaving(t *testing.T) {
	// Adelaide is ACST (UTC+9:30) in winter and ACDT (UTC+10:30) in
	// summer; daylight saving starts on the first Sunday of October.
	// The same UTC instant maps to different wall-clock times on either
	// side of the transition, and the gate must follow the wall clock.
	g := mustGate(t, "Australia/Adelaide", "08:30", "10:00")

	// 2025-10-05 is the transition date. The week before, 23:30 UTC is
	// 09:00 ACST (inside). The week after, the same UTC time is 10:00
	// ACDT (outside, end is exclusive).
	beforeShift := time.Date(2025, 9, 28, 23, 30, 0, 0, time.UTC)
	if !g.ShouldRun(beforeShift) {
		t.Errorf("ShouldRun(%s) = false, want true (09:00 ACST)", beforeShift)
	}

	afterShift := time.Date(2025, 10, 12, 23, 30, 0, 0, time.UTC)
	if g.ShouldRun(afterShift) {
		t.Errorf("ShouldRun(%s) = true, want false (10:00 ACDT)", afterShift)
	}

	// 22:30 UTC after the shift is 09:00 ACDT, inside again.
	afterShiftEarlier := time.Date(2025, 10, 12, 22, 30, 0, 0, time.UTC)
	if !g.ShouldRun(afterShiftEarlier) {
		t.Errorf("ShouldRun(%s) = false, want true (09:00 ACDT)", afterShiftEarlier)
	}
}

func TestNewGate_Validation(t *testing.T) {
	if _, err := NewGate("Not/AZone", "08:30", "10:00"); err == nil {
		t.Error("NewGate with bad zone: want error")
	}
	if _, err := NewGate("Australia/Adelaide", "ten", "10:00"); err == nil {
		t.Error("NewGate with bad start: want error")
	}
	if _, err := NewGate("Australia/Adelaide", "10:00", "08:30"); err == nil {
		t.Error("NewGate with inverted window: want error")
	}
}
