package quota

import (
	"testing"
	"time"
)

func TestMinutesToCharge(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    int
	}{
		{"unknown duration charges nothing", 0, 0},
		{"negative duration charges nothing", -5, 0},
		{"sub-minute rounds up", 1, 1},
		{"fifty-nine seconds", 59, 1},
		{"exact minute", 60, 1},
		{"just over a minute", 61, 2},
		{"fractional seconds round up", 60.5, 2},
		{"ten minutes", 600, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinutesToCharge(tt.seconds); got != tt.want {
				t.Errorf("MinutesToCharge(%v) = %d, want %d", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestMonthKey(t *testing.T) {
	ts := time.Date(2026, time.March, 7, 14, 30, 0, 0, time.UTC)
	if got := MonthKey(ts); got != "2026-03" {
		t.Errorf("MonthKey = %q, want %q", got, "2026-03")
	}
}
