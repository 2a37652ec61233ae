// Package quota meters monthly transcription usage in minutes and alerts
// operators when the configured threshold is crossed.
//
// Counters are keyed by calendar month (YYYY-MM); the rollover to a new key
// is what resets usage, there is no explicit reset operation.
package quota

import (
	"context"
	"math"
	"time"
)

// AlertMarkerTTL bounds the validity of the alert-sent marker so a stuck
// marker cannot suppress alerts for more than one calendar day.
const AlertMarkerTTL = 24 * time.Hour

// MinutesToCharge converts a clip duration to billable minutes, rounding up.
// Unknown or zero durations charge nothing.
func MinutesToCharge(durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(durationSeconds / 60))
}

// MonthKey formats t as a ledger month key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Counter is the storage backend for monthly usage counters and the
// day-scoped alert idempotency marker.
type Counter interface {
	// Usage returns the minutes consumed in the given month.
	Usage(ctx context.Context, month string) (int, error)

	// Add atomically increments the month's counter and returns the new total.
	Add(ctx context.Context, month string, minutes int) (int, error)

	// MarkAlerted records that an alert was sent for the month. It returns
	// false when a still-valid marker already exists.
	MarkAlerted(ctx context.Context, month string, ttl time.Duration) (bool, error)
}

// Alert describes a quota threshold crossing.
type Alert struct {
	Month        string
	UsedMinutes  int
	QuotaMinutes int
	Percent      float64
}

// Alerter notifies operators about quota threshold crossings.
type Alerter interface {
	SendQuotaAlert(ctx context.Context, a Alert) error
}
