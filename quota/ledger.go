package quota

import (
	"context"
	"time"

	"github.com/skillsenselab/transcribed/logger"
)

// Ledger tracks monthly minute usage against a configured quota and fires
// operator alerts at most once per calendar day when the alert threshold is
// met or exceeded.
type Ledger struct {
	counter Counter
	alerter Alerter
	log     *logger.Logger

	quotaMinutes int
	alertPercent int

	now func() time.Time
}

// NewLedger creates a ledger over the given counter backend. quotaMinutes of
// zero means no minutes ever fit: every charged job is blocked. alerter may
// be nil to disable alerting.
func NewLedger(counter Counter, alerter Alerter, quotaMinutes, alertPercent int, log *logger.Logger) *Ledger {
	if alertPercent <= 0 || alertPercent > 100 {
		alertPercent = 80
	}
	return &Ledger{
		counter:      counter,
		alerter:      alerter,
		log:          log.WithComponent("quota"),
		quotaMinutes: quotaMinutes,
		alertPercent: alertPercent,
		now:          time.Now,
	}
}

// QuotaMinutes returns the configured monthly quota.
func (l *Ledger) QuotaMinutes() int { return l.quotaMinutes }

// Usage returns the minutes consumed in the current month.
func (l *Ledger) Usage(ctx context.Context) (int, error) {
	return l.counter.Usage(ctx, MonthKey(l.now()))
}

// Allows reports whether charging minutes would still fit within the quota.
// A quota of zero never fits anything; it is not treated as unlimited.
func (l *Ledger) Allows(ctx context.Context, minutes int) (bool, error) {
	used, err := l.Usage(ctx)
	if err != nil {
		return false, err
	}
	return used+minutes <= l.quotaMinutes, nil
}

// AddUsage atomically charges minutes to the current month and runs the
// alert check on the new total. Returns the new monthly total.
func (l *Ledger) AddUsage(ctx context.Context, minutes int) (int, error) {
	month := MonthKey(l.now())
	total, err := l.counter.Add(ctx, month, minutes)
	if err != nil {
		return 0, err
	}
	l.checkAlert(ctx, month, total)
	return total, nil
}

// checkAlert fires the operator alert when the threshold is crossed. Alert
// delivery failures are logged, never propagated: the charge itself stands.
func (l *Ledger) checkAlert(ctx context.Context, month string, used int) {
	if l.alerter == nil || l.quotaMinutes <= 0 {
		return
	}
	percent := float64(used) / float64(l.quotaMinutes) * 100
	if percent < float64(l.alertPercent) {
		return
	}

	fresh, err := l.counter.MarkAlerted(ctx, month, AlertMarkerTTL)
	if err != nil {
		l.log.Error("quota alert marker failed", logger.ErrorFields("mark_alerted", err))
		return
	}
	if !fresh {
		return
	}

	alert := Alert{
		Month:        month,
		UsedMinutes:  used,
		QuotaMinutes: l.quotaMinutes,
		Percent:      percent,
	}
	if err := l.alerter.SendQuotaAlert(ctx, alert); err != nil {
		l.log.Error("quota alert delivery failed", logger.ErrorFields("send_alert", err))
		return
	}
	l.log.Warn("quota alert sent", logger.Fields(
		"month", month,
		"used_minutes", used,
		"quota_minutes", l.quotaMinutes,
	))
}
