package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/skillsenselab/transcribed/logger"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func (a *recordingAlerter) SendQuotaAlert(_ context.Context, alert Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

func newTestLedger(t *testing.T, quotaMinutes, alertPercent int) (*Ledger, *MemoryCounter, *recordingAlerter) {
	t.Helper()
	counter := NewMemoryCounter()
	alerter := &recordingAlerter{}
	log := logger.NewDefault("quota-test")
	return NewLedger(counter, alerter, quotaMinutes, alertPercent, log), counter, alerter
}

func TestLedger_AllowsWithinQuota(t *testing.T) {
	ledger, _, _ := newTestLedger(t, 100, 80)
	ctx := context.Background()

	ok, err := ledger.Allows(ctx, 100)
	if err != nil {
		t.Fatalf("Allows failed: %v", err)
	}
	if !ok {
		t.Error("expected 100 minutes to fit a fresh 100-minute quota")
	}

	if _, err := ledger.AddUsage(ctx, 99); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}
	ok, err = ledger.Allows(ctx, 2)
	if err != nil {
		t.Fatalf("Allows failed: %v", err)
	}
	if ok {
		t.Error("expected 2 minutes to exceed the remaining 1")
	}
}

func TestLedger_ZeroQuotaBlocksEverything(t *testing.T) {
	ledger, _, _ := newTestLedger(t, 0, 80)

	ok, err := ledger.Allows(context.Background(), 1)
	if err != nil {
		t.Fatalf("Allows failed: %v", err)
	}
	if ok {
		t.Error("a zero quota must never admit a charged job")
	}
}

func TestLedger_AlertFiresOnceAtThreshold(t *testing.T) {
	ledger, _, alerter := newTestLedger(t, 100, 80)
	ctx := context.Background()

	if _, err := ledger.AddUsage(ctx, 79); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}
	if alerter.count() != 0 {
		t.Fatalf("alert fired below threshold, usage 79/100")
	}

	if _, err := ledger.AddUsage(ctx, 1); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}
	if alerter.count() != 1 {
		t.Fatalf("expected one alert at 80%%, got %d", alerter.count())
	}

	// Further charges the same day stay silent.
	if _, err := ledger.AddUsage(ctx, 5); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}
	if alerter.count() != 1 {
		t.Fatalf("expected alert suppression within marker validity, got %d alerts", alerter.count())
	}
}

func TestLedger_AlertRepeatsAfterMarkerExpiry(t *testing.T) {
	counter := NewMemoryCounter()
	alerter := &recordingAlerter{}
	log := logger.NewDefault("quota-test")
	ledger := NewLedger(counter, alerter, 100, 80, log)

	base := time.Date(2026, time.May, 10, 9, 0, 0, 0, time.UTC)
	counter.now = func() time.Time { return base }
	ledger.now = func() time.Time { return base }

	ctx := context.Background()
	if _, err := ledger.AddUsage(ctx, 90); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}
	if alerter.count() != 1 {
		t.Fatalf("expected initial alert, got %d", alerter.count())
	}

	// Next calendar day, still over threshold: one more alert.
	next := base.Add(25 * time.Hour)
	counter.now = func() time.Time { return next }
	ledger.now = func() time.Time { return next }

	if _, err := ledger.AddUsage(ctx, 1); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}
	if alerter.count() != 2 {
		t.Fatalf("expected a second alert after marker expiry, got %d", alerter.count())
	}
}

func TestLedger_MonthRolloverResetsUsage(t *testing.T) {
	ledger, counter, _ := newTestLedger(t, 100, 80)

	may := time.Date(2026, time.May, 31, 23, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return may }
	counter.now = func() time.Time { return may }

	ctx := context.Background()
	if _, err := ledger.AddUsage(ctx, 70); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}

	june := time.Date(2026, time.June, 1, 1, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return june }

	used, err := ledger.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if used != 0 {
		t.Errorf("expected fresh month to start at zero, got %d", used)
	}
}
