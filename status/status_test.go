package status

import (
	"context"
	"testing"

	"github.com/skillsenselab/transcribed/job"
	"github.com/skillsenselab/transcribed/logger"
)

func newTestService(t *testing.T) (*Service, *job.MemoryStore) {
	t.Helper()
	store := job.NewMemoryStore()
	return NewService(store, logger.NewDefault("status-test")), store
}

func TestGetStatus_KnownJob(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	store.Create(ctx, &job.Job{
		ID:         "k1",
		Status:     job.StatusCompleted,
		Transcript: "bonjour",
	})

	view := svc.GetStatus(ctx, "k1")
	if view.JobID != "k1" || view.Status != job.StatusCompleted {
		t.Errorf("unexpected view: %+v", view)
	}
	if view.Transcript != "bonjour" {
		t.Errorf("transcript = %q", view.Transcript)
	}
}

func TestGetStatus_FailedJobCarriesDiagnostic(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	store.Create(ctx, &job.Job{
		ID:     "f1",
		Status: job.StatusError,
		Error:  "provider returned HTTP 502: bad gateway",
	})

	view := svc.GetStatus(ctx, "f1")
	if view.Status != job.StatusError {
		t.Errorf("status = %s, want error", view.Status)
	}
	if view.Error == "" {
		t.Error("expected the diagnostic to be surfaced")
	}
	if view.Transcript != "" {
		t.Errorf("failed job must not carry a transcript, got %q", view.Transcript)
	}
}

func TestGetStatus_UnknownJob(t *testing.T) {
	svc, _ := newTestService(t)

	view := svc.GetStatus(context.Background(), "never-seen")
	if view.Status != job.StatusUnknown {
		t.Errorf("status = %s, want unknown", view.Status)
	}
	if view.JobID != "never-seen" {
		t.Errorf("JobID = %q", view.JobID)
	}
}
