// Package status exposes a read-only projection of a job for polling
// clients. It has no side effects and is safe to poll at high frequency;
// backoff is the caller's responsibility.
package status

import (
	"context"
	"errors"

	"github.com/skillsenselab/transcribed/job"
	"github.com/skillsenselab/transcribed/logger"
)

// View is the client-facing projection of a job. Raw provider bodies are
// never included; clients only ever see the generic diagnostic.
type View struct {
	JobID      string     `json:"attachment_id"`
	Status     job.Status `json:"status"`
	Transcript string     `json:"transcript,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Service reads job state for polling clients.
type Service struct {
	store job.Store
	log   *logger.Logger
}

// NewService wires the status service.
func NewService(store job.Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log.WithComponent("status")}
}

// GetStatus returns the projection for id. Unknown ids yield status
// "unknown" rather than an error so the poll loop can treat every
// well-formed response uniformly.
func (s *Service) GetStatus(ctx context.Context, id string) View {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, job.ErrNotFound) {
			s.log.Error("status read failed", logger.ErrorFields("get", err))
		}
		return View{JobID: id, Status: job.StatusUnknown}
	}
	return View{
		JobID:      j.ID,
		Status:     j.Status,
		Transcript: j.Transcript,
		Error:      j.Error,
	}
}
