// Package intake validates audio submissions, persists them and enqueues the
// transcription job. All validations run synchronously in the request path;
// nothing here ever talks to the transcription provider.
package intake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	apperrors "github.com/skillsenselab/transcribed/errors"
	"github.com/skillsenselab/transcribed/job"
	"github.com/skillsenselab/transcribed/logger"
	"github.com/skillsenselab/transcribed/ratelimit"
	"github.com/skillsenselab/transcribed/scheduler"
	"github.com/skillsenselab/transcribed/storage"
)

// allowedAudioTypes is the sniffed-content allow list. Filenames and
// client-declared types are never trusted.
var allowedAudioTypes = []string{
	"audio/webm",
	"video/webm",
	"audio/wav",
	"audio/x-wav",
	"audio/mpeg",
	"audio/mp3",
	"audio/ogg",
	"application/ogg",
	"audio/mp4",
	"video/mp4",
	"audio/x-m4a",
}

var botAgentPattern = regexp.MustCompile(`(?i)(bot|crawl|spider|scraper|slurp|curl|wget|python-requests|go-http-client)`)

// Submission is one upload attempt from a client.
type Submission struct {
	// FileName is the client-declared name, used for the stored extension only.
	FileName string
	// File is the audio payload.
	File io.Reader
	// Language is an optional BCP-47-like tag.
	Language string
	// DurationSeconds is the client-reported clip length. Zero means unknown.
	DurationSeconds float64
	// ClientIP and UserAgent identify the submitting client.
	ClientIP  string
	UserAgent string
	// Authenticated identities bypass the anonymous submission budget.
	Authenticated bool
}

// Result is the successful intake outcome.
type Result struct {
	JobID  string     `json:"attachment_id"`
	Status job.Status `json:"status"`
}

// Config holds the intake validation knobs.
type Config struct {
	// MaxUploadBytes is the payload ceiling.
	MaxUploadBytes int64
	// MinFreeBytes is the storage free-space floor.
	MinFreeBytes uint64
	// MaxTrackedJobs is the ceiling on simultaneously tracked jobs.
	MaxTrackedJobs int
	// DefaultLanguage is applied when the submission omits one.
	DefaultLanguage string
	// DispatchDelay is the fixed delay before the first processing attempt.
	DispatchDelay time.Duration
}

// Service performs submission validation and job creation.
type Service struct {
	cfg     Config
	store   job.Store
	limiter ratelimit.Limiter
	sched   scheduler.Scheduler
	blobs   storage.Storage
	log     *logger.Logger
}

// NewService wires the intake service.
func NewService(cfg Config, store job.Store, limiter ratelimit.Limiter, sched scheduler.Scheduler, blobs storage.Storage, log *logger.Logger) *Service {
	if cfg.DispatchDelay == 0 {
		cfg.DispatchDelay = scheduler.DefaultDispatchDelay
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		limiter: limiter,
		sched:   sched,
		blobs:   blobs,
		log:     log.WithComponent("intake"),
	}
}

// Submit runs the validation chain in order and, when everything passes,
// persists the clip, creates the job and schedules processing. Each
// rejection is hard: no partial state is left behind. Submission never
// blocks on transcription.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	// 1. Anonymous identities have a fixed submission budget.
	if !sub.Authenticated {
		identity := ratelimit.Identity(sub.ClientIP, sub.UserAgent)
		allowed, err := s.limiter.CheckAndIncrement(ctx, identity)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if !allowed {
			return nil, apperrors.RateLimited()
		}
	}

	// 2. Obvious non-human traffic is refused outright.
	if sub.UserAgent == "" || botAgentPattern.MatchString(sub.UserAgent) {
		return nil, apperrors.Forbidden("Automated clients may not submit audio.")
	}

	if sub.File == nil {
		return nil, apperrors.MissingFile()
	}

	// 3. Bound the payload. Reading one extra byte detects oversize without
	// buffering more than the ceiling.
	data, err := io.ReadAll(io.LimitReader(sub.File, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, apperrors.UploadError(err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, apperrors.PayloadTooLarge(s.cfg.MaxUploadBytes)
	}
	if len(data) == 0 {
		return nil, apperrors.MissingFile()
	}

	// 4. Sniff the content; the upload never reaches storage when the type
	// is not an allowed audio format.
	detected := mimetype.Detect(data)
	if !isAllowedAudio(detected) {
		return nil, apperrors.InvalidFileType(detected.String())
	}

	// 5. Refuse uploads when backing storage runs low.
	if reporter, ok := s.blobs.(storage.FreeSpaceReporter); ok {
		free, err := reporter.FreeBytes()
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if free < s.cfg.MinFreeBytes {
			return nil, apperrors.InsufficientStorage()
		}
	}

	// 6. Cap the number of tracked jobs.
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if count >= s.cfg.MaxTrackedJobs {
		return nil, apperrors.JobQuotaExceeded(s.cfg.MaxTrackedJobs)
	}

	// 7. Persist the clip under the job id.
	jobID := uuid.NewString()
	path := fmt.Sprintf("%s%s", jobID, detected.Extension())
	if err := s.blobs.Upload(ctx, path, bytes.NewReader(data)); err != nil {
		return nil, apperrors.UploadError(err)
	}

	fileURL, err := s.blobs.URL(ctx, path)
	if err != nil {
		fileURL = ""
	}

	language := sub.Language
	if language == "" {
		language = s.cfg.DefaultLanguage
	}

	// 8. Track the job as queued.
	j := &job.Job{
		ID:              jobID,
		FilePath:        path,
		FileURL:         fileURL,
		Language:        language,
		DurationSeconds: sub.DurationSeconds,
		Status:          job.StatusQueued,
	}
	if err := s.store.Create(ctx, j); err != nil {
		_ = s.blobs.Delete(ctx, path)
		return nil, apperrors.Internal(err)
	}

	// 9. Hand off to the scheduler; the worker picks it up after the delay.
	task := scheduler.Task{JobID: jobID, FilePath: path}
	if err := s.sched.ScheduleTranscribe(ctx, s.cfg.DispatchDelay, task); err != nil {
		_ = s.store.Delete(ctx, jobID)
		_ = s.blobs.Delete(ctx, path)
		return nil, apperrors.ExternalServiceError("scheduling", err)
	}

	s.log.Info("submission queued", logger.Fields(
		logger.FieldJobID, jobID,
		"bytes", len(data),
		"language", language,
		"duration_s", sub.DurationSeconds,
	))

	return &Result{JobID: jobID, Status: job.StatusQueued}, nil
}

func isAllowedAudio(detected *mimetype.MIME) bool {
	for _, allowed := range allowedAudioTypes {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}
