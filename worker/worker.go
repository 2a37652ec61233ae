// Package worker executes scheduled transcription jobs against the external
// provider and writes every outcome to the job store.
//
// Dispatch is at-least-once, so Process tolerates redelivery: a job is only
// picked up while queued, and every other state makes the dispatch a no-op.
// Failed attempts are never retried automatically; recovery is an operator
// rerun so a flaky provider cannot burn quota on its own.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillsenselab/transcribed/job"
	"github.com/skillsenselab/transcribed/logger"
	"github.com/skillsenselab/transcribed/quota"
	"github.com/skillsenselab/transcribed/scheduler"
	"github.com/skillsenselab/transcribed/storage"
	"github.com/skillsenselab/transcribed/transcription"
	"github.com/skillsenselab/transcribed/util"
)

// PlaceholderTranscript is stored when external sending is disabled but the
// deployment opts into completing jobs anyway.
const PlaceholderTranscript = "[transcription unavailable: external processing is disabled on this site]"

// Config holds the processing policy knobs.
type Config struct {
	// ExternalSendEnabled gates all provider traffic.
	ExternalSendEnabled bool
	// AllowUnknownDuration permits sends for clips without a reported duration.
	AllowUnknownDuration bool
	// PlaceholderOnDisabled completes jobs with a placeholder transcript
	// instead of no_server_configured when sending is disabled.
	PlaceholderOnDisabled bool
	// AutoDeleteAudio removes the audio asset after successful completion.
	AutoDeleteAudio bool
	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration
}

// Processor runs the per-job policy and provider call.
type Processor struct {
	cfg      Config
	store    job.Store
	ledger   *quota.Ledger
	provider transcription.Provider // nil when no endpoint is configured
	blobs    storage.Storage
	sched    scheduler.Scheduler
	log      *logger.Logger

	now func() time.Time
}

// NewProcessor wires the worker. provider may be nil when no endpoint is
// configured; sched is only used for operator reruns.
func NewProcessor(cfg Config, store job.Store, ledger *quota.Ledger, provider transcription.Provider, blobs storage.Storage, log *logger.Logger) *Processor {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 180 * time.Second
	}
	return &Processor{
		cfg:      cfg,
		store:    store,
		ledger:   ledger,
		provider: provider,
		blobs:    blobs,
		log:      log.WithComponent("worker"),
		now:      time.Now,
	}
}

// SetScheduler attaches the scheduler used for reruns. Separate from the
// constructor because the scheduler itself dispatches into Process.
func (p *Processor) SetScheduler(s scheduler.Scheduler) { p.sched = s }

// Process executes one dispatch for the job named by task. All outcomes are
// written to the job store; Process itself never returns an error.
func (p *Processor) Process(ctx context.Context, task scheduler.Task) {
	log := p.log.WithFields(logger.Fields(logger.FieldJobID, task.JobID))

	claimed, err := p.claim(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			log.Warn("dispatched job no longer tracked")
			return
		}
		log.Error("claim failed", logger.ErrorFields("claim", err))
		return
	}
	if claimed == nil {
		// Redelivery of a job already in flight or settled.
		log.Debug("dispatch ignored, job not queued")
		return
	}

	outcome := p.run(ctx, claimed, log)
	log.Info("job settled", logger.Fields(logger.FieldStatus, string(outcome)))
}

// claim transitions the job from queued to processing. It returns nil when
// the job is in any other state, which makes redelivered dispatches no-ops.
func (p *Processor) claim(ctx context.Context, id string) (*job.Job, error) {
	var skipped bool
	j, err := p.store.Update(ctx, id, func(j *job.Job) error {
		if j.Status != job.StatusQueued {
			skipped = true
			return nil
		}
		started := p.now()
		j.Status = job.StatusProcessing
		j.StartedAt = &started
		j.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped {
		return nil, nil
	}
	return j, nil
}

// run applies the processing policy to a claimed job and returns the
// terminal status it settled in.
func (p *Processor) run(ctx context.Context, j *job.Job, log *logger.Logger) job.Status {
	// Sending disabled or no endpoint: either settle as unconfigured or,
	// in permissive deployments, complete with a placeholder transcript.
	if !p.cfg.ExternalSendEnabled || p.provider == nil {
		if p.cfg.PlaceholderOnDisabled {
			return p.settle(ctx, j.ID, func(j *job.Job) {
				j.Status = job.StatusCompleted
				j.Transcript = PlaceholderTranscript
				completed := p.now()
				j.CompletedAt = &completed
			})
		}
		return p.settle(ctx, j.ID, func(j *job.Job) {
			j.Status = job.StatusNoServerConfigured
		})
	}

	// Unknown duration cannot be charged; without the permissive policy the
	// provider is never contacted.
	if j.DurationSeconds <= 0 && !p.cfg.AllowUnknownDuration {
		return p.settle(ctx, j.ID, func(j *job.Job) {
			j.Status = job.StatusNeedsDuration
			j.Error = "clip duration is unknown and unknown-duration sends are disallowed"
		})
	}

	minutes := quota.MinutesToCharge(j.DurationSeconds)

	// Quota gate. A configured quota of zero never fits a charged job.
	if minutes > 0 {
		fits, err := p.ledger.Allows(ctx, minutes)
		if err != nil {
			return p.settle(ctx, j.ID, func(j *job.Job) {
				j.Status = job.StatusError
				j.Error = fmt.Sprintf("quota check failed: %v", err)
			})
		}
		if !fits {
			return p.settle(ctx, j.ID, func(j *job.Job) {
				j.Status = job.StatusBlockedQuota
			})
		}
	}

	// The clip must still be present and readable.
	audio, err := p.blobs.Download(ctx, j.FilePath)
	if err != nil {
		return p.settle(ctx, j.ID, func(j *job.Job) {
			j.Status = job.StatusError
			j.Error = fmt.Sprintf("audio file not found: %s", j.FilePath)
		})
	}
	defer audio.Close()

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	resp, err := p.provider.Transcribe(callCtx, transcription.Request{
		Audio:    audio,
		FileName: j.FilePath,
		Language: j.Language,
		JobID:    j.ID,
	})
	if err != nil {
		return p.settleProviderFailure(ctx, j.ID, err)
	}

	status := p.settle(ctx, j.ID, func(j *job.Job) {
		j.Status = job.StatusCompleted
		j.Transcript = util.SanitizeTranscript(resp.Transcript)
		j.Segments = resp.Segments
		j.QuotaMinutesCounted = minutes
		completed := p.now()
		j.CompletedAt = &completed
	})
	if status != job.StatusCompleted {
		return status
	}

	// Charge after the transcript is stored. Reruns of completed jobs charge
	// again; that matches the admin-facing usage numbers of the original
	// behavior and is deliberately not deduplicated here.
	if minutes > 0 {
		if _, err := p.ledger.AddUsage(ctx, minutes); err != nil {
			log.Error("quota charge failed", logger.ErrorFields("add_usage", err))
		}
	}

	if p.cfg.AutoDeleteAudio {
		if err := p.blobs.Delete(ctx, j.FilePath); err != nil {
			log.Warn("auto-delete failed", logger.ErrorFields("delete_audio", err))
		}
	}
	return status
}

// settleProviderFailure maps provider error types to terminal statuses.
func (p *Processor) settleProviderFailure(ctx context.Context, id string, err error) job.Status {
	var httpErr *transcription.HTTPError
	var invalidErr *transcription.InvalidResponseError

	switch {
	case errors.As(err, &httpErr):
		return p.settle(ctx, id, func(j *job.Job) {
			j.Status = job.StatusError
			j.Error = fmt.Sprintf("provider returned HTTP %d: %s", httpErr.StatusCode, httpErr.Body)
		})
	case errors.As(err, &invalidErr):
		return p.settle(ctx, id, func(j *job.Job) {
			j.Status = job.StatusInvalidResponse
			j.Error = "provider response carries no transcript"
			j.ResponseRaw = invalidErr.Body
		})
	default:
		return p.settle(ctx, id, func(j *job.Job) {
			j.Status = job.StatusError
			j.Error = fmt.Sprintf("provider call failed: %v", err)
		})
	}
}

// settle writes a terminal transition and returns the resulting status.
func (p *Processor) settle(ctx context.Context, id string, mutate func(*job.Job)) job.Status {
	updated, err := p.store.Update(ctx, id, func(j *job.Job) error {
		mutate(j)
		return nil
	})
	if err != nil {
		p.log.Error("settle failed", logger.ErrorFields("settle", err))
		return job.StatusError
	}
	return updated.Status
}

// Rerun resets a job to queued from any state and schedules a fresh
// dispatch. This is the only transition that does not originate from
// processing. The audio asset must still be present.
func (p *Processor) Rerun(ctx context.Context, id string) error {
	j, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}

	exists, err := p.blobs.Exists(ctx, j.FilePath)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("worker: audio asset missing for job %s", id)
	}

	// The reset drops every prior outcome; a poller must never see a queued
	// job carrying a stale transcript or charge.
	if _, err := p.store.Update(ctx, id, func(j *job.Job) error {
		j.Status = job.StatusQueued
		j.Error = ""
		j.Transcript = ""
		j.Segments = nil
		j.ResponseRaw = ""
		j.QuotaMinutesCounted = 0
		j.StartedAt = nil
		j.CompletedAt = nil
		return nil
	}); err != nil {
		return err
	}

	if p.sched == nil {
		return fmt.Errorf("worker: no scheduler attached")
	}
	return p.sched.ScheduleTranscribe(ctx, scheduler.DefaultDispatchDelay, scheduler.Task{
		JobID:    id,
		FilePath: j.FilePath,
	})
}
