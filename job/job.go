// Package job defines the transcription job model and its durable store.
//
// A Job is one tracked audio-to-text task. The store exclusively owns the
// job lifecycle; audio bytes live in the storage backend and are referenced
// by path only.
package job

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a transcription job.
type Status string

const (
	// StatusQueued means the job is created and waiting for dispatch.
	StatusQueued Status = "queued"
	// StatusProcessing means a worker execution is in flight.
	StatusProcessing Status = "processing"
	// StatusCompleted means a transcript was produced and stored.
	StatusCompleted Status = "completed"
	// StatusError means the provider call failed (transport or non-2xx).
	StatusError Status = "error"
	// StatusInvalidResponse means the provider answered 2xx without a transcript.
	StatusInvalidResponse Status = "invalid_response"
	// StatusNeedsDuration means the clip duration is unknown and policy
	// disallows unknown-duration sends.
	StatusNeedsDuration Status = "needs_duration"
	// StatusBlockedQuota means charging the clip would exceed the monthly quota.
	StatusBlockedQuota Status = "blocked_quota"
	// StatusNoServerConfigured means no provider endpoint is configured or
	// external sending is administratively disabled.
	StatusNoServerConfigured Status = "no_server_configured"
	// StatusUnknown is reported for ids that do not match a tracked job.
	// It is never stored.
	StatusUnknown Status = "unknown"
)

// Terminal reports whether the status can only be left by an explicit rerun.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusInvalidResponse,
		StatusNeedsDuration, StatusBlockedQuota, StatusNoServerConfigured:
		return true
	}
	return false
}

// Job is one tracked audio-to-text task and its lifecycle state.
type Job struct {
	// ID is the opaque unique identifier, stable across the job's life.
	ID string `json:"id"`
	// FilePath is the storage-relative path of the stored audio clip.
	FilePath string `json:"file_path"`
	// FileURL is the externally visible location of the stored audio, if any.
	FileURL string `json:"file_url,omitempty"`
	// Language is a BCP-47-like tag, defaulted to the site language on intake.
	Language string `json:"language"`
	// DurationSeconds is the clip duration as reported by the intake client.
	// Zero or negative means unknown.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// Transcript is the text result, present only when Status is completed.
	Transcript string `json:"transcript,omitempty"`
	// Segments is opaque per-segment timing data passed through from the provider.
	Segments json.RawMessage `json:"segments,omitempty"`
	// Error is a human-readable diagnostic, present on failure statuses.
	Error string `json:"error,omitempty"`
	// ResponseRaw is the raw provider body, retained on invalid_response for
	// operator debugging. Never surfaced to submitting clients.
	ResponseRaw string `json:"response_raw,omitempty"`
	// QuotaMinutesCounted is the minutes charged against the monthly ledger
	// for this job. Zero if not charged.
	QuotaMinutesCounted int `json:"quota_minutes_counted"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
