package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/skillsenselab/transcribed/errors"
	"github.com/skillsenselab/transcribed/job"
	"github.com/skillsenselab/transcribed/logger"
	"github.com/skillsenselab/transcribed/quota"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// adminJobView is the operator-facing projection of a job. Unlike the polling
// view it includes timing, duration and charge information.
type adminJobView struct {
	JobID               string     `json:"attachment_id"`
	Status              job.Status `json:"status"`
	Language            string     `json:"language,omitempty"`
	DurationSeconds     float64    `json:"duration_seconds,omitempty"`
	QuotaMinutesCounted int        `json:"quota_minutes_counted,omitempty"`
	Error               string     `json:"error,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

func adminView(j *job.Job) adminJobView {
	return adminJobView{
		JobID:               j.ID,
		Status:              j.Status,
		Language:            j.Language,
		DurationSeconds:     j.DurationSeconds,
		QuotaMinutesCounted: j.QuotaMinutesCounted,
		Error:               j.Error,
		CreatedAt:           j.CreatedAt,
		StartedAt:           j.StartedAt,
		CompletedAt:         j.CompletedAt,
	}
}

func (h *Handlers) listJobs(c *gin.Context) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(c, "page_size", defaultPageSize)
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	jobs, total, err := h.Store.List(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		RespondWithError(c, apperrors.Internal(err))
		return
	}

	views := make([]adminJobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, adminView(j))
	}

	totalPages := (total + pageSize - 1) / pageSize
	RespondOKWithMeta(c, views, &Meta{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	})
}

// deleteJob removes the tracked job and its stored audio asset. The transcript
// is gone once this returns; there is no soft delete.
func (h *Handlers) deleteJob(c *gin.Context) {
	id := c.Param("id")

	j, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			RespondWithError(c, apperrors.NotFound("job", id))
			return
		}
		RespondWithError(c, apperrors.Internal(err))
		return
	}

	if err := h.Blobs.Delete(c.Request.Context(), j.FilePath); err != nil {
		// The asset may already be gone (auto-delete); removal proceeds.
		h.Log.Warn("audio asset delete failed", logger.ErrorFields("delete_audio", err))
	}
	if err := h.Store.Delete(c.Request.Context(), id); err != nil {
		RespondWithError(c, apperrors.Internal(err))
		return
	}
	RespondNoContent(c)
}

func (h *Handlers) rerunJob(c *gin.Context) {
	id := c.Param("id")

	if err := h.Processor.Rerun(c.Request.Context(), id); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			RespondWithError(c, apperrors.NotFound("job", id))
			return
		}
		RespondWithError(c, apperrors.InvalidInput("attachment_id", err.Error()).WithCause(err))
		return
	}
	RespondOK(c, gin.H{
		"attachment_id": id,
		"status":        job.StatusQueued,
	})
}

// providerTest checks reachability of the configured transcription endpoint
// without submitting any audio.
func (h *Handlers) providerTest(c *gin.Context) {
	if h.Provider == nil {
		RespondOK(c, gin.H{"configured": false})
		return
	}

	code, err := h.Provider.Ping(c.Request.Context())
	result := gin.H{
		"configured": true,
		"provider":   h.Provider.Name(),
		"reachable":  err == nil,
	}
	if code != 0 {
		result["status_code"] = code
	}
	if err != nil {
		result["error"] = err.Error()
	}
	RespondOK(c, result)
}

func (h *Handlers) quotaStatus(c *gin.Context) {
	used, err := h.Ledger.Usage(c.Request.Context())
	if err != nil {
		RespondWithError(c, apperrors.Internal(err))
		return
	}

	quotaMinutes := h.Ledger.QuotaMinutes()
	percent := 0
	if quotaMinutes > 0 {
		percent = used * 100 / quotaMinutes
	}
	RespondOK(c, gin.H{
		"month":         quota.MonthKey(time.Now()),
		"used_minutes":  used,
		"quota_minutes": quotaMinutes,
		"percent":       percent,
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
