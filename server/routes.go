package server

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/skillsenselab/transcribed/errors"
	"github.com/skillsenselab/transcribed/intake"
	"github.com/skillsenselab/transcribed/job"
	"github.com/skillsenselab/transcribed/logger"
	"github.com/skillsenselab/transcribed/quota"
	"github.com/skillsenselab/transcribed/server/middleware"
	"github.com/skillsenselab/transcribed/status"
	"github.com/skillsenselab/transcribed/storage"
	"github.com/skillsenselab/transcribed/transcription"
	"github.com/skillsenselab/transcribed/version"
	"github.com/skillsenselab/transcribed/worker"
)

// Handlers bundles the services behind the HTTP routes.
type Handlers struct {
	ServiceName string
	AdminToken  string

	Intake    *intake.Service
	Status    *status.Service
	Processor *worker.Processor
	Store     job.Store
	Blobs     storage.Storage
	Ledger    *quota.Ledger
	Provider  transcription.Provider // nil when no endpoint is configured

	Log *logger.Logger
}

// Register mounts all routes on the engine. Admin routes are guarded by the
// operator token; an empty token leaves them mounted but unreachable.
func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/health", h.health)
	engine.POST("/transcribe", h.transcribe)
	engine.GET("/status/:id", h.jobStatus)

	admin := engine.Group("/admin", middleware.RequireToken(h.AdminToken))
	admin.GET("/jobs", h.listJobs)
	admin.DELETE("/jobs/:id", h.deleteJob)
	admin.POST("/jobs/:id/rerun", h.rerunJob)
	admin.GET("/provider/test", h.providerTest)
	admin.GET("/quota", h.quotaStatus)
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.ServiceName,
		"version": version.Get(),
	})
}

// transcribeForm carries the non-file fields of a submission.
type transcribeForm struct {
	Language string  `form:"language" binding:"omitempty,bcp47_language_tag"`
	Duration float64 `form:"duration" binding:"omitempty,gte=0"`
}

func (h *Handlers) transcribe(c *gin.Context) {
	var form transcribeForm
	if err := c.ShouldBind(&form); err != nil {
		// The transport cap tripping mid-parse is an oversized upload, not
		// malformed input.
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RespondWithError(c, apperrors.PayloadTooLarge(maxErr.Limit))
			return
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			RespondWithError(c, apperrors.InvalidInput(verrs[0].Field(), "value does not satisfy "+verrs[0].Tag()))
			return
		}
		RespondWithError(c, apperrors.InvalidInput("form", err.Error()))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		RespondWithError(c, apperrors.MissingFile())
		return
	}
	file, err := header.Open()
	if err != nil {
		RespondWithError(c, apperrors.UploadError(err))
		return
	}
	defer file.Close()

	result, err := h.Intake.Submit(c.Request.Context(), intake.Submission{
		FileName:        header.Filename,
		File:            file,
		Language:        form.Language,
		DurationSeconds: form.Duration,
		ClientIP:        c.ClientIP(),
		UserAgent:       c.GetHeader("User-Agent"),
		Authenticated:   h.authenticated(c),
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *Handlers) jobStatus(c *gin.Context) {
	view := h.Status.GetStatus(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, view)
}

// authenticated reports whether the request presented the operator token.
// Operator submissions bypass the anonymous rate limit.
func (h *Handlers) authenticated(c *gin.Context) bool {
	if h.AdminToken == "" {
		return false
	}
	presented, ok := middleware.BearerToken(c.Request)
	return ok && subtle.ConstantTimeCompare([]byte(presented), []byte(h.AdminToken)) == 1
}
