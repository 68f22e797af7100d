package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/engine"
	"github.com/artisthq/exportd/internal/entity"
	"github.com/artisthq/exportd/internal/schema"
)

// Request bodies larger than this are rejected outright.
const maxBodyBytes = 1 << 20

// ExportHandler serves the export job API on top of the engine.
type ExportHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewExportHandler(eng *engine.Engine, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{engine: eng, logger: logger}
}

// statusFor maps the engine's error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, common.ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *ExportHandler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", common.RequestIDFromContext(c.Request.Context()),
			"caller", common.CallerIDFromContext(c.Request.Context()),
			"method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// CreateExport handles POST /exports: schema-check the body, decode it and
// hand it to the engine. Accepted jobs come back 202 with the pending job.
func (h *ExportHandler) CreateExport(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.writeError(c, common.ValidationErrorf("read body: %v", err))
		return
	}
	if err := schema.ValidateExportRequest(body); err != nil {
		h.writeError(c, err)
		return
	}
	var req entity.ExportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(c, common.ValidationErrorf("decode body: %v", err))
		return
	}

	job, err := h.engine.Submit(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, createdResponse{
		ExportJob:   *job,
		StatusURL:   "/exports/" + job.ID.String() + "/status",
		DownloadURL: "/exports/" + job.ID.String() + "/download",
	})
}

// createdResponse is the 202 body: the pending job plus where to poll and
// where the artifact will be once the job completes.
type createdResponse struct {
	entity.ExportJob
	StatusURL   string `json:"status_url"`
	DownloadURL string `json:"download_url"`
}

// ListExports handles GET /exports, newest first, scoped to the caller.
func (h *ExportHandler) ListExports(c *gin.Context) {
	jobs, err := h.engine.List(c.Request.Context(), callerFrom(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exports": jobs})
}

// GetStatus handles GET /exports/:id/status.
func (h *ExportHandler) GetStatus(c *gin.Context) {
	id, err := parseJobID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	job, err := h.engine.Get(c.Request.Context(), callerFrom(c).ID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Download handles GET /exports/:id/download. Only completed jobs have an
// artifact; pending/processing is a conflict, failed is not found.
func (h *ExportHandler) Download(c *gin.Context) {
	id, err := parseJobID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	path, format, err := h.engine.Artifact(c.Request.Context(), callerFrom(c).ID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Type", format.ContentType())
	c.FileAttachment(path, "export-"+id.String()+format.Extension())
}

// CancelExport handles DELETE /exports/:id. Cancellation is asynchronous:
// the worker still has to observe it, so success is 202.
func (h *ExportHandler) CancelExport(c *gin.Context) {
	id, err := parseJobID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.engine.Cancel(c.Request.Context(), callerFrom(c).ID, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
}

func parseJobID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, common.ValidationErrorf("malformed export id %q", c.Param("id"))
	}
	return id, nil
}
