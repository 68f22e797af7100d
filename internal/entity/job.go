package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/artisthq/exportd/constants"
)

// ExportJob tracks one in-flight or finished export for data transfer between layers.
type ExportJob struct {
	ID            uuid.UUID           `json:"id"`
	CallerID      string              `json:"caller_id"`
	Request       ExportRequest       `json:"request"`
	Status        constants.JobStatus `json:"status"`
	Progress      int                 `json:"progress"`
	RecordCount   *int64              `json:"record_count,omitempty"`
	FileSizeBytes *int64              `json:"file_size_bytes,omitempty"`
	FilePath      *string             `json:"file_path,omitempty"`
	ErrorDetail   *string             `json:"error_detail,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	StartedAt     *time.Time          `json:"started_at,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

// NewExportJob builds a pending job for an already-validated request.
func NewExportJob(callerID string, req ExportRequest) *ExportJob {
	return &ExportJob{
		ID:        uuid.New(),
		CallerID:  callerID,
		Request:   req,
		Status:    constants.JobStatusPending,
		Progress:  0,
		CreatedAt: time.Now().UTC(),
	}
}
