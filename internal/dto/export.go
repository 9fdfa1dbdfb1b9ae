package dto

import (
	"time"

	"github.com/slotwise/timetable-merge-api/internal/models"
)

// ExportRequest asks for a rendered document of a stored run. When Source is
// set only that source grouping is rendered; otherwise the whole run is
// exported with a Source column.
type ExportRequest struct {
	RunID  string              `json:"runId" validate:"required"`
	Source string              `json:"source" validate:"omitempty,max=255"`
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse reports the lifecycle of an export job.
type ExportJobResponse struct {
	JobID     string              `json:"jobId"`
	RunID     string              `json:"runId"`
	Source    string              `json:"source,omitempty"`
	Format    models.ExportFormat `json:"format"`
	Status    models.ExportStatus `json:"status"`
	URL       string              `json:"url,omitempty"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
	Error     string              `json:"error,omitempty"`
}
