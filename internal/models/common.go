package models

import "time"

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// ExportFormat enumerates supported export renderings.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus tracks an export job through its lifecycle.
type ExportStatus string

const (
	ExportStatusQueued   ExportStatus = "QUEUED"
	ExportStatusRunning  ExportStatus = "RUNNING"
	ExportStatusFinished ExportStatus = "FINISHED"
	ExportStatusFailed   ExportStatus = "FAILED"
)

// ExportJob is the in-memory record of one export rendering request.
type ExportJob struct {
	ID           string       `json:"id"`
	RunID        string       `json:"runId"`
	Source       string       `json:"source,omitempty"`
	Format       ExportFormat `json:"format"`
	Status       ExportStatus `json:"status"`
	ResultPath   string       `json:"-"`
	ResultURL    string       `json:"resultUrl,omitempty"`
	ErrorMessage string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	FinishedAt   *time.Time   `json:"finishedAt,omitempty"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
}
