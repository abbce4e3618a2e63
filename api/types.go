package api

import (
	"time"

	"portsweep/output"
	"portsweep/scanner"
)

// Task lifecycle states.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskCancelled = "cancelled"
	TaskFailed    = "failed"
)

// Progress reports how many ports of the range have been classified.
type Progress struct {
	Done  int `json:"done" example:"512"`
	Total int `json:"total" example:"1024"`
}

// ScanTask represents a scanning job managed by the API service.
type ScanTask struct {
	// ID is the immutable identifier of the scan task (UUID v4).
	ID string `json:"id" format:"uuid" example:"a3f5c62e-1234-4f72-a84a-1c2d3e4f5678"`
	// Status reflects the asynchronous lifecycle state of the task.
	Status string `json:"status" enums:"pending,running,completed,cancelled,failed" example:"running"`
	// Target is the IPv4 or IPv6 literal being scanned.
	Target string `json:"target" example:"192.0.2.10"`
	// Ports is the inclusive range actually scanned, "start-end".
	Ports          string `json:"ports" example:"1-1024"`
	TimeoutSeconds int    `json:"timeout_seconds" example:"2"`
	Concurrency    int    `json:"concurrency" example:"100"`
	// CancelRequested is set once a client asked for cancellation.
	CancelRequested bool     `json:"cancel_requested,omitempty"`
	Progress        Progress `json:"progress"`
	// Summary counts outcomes per status once the task reached a terminal state.
	Summary *scanner.Summary `json:"summary,omitempty"`
	// Complete is false for cancelled scans: ports never classified are omitted from Results.
	Complete bool `json:"complete"`
	// Results are ordered by ascending port.
	Results     []output.Record `json:"results,omitempty"`
	CreatedAt   time.Time       `json:"created_at" format:"date-time" example:"2024-01-02T15:04:05Z"`
	StartedAt   *time.Time      `json:"started_at,omitempty" format:"date-time"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" format:"date-time"`
	// Error contains context when a task fails.
	Error string `json:"error,omitempty" example:"ports \"90-80\": invalid port range"`
}

// Terminal reports whether the task reached a final state.
func (t *ScanTask) Terminal() bool {
	switch t.Status {
	case TaskCompleted, TaskCancelled, TaskFailed:
		return true
	}
	return false
}

// CreateScanRequest is the payload for creating new scan tasks.
type CreateScanRequest struct {
	// Target is the IP literal to probe.
	Target string `json:"target" binding:"required,ip" example:"192.0.2.10"`
	// Ports is an inclusive "start-end" range. Empty scans 1-1024.
	Ports string `json:"ports" example:"20-1024"`
	// TimeoutSeconds bounds every single probe. Zero uses the server default.
	TimeoutSeconds int `json:"timeout_seconds" binding:"omitempty,gt=0" example:"2"`
	// Concurrency caps probes in flight. Zero uses the server default.
	Concurrency int `json:"concurrency" binding:"omitempty,gt=0" example:"100"`
}

// ScanAcceptedResponse captures the asynchronous acknowledgement returned after job submission.
type ScanAcceptedResponse struct {
	ID     string `json:"id" format:"uuid" example:"a3f5c62e-1234-4f72-a84a-1c2d3e4f5678"`
	Status string `json:"status" example:"pending"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	ID              string `json:"id" format:"uuid" example:"a3f5c62e-1234-4f72-a84a-1c2d3e4f5678"`
	Status          string `json:"status" example:"running"`
	CancelRequested bool   `json:"cancel_requested" example:"true"`
}

// HealthResponse reports backend connectivity.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// ErrorResponse provides a consistent structure for API error payloads.
type ErrorResponse struct {
	Error string `json:"error" example:"task not found"`
}
