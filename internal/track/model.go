package track

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true for statuses that represent a final state.
// A terminal record only changes again through an explicit retry run.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record tracks the generation lifecycle of one player image.
// There is at most one Record per player; reruns upsert rather than insert.
type Record struct {
	PlayerID   int64     `json:"player_id"`
	Status     Status    `json:"status"`
	SourceURL  string    `json:"source_image_url"`
	Style      string    `json:"style"`
	Mode       string    `json:"mode"`
	RetryCount int       `json:"retry_count"`
	ErrorLog   []string  `json:"error_log"`
	OutputPath string    `json:"output_path,omitempty"`
	ResultURL  string    `json:"result_url,omitempty"`
	Duration   *float64  `json:"duration_seconds,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks the cross-field invariants a well-formed record must hold.
func (r *Record) Validate() error {
	switch r.Status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.RetryCount < 0 {
		return errors.New("retry_count must not be negative")
	}
	if r.Status == StatusCompleted {
		if r.OutputPath == "" {
			return errors.New("completed record has no output_path")
		}
		if r.Duration == nil || *r.Duration < 0 {
			return errors.New("completed record has no valid duration")
		}
	}
	if r.Status == StatusFailed {
		if len(r.ErrorLog) == 0 {
			return errors.New("failed record has empty error_log")
		}
		if r.RetryCount < 1 {
			return errors.New("failed record has retry_count < 1")
		}
	}
	return nil
}
