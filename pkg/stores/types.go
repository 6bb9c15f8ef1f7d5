package stores

import (
	"time"

	"github.com/openfroyo/deckhand/pkg/engine"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is one recorded convergence run.
type Run struct {
	ID          string           `json:"id"`
	Status      engine.RunStatus `json:"status"`
	DryRun      bool             `json:"dry_run"`
	Sources     string           `json:"sources"` // declaration files, comma separated
	Target      string           `json:"target"`  // empty for the local host
	Changed     int              `json:"changed"`
	Error       *string          `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// StepRecord is one executed step of a run.
type StepRecord struct {
	ID         int64         `json:"id"`
	RunID      string        `json:"run_id"`
	Resource   string        `json:"resource"`
	Action     string        `json:"action"`
	Step       string        `json:"step"`
	Changed    bool          `json:"changed"`
	DryRun     bool          `json:"dry_run"`
	Duration   time.Duration `json:"duration"`
	Error      *string       `json:"error,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// NotificationRecord is one fired notification of a run.
type NotificationRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	Action     string    `json:"action"`
	Changed    bool      `json:"changed"`
	Collapsed  int       `json:"collapsed"`
	DryRun     bool      `json:"dry_run"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   string     `json:"details"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// ResourceState is the last known convergence outcome of a resource.
type ResourceState struct {
	Resource   string `json:"resource"` // kind[name]
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	LastAction string `json:"last_action"`
	LastRunID  string `json:"last_run_id"`
	// LastChangedRunID is the last run that changed the resource, if any.
	LastChangedRunID *string   `json:"last_changed_run_id,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}
