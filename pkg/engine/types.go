package engine

import (
	"fmt"
	"time"
)

// Kind is the type of a declared resource.
type Kind string

const (
	KindServer     Kind = "server"
	KindProject    Kind = "project"
	KindJob        Kind = "job"
	KindNodeSource Kind = "node_source"
	KindAcl        Kind = "acl"
	KindUser       Kind = "user"
)

// Validate checks if the resource kind is valid.
func (k Kind) Validate() error {
	switch k {
	case KindServer, KindProject, KindJob, KindNodeSource, KindAcl, KindUser:
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %s", k)
	}
}

// Action is what a convergence unit or a notification asks a resource to do.
type Action string

const (
	// ActionInstall converges a server: packages, accounts, directories,
	// configuration and service.
	ActionInstall Action = "install"

	// ActionEnable converges a child resource to present.
	ActionEnable Action = "enable"

	// ActionDisable removes a child resource when present.
	ActionDisable Action = "disable"

	// ActionReconfigure rewrites only a resource's configuration artifact.
	ActionReconfigure Action = "reconfigure"

	// ActionRestart restarts the service and waits for readiness.
	ActionRestart Action = "restart"

	// ActionRebuildRealm rewrites the authentication realm from all users.
	ActionRebuildRealm Action = "rebuild_realm"

	// ActionNothing declares a resource without acting on it.
	ActionNothing Action = "nothing"
)

// Validate checks if the action is valid.
func (a Action) Validate() error {
	switch a {
	case ActionInstall, ActionEnable, ActionDisable, ActionReconfigure,
		ActionRestart, ActionRebuildRealm, ActionNothing:
		return nil
	default:
		return fmt.Errorf("invalid action: %s", a)
	}
}

// ResourceID identifies a declared resource within one run.
type ResourceID struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// String renders the identity as kind[name], e.g. "project[cron]".
func (id ResourceID) String() string {
	return fmt.Sprintf("%s[%s]", id.Kind, id.Name)
}

// IsZero reports whether the identity is unset.
func (id ResourceID) IsZero() bool {
	return id.Kind == "" && id.Name == ""
}

// RunStatus represents the overall status of a convergence run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// Result is the outcome of applying one action to one resource.
type Result struct {
	Changed bool `json:"changed"`
}

// StepResult records one executed convergence step.
type StepResult struct {
	RunID    string        `json:"run_id"`
	Resource ResourceID    `json:"resource"`
	Action   Action        `json:"action"`
	Step     string        `json:"step"`
	Changed  bool          `json:"changed"`
	DryRun   bool          `json:"dry_run,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// NotificationResult records one fired notification edge.
type NotificationResult struct {
	RunID   string     `json:"run_id"`
	Source  ResourceID `json:"source"`
	Target  ResourceID `json:"target"`
	Action  Action     `json:"action"`
	Changed bool       `json:"changed"`
	// Collapsed counts duplicate edges merged into this firing.
	Collapsed int  `json:"collapsed,omitempty"`
	DryRun    bool `json:"dry_run,omitempty"`
}

// RunSummary is the outcome of a complete convergence run.
type RunSummary struct {
	RunID         string               `json:"run_id"`
	Status        RunStatus            `json:"status"`
	DryRun        bool                 `json:"dry_run"`
	StartedAt     time.Time            `json:"started_at"`
	CompletedAt   time.Time            `json:"completed_at"`
	Steps         []StepResult         `json:"steps"`
	Notifications []NotificationResult `json:"notifications"`
	Error         string               `json:"error,omitempty"`
}

// Changed returns the number of steps and notifications that changed
// something (or would have, in a dry run).
func (s *RunSummary) Changed() int {
	n := 0
	for _, st := range s.Steps {
		if st.Changed {
			n++
		}
	}
	for _, nt := range s.Notifications {
		if nt.Changed {
			n++
		}
	}
	return n
}

// ResourceChanged reports whether any step of the given resource changed.
func (s *RunSummary) ResourceChanged(id ResourceID) bool {
	for _, st := range s.Steps {
		if st.Resource == id && st.Changed {
			return true
		}
	}
	return false
}

// Duration returns how long the run took.
func (s *RunSummary) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.CompletedAt.Sub(s.StartedAt)
}
