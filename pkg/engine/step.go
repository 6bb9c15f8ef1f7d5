package engine

import "context"

// Step is one typed convergence operation, e.g. "write framework.properties".
// Check must be free of side effects; Apply is called only when Check
// reported that a change is needed.
type Step interface {
	// Name describes the step for logs and the run journal.
	Name() string

	// Check reports whether the observed state differs from the target state.
	Check(ctx context.Context) (bool, error)

	// Apply performs the minimal operations that close the gap.
	Apply(ctx context.Context) error
}

// Notifier is implemented by steps that declare notifications.
type Notifier interface {
	Notifications() []Notification
}

// FuncStep adapts plain functions to the Step interface.
type FuncStep struct {
	Label    string
	CheckFn  func(ctx context.Context) (bool, error)
	ApplyFn  func(ctx context.Context) error
	Notifies []Notification
}

// Name implements Step.
func (s *FuncStep) Name() string { return s.Label }

// Check implements Step. A nil CheckFn means the step always needs applying.
func (s *FuncStep) Check(ctx context.Context) (bool, error) {
	if s.CheckFn == nil {
		return true, nil
	}
	return s.CheckFn(ctx)
}

// Apply implements Step.
func (s *FuncStep) Apply(ctx context.Context) error {
	if s.ApplyFn == nil {
		return nil
	}
	return s.ApplyFn(ctx)
}

// Notifications implements Notifier.
func (s *FuncStep) Notifications() []Notification { return s.Notifies }

// Unit is the ordered list of steps that applies one action to one resource,
// plus the child units that converge after it. A unit's queued notifications
// flush right after its own steps, before its first child. Delayed edges
// from its children flush once the last child completes, before the next
// sibling starts.
type Unit struct {
	Resource ResourceID
	Action   Action
	Steps    []Step

	// Notifies are queued once the unit's own steps finish, according to
	// each notification's trigger.
	Notifies []Notification

	// Handler serves notifications targeting this resource. Nil means the
	// resource accepts none.
	Handler Handler

	Children []*Unit
}

// Walk visits u and its descendants depth-first in declaration order.
func (u *Unit) Walk(fn func(u *Unit)) {
	fn(u)
	for _, c := range u.Children {
		c.Walk(fn)
	}
}
