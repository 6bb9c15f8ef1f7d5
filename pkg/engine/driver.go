package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/deckhand/pkg/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Recorder receives the run timeline. The SQLite journal implements it.
type Recorder interface {
	RunStarted(ctx context.Context, summary *RunSummary) error
	StepFinished(ctx context.Context, result StepResult) error
	NotificationFired(ctx context.Context, result NotificationResult) error
	RunFinished(ctx context.Context, summary *RunSummary) error
}

// Options configures a Driver.
type Options struct {
	// DryRun checks every step and reports what would change without
	// applying anything or firing notification handlers.
	DryRun bool

	Logger   zerolog.Logger
	Recorder Recorder
	Metrics  *telemetry.Metrics
	Tracer   *telemetry.Tracer
}

// Driver executes units sequentially: each step runs to completion before the
// next begins, and the first failure aborts the run without rollback.
type Driver struct {
	opts   Options
	logger zerolog.Logger
}

// NewDriver creates a new convergence driver.
func NewDriver(opts Options) *Driver {
	return &Driver{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "driver").Logger(),
	}
}

// run carries the per-run state through the recursive walk.
type run struct {
	summary  *RunSummary
	graph    *Graph
	deferred []edge
}

// Run converges the given root units in declaration order.
func (d *Driver) Run(ctx context.Context, units []*Unit) (*RunSummary, error) {
	r := &run{
		summary: &RunSummary{
			RunID:     uuid.New().String(),
			Status:    RunStatusRunning,
			DryRun:    d.opts.DryRun,
			StartedAt: time.Now(),
		},
		graph: NewGraph(d.opts.DryRun),
	}

	log := d.logger.With().Str("run_id", r.summary.RunID).Bool("dry_run", d.opts.DryRun).Logger()
	ctx = log.WithContext(ctx)

	if d.opts.Tracer != nil {
		var span trace.Span
		ctx, span = d.opts.Tracer.StartRunSpan(ctx, r.summary.RunID)
		defer span.End()
	}

	mode := "apply"
	if d.opts.DryRun {
		mode = "dry_run"
	}
	d.opts.Metrics.RecordRunStarted(mode)

	if err := d.prepare(r, units); err != nil {
		return d.finish(ctx, r, err)
	}

	if d.opts.Recorder != nil {
		if err := d.opts.Recorder.RunStarted(ctx, r.summary); err != nil {
			return d.finish(ctx, r, fmt.Errorf("failed to record run start: %w", err))
		}
	}

	log.Info().Int("units", countUnits(units)).Msg("Convergence started")

	for _, u := range units {
		if err := d.apply(ctx, r, u, nil); err != nil {
			return d.finish(ctx, r, err)
		}
	}

	// Delayed edges of root units have no container and fire at the end
	// of the run.
	for _, e := range r.deferred {
		r.graph.Notify(e.source, e.target, e.action)
	}
	for _, src := range r.graph.Sources() {
		if err := d.flush(ctx, r, src); err != nil {
			return d.finish(ctx, r, err)
		}
	}

	return d.finish(ctx, r, nil)
}

// prepare registers handlers and checks that every declared notification
// has a target, so wiring mistakes surface before any side effect.
func (d *Driver) prepare(r *run, units []*Unit) error {
	for _, root := range units {
		root.Walk(func(u *Unit) {
			if u.Handler != nil {
				r.graph.Register(u.Resource, u.Handler)
			}
		})
	}

	var err error
	for _, root := range units {
		root.Walk(func(u *Unit) {
			if err != nil {
				return
			}
			check := func(n Notification) {
				if err == nil && !r.graph.Has(n.Target) {
					err = NewValidationError(
						fmt.Sprintf("notification %s targets undeclared resource %s", n.Action, n.Target), nil).
						WithCode(ErrCodeUnknownTarget).
						WithResource(u.Resource.String())
				}
			}
			for _, n := range u.Notifies {
				check(n)
			}
			for _, s := range u.Steps {
				if nt, ok := s.(Notifier); ok {
					for _, n := range nt.Notifications() {
						check(n)
					}
				}
			}
		})
	}
	return err
}

// apply runs one unit's steps and flushes its queue, then runs its children
// and flushes again for the delayed edges they queued.
func (d *Driver) apply(ctx context.Context, r *run, u *Unit, parent *Unit) error {
	log := zerolog.Ctx(ctx).With().
		Str("resource", u.Resource.String()).
		Str("action", string(u.Action)).
		Logger()

	if d.opts.Tracer != nil {
		var span trace.Span
		ctx, span = d.opts.Tracer.StartResourceSpan(ctx, u.Resource.String(), string(u.Action))
		defer span.End()
	}

	unitChanged := false
	for _, step := range u.Steps {
		changed, err := d.runStep(ctx, r, u, step)
		if err != nil {
			log.Error().Err(err).Str("step", step.Name()).Msg("Step failed")
			return err
		}
		if !changed {
			continue
		}
		unitChanged = true
		if nt, ok := step.(Notifier); ok {
			for _, n := range nt.Notifications() {
				if n.Trigger == TriggerOnChange || n.Trigger == "" {
					d.queue(r, u, parent, n)
				}
			}
		}
	}

	for _, n := range u.Notifies {
		if n.Trigger == TriggerAlways || unitChanged {
			d.queue(r, u, parent, n)
		}
	}

	log.Debug().Bool("changed", unitChanged).Msg("Resource converged")

	// The unit's own edges fire before any child runs, e.g. a restart
	// triggered by the server config precedes job loads.
	if err := d.flush(ctx, r, u.Resource); err != nil {
		return err
	}

	for _, child := range u.Children {
		if err := d.apply(ctx, r, child, u); err != nil {
			return err
		}
	}

	// Delayed edges queued by the children.
	return d.flush(ctx, r, u.Resource)
}

func (d *Driver) queue(r *run, u, parent *Unit, n Notification) {
	if !n.Delayed {
		r.graph.Notify(u.Resource, n.Target, n.Action)
		return
	}
	if parent == nil {
		r.deferred = append(r.deferred, edge{source: u.Resource, target: n.Target, action: n.Action})
		return
	}
	r.graph.Notify(parent.Resource, n.Target, n.Action)
}

func (d *Driver) runStep(ctx context.Context, r *run, u *Unit, step Step) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	start := time.Now()
	res := StepResult{
		RunID:    r.summary.RunID,
		Resource: u.Resource,
		Action:   u.Action,
		Step:     step.Name(),
		DryRun:   d.opts.DryRun,
	}

	changed, err := step.Check(ctx)
	if err == nil && changed && !d.opts.DryRun {
		err = step.Apply(ctx)
	}
	if err != nil {
		err = Attach(err, u.Resource.String(), step.Name())
		res.Error = err.Error()
		changed = false
	}

	res.Changed = changed
	res.Duration = time.Since(start)
	r.summary.Steps = append(r.summary.Steps, res)

	d.opts.Metrics.RecordStep(string(u.Resource.Kind), string(u.Action), changed, res.Duration)
	zerolog.Ctx(ctx).Debug().
		Str("resource", u.Resource.String()).
		Str("step", res.Step).
		Bool("changed", changed).
		Dur("duration", res.Duration).
		Msg("Step finished")

	if d.opts.Recorder != nil {
		if rerr := d.opts.Recorder.StepFinished(ctx, res); rerr != nil && err == nil {
			err = fmt.Errorf("failed to record step: %w", rerr)
		}
	}

	return changed, err
}

func (d *Driver) flush(ctx context.Context, r *run, source ResourceID) error {
	if r.graph.Pending(source) == 0 {
		return nil
	}

	if d.opts.Tracer != nil {
		var span trace.Span
		ctx, span = d.opts.Tracer.StartSpan(ctx, "notifications.flush", telemetry.AttrResource.String(source.String()))
		defer span.End()
	}

	results, err := r.graph.Flush(ctx, source)
	for _, res := range results {
		res.RunID = r.summary.RunID
		r.summary.Notifications = append(r.summary.Notifications, res)
		d.opts.Metrics.RecordNotification(string(res.Action), res.Changed)

		zerolog.Ctx(ctx).Info().
			Str("source", res.Source.String()).
			Str("target", res.Target.String()).
			Str("notification", string(res.Action)).
			Int("collapsed", res.Collapsed).
			Bool("changed", res.Changed).
			Msg("Notification fired")

		if d.opts.Recorder != nil {
			if rerr := d.opts.Recorder.NotificationFired(ctx, res); rerr != nil && err == nil {
				err = fmt.Errorf("failed to record notification: %w", rerr)
			}
		}
	}
	return err
}

func (d *Driver) finish(ctx context.Context, r *run, err error) (*RunSummary, error) {
	s := r.summary
	s.CompletedAt = time.Now()

	switch {
	case err == nil:
		s.Status = RunStatusSucceeded
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.Status = RunStatusCancelled
		s.Error = err.Error()
	default:
		s.Status = RunStatusFailed
		s.Error = err.Error()
		var ee *EngineError
		if errors.As(err, &ee) {
			d.opts.Metrics.RecordError(string(ee.Kind), ee.Code)
		} else {
			d.opts.Metrics.RecordError(string(ErrorKindInternal), "")
		}
	}

	d.opts.Metrics.RecordRunCompleted(string(s.Status), s.Duration())

	if d.opts.Recorder != nil {
		// The run outcome is recorded even when ctx was cancelled.
		if rerr := d.opts.Recorder.RunFinished(context.WithoutCancel(ctx), s); rerr != nil {
			zerolog.Ctx(ctx).Warn().Err(rerr).Msg("Failed to record run outcome")
		}
	}

	ev := zerolog.Ctx(ctx).Info()
	if err != nil {
		ev = zerolog.Ctx(ctx).Error().Err(err)
	}
	ev.Str("status", string(s.Status)).
		Int("changed", s.Changed()).
		Dur("duration", s.Duration()).
		Msg("Convergence finished")

	return s, err
}

func countUnits(units []*Unit) int {
	n := 0
	for _, root := range units {
		root.Walk(func(*Unit) { n++ })
	}
	return n
}
