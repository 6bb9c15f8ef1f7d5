package drift

import (
	"context"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/resources"
	"github.com/openfroyo/deckhand/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Detection statuses.
const (
	StatusInSync  = "in_sync"
	StatusDrifted = "drifted"
	StatusAbsent  = "absent"
)

// Report is the outcome of comparing one declared job with the server.
type Report struct {
	Job     engine.ResourceID `json:"job"`
	Project string            `json:"project"`
	Name    string            `json:"name"`
	Status  string            `json:"status"`
	Changes []Change          `json:"changes,omitempty"`

	Current *Document `json:"-"`
	Desired *Document `json:"-"`
}

// Differs reports whether the server copy must be replaced.
func (r *Report) Differs() bool { return r.Status != StatusInSync }

// Detector fetches job definitions through the job CLI and compares them
// with their declarations.
type Detector struct {
	cli     host.JobCLI
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// NewDetector creates a detector. metrics may be nil.
func NewDetector(cli host.JobCLI, metrics *telemetry.Metrics, logger zerolog.Logger) *Detector {
	return &Detector{
		cli:     cli,
		metrics: metrics,
		logger:  logger.With().Str("component", "drift").Logger(),
	}
}

// Current fetches and normalizes the server's copy of j.
func (d *Detector) Current(ctx context.Context, j *resources.Job) (*Document, error) {
	data, err := d.cli.List(ctx, j.Project.Name, j.Name, j.Format)
	if err != nil {
		return nil, engine.Attach(err, j.ID.String(), "fetch")
	}
	doc, err := Normalize(j.Format, j.Name, data)
	if err != nil {
		return nil, engine.Attach(err, j.ID.String(), "normalize_current")
	}
	return doc, nil
}

// Desired normalizes the declared content of j.
func (d *Detector) Desired(j *resources.Job) (*Document, error) {
	doc, err := Normalize(j.Format, j.Name, []byte(j.Content))
	if err != nil {
		return nil, engine.Attach(err, j.ID.String(), "normalize_desired")
	}
	if doc.Absent {
		return nil, engine.NewValidationError("declared job content holds no job", nil).
			WithCode(engine.ErrCodeRequired).
			WithResource(j.ID.String()).
			WithOperation("normalize_desired")
	}
	return doc, nil
}

// Check compares the declared job with the server's copy. The desired side
// is normalized first so a bad declaration fails before the server is
// queried.
func (d *Detector) Check(ctx context.Context, j *resources.Job) (*Report, error) {
	desired, err := d.Desired(j)
	if err != nil {
		return nil, err
	}
	current, err := d.Current(ctx, j)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Job:     j.ID,
		Project: j.Project.Name,
		Name:    j.Name,
		Current: current,
		Desired: desired,
	}
	switch {
	case current.Absent:
		r.Status = StatusAbsent
	case Differs(current, desired):
		r.Status = StatusDrifted
	default:
		r.Status = StatusInSync
	}
	if r.Differs() {
		r.Changes = Changes(current, desired)
	}

	d.metrics.RecordDriftDetection(j.Format, r.Status)
	d.logger.Debug().
		Str("resource", j.ID.String()).
		Str("project", r.Project).
		Str("status", r.Status).
		Int("changes", len(r.Changes)).
		Msg("Job compared")
	return r, nil
}

// Push loads the desired document into the server.
func (d *Detector) Push(ctx context.Context, j *resources.Job, desired *Document) error {
	if err := d.cli.Load(ctx, j.Project.Name, desired.Canonical, desired.Format); err != nil {
		return engine.Attach(err, j.ID.String(), "load")
	}
	d.logger.Info().
		Str("resource", j.ID.String()).
		Str("project", j.Project.Name).
		Msg("Job loaded")
	return nil
}
