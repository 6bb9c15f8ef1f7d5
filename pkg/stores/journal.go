package stores

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/rs/zerolog"
)

// JournalOptions describes the runs a journal records.
type JournalOptions struct {
	// Sources are the declaration files being converged.
	Sources []string

	// Target is the remote host, empty for the local one.
	Target string

	Logger zerolog.Logger
}

// Journal records the run timeline into the state database. It implements
// engine.Recorder.
type Journal struct {
	store  *SQLiteStore
	opts   JournalOptions
	logger zerolog.Logger
}

var _ engine.Recorder = (*Journal)(nil)

// NewJournal creates a journal writing to store.
func NewJournal(store *SQLiteStore, opts JournalOptions) *Journal {
	return &Journal{
		store:  store,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "journal").Logger(),
	}
}

// RunStarted implements engine.Recorder.
func (j *Journal) RunStarted(ctx context.Context, summary *engine.RunSummary) error {
	run := &Run{
		ID:        summary.RunID,
		Status:    summary.Status,
		DryRun:    summary.DryRun,
		Sources:   strings.Join(j.opts.Sources, ","),
		Target:    j.opts.Target,
		StartedAt: summary.StartedAt,
	}
	if err := j.store.CreateRun(ctx, run); err != nil {
		return err
	}
	return j.event(ctx, summary.RunID, EventLevelInfo, "run started", map[string]any{
		"dry_run": summary.DryRun,
		"sources": j.opts.Sources,
		"target":  j.opts.Target,
	})
}

// StepFinished implements engine.Recorder. Applied steps also update the
// resource's last known state.
func (j *Journal) StepFinished(ctx context.Context, result engine.StepResult) error {
	rec := &StepRecord{
		RunID:      result.RunID,
		Resource:   result.Resource.String(),
		Action:     string(result.Action),
		Step:       result.Step,
		Changed:    result.Changed,
		DryRun:     result.DryRun,
		Duration:   result.Duration,
		RecordedAt: time.Now(),
	}
	if result.Error != "" {
		rec.Error = &result.Error
	}
	if err := j.store.AppendStep(ctx, rec); err != nil {
		return err
	}
	if result.DryRun || result.Error != "" {
		return nil
	}

	state := &ResourceState{
		Resource:   result.Resource.String(),
		Kind:       string(result.Resource.Kind),
		Name:       result.Resource.Name,
		LastAction: string(result.Action),
		LastRunID:  result.RunID,
		UpdatedAt:  rec.RecordedAt,
	}
	if result.Changed {
		state.LastChangedRunID = &result.RunID
	}
	return j.store.UpsertResourceState(ctx, state)
}

// NotificationFired implements engine.Recorder.
func (j *Journal) NotificationFired(ctx context.Context, result engine.NotificationResult) error {
	return j.store.AppendNotification(ctx, &NotificationRecord{
		RunID:      result.RunID,
		Source:     result.Source.String(),
		Target:     result.Target.String(),
		Action:     string(result.Action),
		Changed:    result.Changed,
		Collapsed:  result.Collapsed,
		DryRun:     result.DryRun,
		RecordedAt: time.Now(),
	})
}

// RunFinished implements engine.Recorder.
func (j *Journal) RunFinished(ctx context.Context, summary *engine.RunSummary) error {
	var errMsg *string
	level := EventLevelInfo
	if summary.Error != "" {
		errMsg = &summary.Error
		level = EventLevelError
	}
	err := j.store.FinishRun(ctx, summary.RunID, summary.Status, summary.Changed(), errMsg, summary.CompletedAt)
	if errors.Is(err, ErrNotFound) {
		// The run failed before it started, e.g. on a wiring error.
		completed := summary.CompletedAt
		err = j.store.CreateRun(ctx, &Run{
			ID:          summary.RunID,
			Status:      summary.Status,
			DryRun:      summary.DryRun,
			Sources:     strings.Join(j.opts.Sources, ","),
			Target:      j.opts.Target,
			Error:       errMsg,
			StartedAt:   summary.StartedAt,
			CompletedAt: &completed,
		})
	}
	if err != nil {
		return err
	}
	j.logger.Debug().Str("run_id", summary.RunID).Str("status", string(summary.Status)).Msg("Run recorded")
	return j.event(ctx, summary.RunID, level, "run finished", map[string]any{
		"status":  summary.Status,
		"changed": summary.Changed(),
		"error":   summary.Error,
	})
}

func (j *Journal) event(ctx context.Context, runID string, level EventLevel, msg string, details map[string]any) error {
	data, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return j.store.AppendEvent(ctx, &Event{
		RunID:     &runID,
		Level:     level,
		Message:   msg,
		Details:   string(data),
		Timestamp: time.Now(),
	})
}
