package stores

import (
	"context"
	"testing"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/rs/zerolog"
)

func TestJournalRecordsRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	server := engine.ResourceID{Kind: engine.KindServer, Name: "rundeck01"}
	acl := engine.ResourceID{Kind: engine.KindAcl, Name: "ops"}
	written := false

	units := []*engine.Unit{{
		Resource: server,
		Action:   engine.ActionInstall,
		Handler: func(context.Context, engine.Action) (engine.Result, error) {
			return engine.Result{Changed: true}, nil
		},
		Children: []*engine.Unit{{
			Resource: acl,
			Action:   engine.ActionEnable,
			Steps: []engine.Step{&engine.FuncStep{
				Label:   "write ops.aclpolicy",
				CheckFn: func(context.Context) (bool, error) { return !written, nil },
				ApplyFn: func(context.Context) error { written = true; return nil },
				Notifies: []engine.Notification{{
					Target: server,
					Action: engine.ActionRestart,
				}},
			}},
		}},
	}}

	journal := NewJournal(store, JournalOptions{Sources: []string{"site.cue"}, Logger: zerolog.Nop()})
	driver := engine.NewDriver(engine.Options{Logger: zerolog.Nop(), Recorder: journal})

	summary, err := driver.Run(ctx, units)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	run, err := store.GetRun(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != engine.RunStatusSucceeded || run.Sources != "site.cue" || run.CompletedAt == nil {
		t.Errorf("run = %+v", run)
	}
	if run.Changed != summary.Changed() {
		t.Errorf("Changed = %d, want %d", run.Changed, summary.Changed())
	}

	steps, _ := store.ListSteps(ctx, summary.RunID)
	if len(steps) != 1 || steps[0].Resource != "acl[ops]" || !steps[0].Changed {
		t.Errorf("steps = %+v", steps)
	}

	notes, _ := store.ListNotifications(ctx, summary.RunID)
	if len(notes) != 1 || notes[0].Action != "restart" || notes[0].Target != "server[rundeck01]" {
		t.Errorf("notifications = %+v", notes)
	}

	state, err := store.GetResourceState(ctx, "acl[ops]")
	if err != nil {
		t.Fatalf("GetResourceState() error = %v", err)
	}
	if state.LastChangedRunID == nil || *state.LastChangedRunID != summary.RunID {
		t.Errorf("state = %+v", state)
	}

	events, _ := store.GetEvents(ctx, &summary.RunID, nil, 10, 0)
	if len(events) != 2 || events[0].Message != "run started" || events[1].Message != "run finished" {
		t.Errorf("events = %+v", events)
	}

	// A second run changes nothing and keeps the last change.
	second, err := driver.Run(ctx, units)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	state, _ = store.GetResourceState(ctx, "acl[ops]")
	if state.LastRunID != second.RunID || *state.LastChangedRunID != summary.RunID {
		t.Errorf("state after second run = %+v", state)
	}
}

func TestJournalRecordsPrepareFailure(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	units := []*engine.Unit{{
		Resource: engine.ResourceID{Kind: engine.KindUser, Name: "alice"},
		Action:   engine.ActionEnable,
		Notifies: []engine.Notification{{
			Target: engine.ResourceID{Kind: engine.KindServer, Name: "missing"},
			Action: engine.ActionRebuildRealm,
		}},
	}}

	journal := NewJournal(store, JournalOptions{Logger: zerolog.Nop()})
	driver := engine.NewDriver(engine.Options{Logger: zerolog.Nop(), Recorder: journal})

	summary, err := driver.Run(ctx, units)
	if err == nil {
		t.Fatal("expected error for undeclared notification target")
	}

	run, gerr := store.GetRun(ctx, summary.RunID)
	if gerr != nil {
		t.Fatalf("GetRun() error = %v", gerr)
	}
	if run.Status != engine.RunStatusFailed || run.Error == nil {
		t.Errorf("run = %+v", run)
	}

	level := EventLevelError
	events, _ := store.GetEvents(ctx, &summary.RunID, &level, 10, 0)
	if len(events) != 1 {
		t.Errorf("error events = %d, want 1", len(events))
	}
}
