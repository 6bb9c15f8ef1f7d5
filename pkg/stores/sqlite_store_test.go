package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openfroyo/deckhand/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("health check passed before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"runs", "run_steps", "run_notifications", "events", "resource_state", "inventory_nodes"}
	for _, table := range tables {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Migrating again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestStoreFileDatabase(t *testing.T) {
	path := t.TempDir() + "/state.db"
	ctx := context.Background()

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.CreateRun(ctx, &Run{ID: "r1", Status: engine.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()
	if _, err := store.GetRun(ctx, "r1"); err != nil {
		t.Errorf("run lost across reopen: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	run := &Run{
		ID:        "run-1",
		Status:    engine.RunStatusRunning,
		Sources:   "site.cue",
		StartedAt: started,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != engine.RunStatusRunning || got.CompletedAt != nil || got.Error != nil {
		t.Errorf("GetRun() = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}

	msg := "boom"
	if err := store.FinishRun(ctx, "run-1", engine.RunStatusFailed, 3, &msg, started.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	got, _ = store.GetRun(ctx, "run-1")
	if got.Status != engine.RunStatusFailed || got.Changed != 3 || got.Error == nil || *got.Error != "boom" {
		t.Errorf("finished run = %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(started.Add(time.Minute)) {
		t.Errorf("CompletedAt = %v", got.CompletedAt)
	}

	if err := store.FinishRun(ctx, "missing", engine.RunStatusSucceeded, 0, nil, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListAndPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.CreateRun(ctx, &Run{ID: id, Status: engine.RunStatusSucceeded, StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "c" || runs[2].ID != "a" {
		t.Errorf("ListRuns() order = %v", runIDs(runs))
	}

	n, err := store.PruneRuns(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("PruneRuns() = %d, %v", n, err)
	}
	runs, _ = store.ListRuns(ctx, 10, 0)
	if len(runs) != 1 || runs[0].ID != "c" {
		t.Errorf("after prune = %v", runIDs(runs))
	}
}

func runIDs(runs []*Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}

func TestStepsAndNotifications(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, &Run{ID: "r", Status: engine.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	steps := []string{"group rundeck", "user rundeck", "directory /var/lib/rundeck"}
	for _, name := range steps {
		if err := store.AppendStep(ctx, &StepRecord{
			RunID:      "r",
			Resource:   "server[rundeck01]",
			Action:     "install",
			Step:       name,
			Changed:    true,
			Duration:   1500 * time.Millisecond,
			RecordedAt: time.Now(),
		}); err != nil {
			t.Fatalf("AppendStep() error = %v", err)
		}
	}
	if err := store.AppendNotification(ctx, &NotificationRecord{
		RunID:      "r",
		Source:     "server[rundeck01]",
		Target:     "server[rundeck01]",
		Action:     "rebuild_realm",
		Changed:    true,
		Collapsed:  2,
		RecordedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendNotification() error = %v", err)
	}

	got, err := store.ListSteps(ctx, "r")
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(got) != len(steps) {
		t.Fatalf("ListSteps() returned %d steps", len(got))
	}
	for i, st := range got {
		if st.Step != steps[i] {
			t.Errorf("step %d = %q, want %q", i, st.Step, steps[i])
		}
		if st.Duration != 1500*time.Millisecond || !st.Changed {
			t.Errorf("step %d = %+v", i, st)
		}
	}

	nts, err := store.ListNotifications(ctx, "r")
	if err != nil || len(nts) != 1 {
		t.Fatalf("ListNotifications() = %v, %v", nts, err)
	}
	if nts[0].Collapsed != 2 || nts[0].Action != "rebuild_realm" {
		t.Errorf("notification = %+v", nts[0])
	}

	// Deleting the run cascades.
	if err := store.DeleteRun(ctx, "r"); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if got, _ := store.ListSteps(ctx, "r"); len(got) != 0 {
		t.Errorf("steps survived run deletion: %d", len(got))
	}
	if err := store.DeleteRun(ctx, "r"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteRun(again) error = %v", err)
	}
}

func TestEvents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	runID := "r"
	if err := store.CreateRun(ctx, &Run{ID: runID, Status: engine.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	for _, e := range []*Event{
		{RunID: &runID, Level: EventLevelInfo, Message: "run started", Timestamp: time.Now()},
		{RunID: &runID, Level: EventLevelError, Message: "run finished", Details: `{"error":"x"}`, Timestamp: time.Now()},
		{Level: EventLevelInfo, Message: "unrelated", Timestamp: time.Now()},
	} {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
		if e.ID == 0 {
			t.Error("event ID not set")
		}
	}

	all, err := store.GetEvents(ctx, &runID, nil, 10, 0)
	if err != nil || len(all) != 2 {
		t.Fatalf("GetEvents(run) = %d, %v", len(all), err)
	}
	if all[0].Details != "{}" {
		t.Errorf("default details = %q", all[0].Details)
	}

	level := EventLevelError
	errs, err := store.GetEvents(ctx, nil, &level, 10, 0)
	if err != nil || len(errs) != 1 || errs[0].Message != "run finished" {
		t.Errorf("GetEvents(error) = %v, %v", errs, err)
	}
}

func TestResourceState(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := "run-1"
	if err := store.UpsertResourceState(ctx, &ResourceState{
		Resource:         "project[cron]",
		Kind:             "project",
		Name:             "cron",
		LastAction:       "enable",
		LastRunID:        first,
		LastChangedRunID: &first,
		UpdatedAt:        time.Now(),
	}); err != nil {
		t.Fatalf("UpsertResourceState() error = %v", err)
	}

	// An unchanged second run keeps the last change.
	if err := store.UpsertResourceState(ctx, &ResourceState{
		Resource:   "project[cron]",
		Kind:       "project",
		Name:       "cron",
		LastAction: "enable",
		LastRunID:  "run-2",
		UpdatedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("UpsertResourceState() error = %v", err)
	}

	st, err := store.GetResourceState(ctx, "project[cron]")
	if err != nil {
		t.Fatalf("GetResourceState() error = %v", err)
	}
	if st.LastRunID != "run-2" || st.LastChangedRunID == nil || *st.LastChangedRunID != first {
		t.Errorf("state = %+v", st)
	}

	states, err := store.ListResourceStates(ctx, 10, 0)
	if err != nil || len(states) != 1 {
		t.Errorf("ListResourceStates() = %v, %v", states, err)
	}
	if _, err := store.GetResourceState(ctx, "acl[nope]"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResourceState(missing) error = %v", err)
	}
}
