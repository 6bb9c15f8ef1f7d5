package engine

import (
	"context"
	"errors"
	"testing"
)

var (
	testServer = ResourceID{Kind: KindServer, Name: "rundeck"}
	testUser   = ResourceID{Kind: KindUser, Name: "alice"}
)

func TestGraphFlushCollapsesDuplicates(t *testing.T) {
	g := NewGraph(false)

	var fired []Action
	g.Register(testServer, func(_ context.Context, a Action) (Result, error) {
		fired = append(fired, a)
		return Result{Changed: true}, nil
	})

	for i := 0; i < 3; i++ {
		g.Notify(testServer, testServer, ActionRebuildRealm)
	}
	g.Notify(testServer, testServer, ActionRestart)
	g.Notify(testServer, testServer, ActionRebuildRealm)

	results, err := g.Flush(context.Background(), testServer)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if len(fired) != 2 {
		t.Fatalf("expected 2 firings, got %d (%v)", len(fired), fired)
	}
	if fired[0] != ActionRebuildRealm || fired[1] != ActionRestart {
		t.Errorf("expected FIFO order [rebuild_realm restart], got %v", fired)
	}
	if results[0].Collapsed != 3 {
		t.Errorf("expected 3 collapsed duplicates, got %d", results[0].Collapsed)
	}
	if g.Pending(testServer) != 0 {
		t.Errorf("expected empty queue after flush, got %d", g.Pending(testServer))
	}
}

func TestGraphFlushOnlyTouchesSource(t *testing.T) {
	g := NewGraph(false)
	calls := 0
	g.Register(testServer, func(context.Context, Action) (Result, error) {
		calls++
		return Result{}, nil
	})

	g.Notify(testUser, testServer, ActionRebuildRealm)

	if _, err := g.Flush(context.Background(), testServer); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("flushing an unrelated source fired %d handlers", calls)
	}
	if g.Pending(testUser) != 1 {
		t.Errorf("expected edge to remain queued against %s", testUser)
	}
}

func TestGraphFlushUnknownTarget(t *testing.T) {
	g := NewGraph(false)
	g.Notify(testUser, testServer, ActionRestart)

	_, err := g.Flush(context.Background(), testUser)
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGraphFlushStopsOnHandlerError(t *testing.T) {
	g := NewGraph(false)
	boom := errors.New("boom")
	g.Register(testServer, func(_ context.Context, a Action) (Result, error) {
		if a == ActionRestart {
			return Result{}, boom
		}
		return Result{Changed: true}, nil
	})

	g.Notify(testServer, testServer, ActionRestart)
	g.Notify(testServer, testServer, ActionRebuildRealm)

	results, err := g.Flush(context.Background(), testServer)
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no completed firings, got %d", len(results))
	}

	var ee *EngineError
	if !errors.As(err, &ee) || ee.Resource != testServer.String() {
		t.Errorf("expected error to carry resource %s, got %v", testServer, err)
	}
}

func TestGraphFlushRequeue(t *testing.T) {
	g := NewGraph(false)
	var fired []Action
	g.Register(testServer, func(_ context.Context, a Action) (Result, error) {
		fired = append(fired, a)
		if a == ActionRebuildRealm {
			g.Notify(testServer, testServer, ActionRestart)
		}
		return Result{Changed: true}, nil
	})

	g.Notify(testServer, testServer, ActionRebuildRealm)
	if _, err := g.Flush(context.Background(), testServer); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if len(fired) != 2 || fired[1] != ActionRestart {
		t.Errorf("expected re-queued restart to fire in the same flush, got %v", fired)
	}
}

func TestGraphDryRun(t *testing.T) {
	g := NewGraph(true)
	g.Register(testServer, func(context.Context, Action) (Result, error) {
		t.Fatal("handler must not run in dry-run mode")
		return Result{}, nil
	})

	g.Notify(testServer, testServer, ActionRestart)
	results, err := g.Flush(context.Background(), testServer)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(results) != 1 || !results[0].DryRun || !results[0].Changed {
		t.Errorf("expected one dry-run result marked changed, got %+v", results)
	}
}

func TestGraphSourcesOrder(t *testing.T) {
	g := NewGraph(false)
	g.Notify(testUser, testServer, ActionRebuildRealm)
	g.Notify(testServer, testServer, ActionRestart)

	sources := g.Sources()
	if len(sources) != 2 || sources[0] != testUser || sources[1] != testServer {
		t.Errorf("unexpected sources order: %v", sources)
	}
}
