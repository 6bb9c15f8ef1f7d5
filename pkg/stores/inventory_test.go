package stores

import (
	"context"
	"errors"
	"testing"

	"github.com/openfroyo/deckhand/pkg/host"
)

func seedInventory(t *testing.T, store *SQLiteStore) {
	t.Helper()
	nodes := []host.Node{
		{Name: "web01", Roles: []string{"web"}, OS: "linux", Environment: "prod", Attributes: map[string]string{"rack": "a1"}},
		{Name: "web02", Roles: []string{"web"}, OS: "linux", Environment: "staging"},
		{Name: "db01", Roles: []string{"db"}, OS: "linux", Environment: "prod"},
	}
	if err := store.ImportNodes(context.Background(), nodes); err != nil {
		t.Fatalf("ImportNodes() error = %v", err)
	}
}

func TestInventorySearch(t *testing.T) {
	store := setupTestStore(t)
	seedInventory(t, store)

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{name: "everything", query: "*:*", want: []string{"db01", "web01", "web02"}},
		{name: "empty query", query: "", want: []string{"db01", "web01", "web02"}},
		{name: "by role", query: "role:web", want: []string{"web01", "web02"}},
		{name: "conjunction", query: "role:web AND environment:prod", want: []string{"web01"}},
		{name: "wildcard", query: "name:web*", limit: 1, want: []string{"web01"}},
		{name: "attribute", query: "rack:a1", want: []string{"web01"}},
		{name: "no match", query: "role:cache", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Search(context.Background(), tt.query, tt.limit)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Search() = %d nodes, want %d", len(got), len(tt.want))
			}
			for i, n := range got {
				if n.Name != tt.want[i] {
					t.Errorf("node %d = %s, want %s", i, n.Name, tt.want[i])
				}
				if n.Environment != "" || n.Attributes != nil {
					t.Errorf("node %s not projected: %+v", n.Name, n)
				}
			}
		})
	}

	if _, err := store.Search(context.Background(), "broken", 0); err == nil {
		t.Error("expected error for malformed query")
	}
}

func TestInventoryUpsertAndDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedInventory(t, store)

	if err := store.UpsertNode(ctx, host.Node{Name: "web02", Roles: []string{"web", "canary"}}); err != nil {
		t.Fatalf("UpsertNode() error = %v", err)
	}
	got, _ := store.Search(ctx, "role:canary", 0)
	if len(got) != 1 || got[0].Name != "web02" {
		t.Errorf("upserted node not found: %+v", got)
	}

	if err := store.UpsertNode(ctx, host.Node{}); err == nil {
		t.Error("expected error for unnamed node")
	}

	if err := store.DeleteNode(ctx, "db01"); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}
	if err := store.DeleteNode(ctx, "db01"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteNode(again) error = %v, want ErrNotFound", err)
	}

	nodes, _ := store.ListNodes(ctx)
	if len(nodes) != 2 {
		t.Errorf("ListNodes() = %d nodes, want 2", len(nodes))
	}
}

func TestImportNodesIsAtomic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.ImportNodes(ctx, []host.Node{{Name: "ok"}, {}})
	if err == nil {
		t.Fatal("expected error for unnamed node")
	}
	nodes, _ := store.ListNodes(ctx)
	if len(nodes) != 0 {
		t.Errorf("partial import kept %d nodes", len(nodes))
	}
}
