package host_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
)

const inventoryYAML = `
nodes:
  - name: web1
    fqdn: web1.example.com
    environment: production
    roles: [web, base]
  - name: web2
    fqdn: web2.example.com
    environment: production
    roles: [web]
  - name: db1
    fqdn: db1.example.com
    environment: staging
    roles: [db]
    attributes:
      rack: r7
`

func TestWildcardMatch(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"web1", "web1", true},
		{"web*", "web1", true},
		{"*1", "db1", true},
		{"w*b*", "web2", true},
		{"*", "", true},
		{"web*", "db1", false},
		{"a*a", "a", false},
		{"*.example.com", "web1.example.com", true},
	}
	for _, tt := range tests {
		if got := host.WildcardMatch(tt.pattern, tt.s); got != tt.want {
			t.Errorf("WildcardMatch(%q, %q) = %v, want %v", tt.pattern, tt.s, got, tt.want)
		}
	}
}

func TestFileInventorySearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	if err := os.WriteFile(path, []byte(inventoryYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	inv := &host.FileInventory{Path: path}

	tests := []struct {
		query string
		limit int
		want  []string
	}{
		{"environment:production", 0, []string{"web1", "web2"}},
		{"environment:production", 1, []string{"web1"}},
		{"role:web AND name:*2", 0, []string{"web2"}},
		{"rack:r7", 0, []string{"db1"}},
		{"*:*", 0, []string{"web1", "web2", "db1"}},
		{"", 2, []string{"web1", "web2"}},
		{"environment:dev", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			nodes, err := inv.Search(context.Background(), tt.query, tt.limit)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(nodes) != len(tt.want) {
				t.Fatalf("Search() returned %d nodes, want %d", len(nodes), len(tt.want))
			}
			for i, n := range nodes {
				if n.Name != tt.want[i] {
					t.Errorf("node %d = %s, want %s", i, n.Name, tt.want[i])
				}
				if n.Environment != "" || n.Attributes != nil {
					t.Errorf("node %s was not projected", n.Name)
				}
			}
		})
	}
}

func TestParseQueryRejectsBareWords(t *testing.T) {
	if _, err := host.ParseQuery("production"); !engine.IsValidation(err) {
		t.Errorf("ParseQuery() error = %v, want validation error", err)
	}
}

func TestParseNodesJSONList(t *testing.T) {
	nodes, err := host.ParseNodes([]byte(`[{"name":"a","os":"linux"},{"name":"b"}]`))
	if err != nil {
		t.Fatalf("ParseNodes() error = %v", err)
	}
	if len(nodes) != 2 || nodes[0].OS != "linux" {
		t.Errorf("unexpected nodes: %+v", nodes)
	}

	if _, err := host.ParseNodes([]byte(`[{"os":"linux"}]`)); !engine.IsValidation(err) {
		t.Errorf("nameless node error = %v, want validation error", err)
	}
}
