package host

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openfroyo/deckhand/pkg/engine"
	"gopkg.in/yaml.v3"
)

// Node is a machine the scheduling server can dispatch jobs to.
type Node struct {
	Name          string   `json:"name" yaml:"name" validate:"required"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Roles         []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	Recipes       []string `json:"recipes,omitempty" yaml:"recipes,omitempty"`
	FQDN          string   `json:"fqdn,omitempty" yaml:"fqdn,omitempty"`
	OS            string   `json:"os,omitempty" yaml:"os,omitempty"`
	KernelMachine string   `json:"kernel_machine,omitempty" yaml:"kernel_machine,omitempty"`
	KernelName    string   `json:"kernel_name,omitempty" yaml:"kernel_name,omitempty"`
	KernelRelease string   `json:"kernel_release,omitempty" yaml:"kernel_release,omitempty"`

	// Environment and Attributes are searchable but not part of the
	// projection handed to node sources.
	Environment string            `json:"environment,omitempty" yaml:"environment,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Projected returns the node restricted to the fields written to a
// project's resources file.
func (n Node) Projected() Node {
	return Node{
		Name:          n.Name,
		Description:   n.Description,
		Roles:         n.Roles,
		Recipes:       n.Recipes,
		FQDN:          n.FQDN,
		OS:            n.OS,
		KernelMachine: n.KernelMachine,
		KernelName:    n.KernelName,
		KernelRelease: n.KernelRelease,
	}
}

// Field returns the searchable values of a field.
func (n Node) Field(key string) []string {
	switch key {
	case "name":
		return []string{n.Name}
	case "description":
		return []string{n.Description}
	case "role", "roles":
		return n.Roles
	case "recipe", "recipes":
		return n.Recipes
	case "fqdn":
		return []string{n.FQDN}
	case "os":
		return []string{n.OS}
	case "kernel_machine":
		return []string{n.KernelMachine}
	case "kernel_name":
		return []string{n.KernelName}
	case "kernel_release":
		return []string{n.KernelRelease}
	case "environment", "chef_environment":
		return []string{n.Environment}
	}
	if v, ok := n.Attributes[key]; ok {
		return []string{v}
	}
	return nil
}

// Inventory searches a store of nodes.
type Inventory interface {
	// Search returns the projected nodes matching query. limit <= 0 means
	// no cap.
	Search(ctx context.Context, query string, limit int) ([]Node, error)
}

// Term is one key:value condition of a query.
type Term struct {
	Key     string
	Pattern string
}

// Query is a conjunction of terms. The empty query matches every node.
type Query []Term

// ParseQuery parses "key:value" terms separated by spaces or AND. Values
// may use * as a wildcard; "*:*" matches everything.
func ParseQuery(q string) (Query, error) {
	var out Query
	for _, tok := range strings.Fields(q) {
		if tok == "AND" {
			continue
		}
		key, val, ok := strings.Cut(tok, ":")
		if !ok || key == "" || val == "" {
			return nil, engine.NewValidationError(
				fmt.Sprintf("invalid inventory query term %q: want key:value", tok), nil).
				WithOperation("search")
		}
		if key == "*" && val == "*" {
			continue
		}
		out = append(out, Term{Key: key, Pattern: val})
	}
	return out, nil
}

// Match reports whether n satisfies every term.
func (q Query) Match(n Node) bool {
	for _, t := range q {
		matched := false
		for _, v := range n.Field(t.Key) {
			if WildcardMatch(t.Pattern, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// WildcardMatch matches s against a pattern where * stands for any run of
// characters. Matching is case sensitive.
func WildcardMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}
	return strings.HasSuffix(s, last)
}

// Filter applies query and limit to nodes, returning projected copies.
func Filter(nodes []Node, query string, limit int) ([]Node, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}
	var out []Node
	for _, n := range nodes {
		if limit > 0 && len(out) >= limit {
			break
		}
		if q.Match(n) {
			out = append(out, n.Projected())
		}
	}
	return out, nil
}

// FileInventory serves nodes from a YAML or JSON document holding a list
// of nodes, or a map with a "nodes" list.
type FileInventory struct {
	Path string
}

// Load reads every node in the file.
func (f *FileInventory) Load() ([]Node, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return ParseNodes(data)
}

// Search implements Inventory.
func (f *FileInventory) Search(ctx context.Context, query string, limit int) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes, err := f.Load()
	if err != nil {
		return nil, err
	}
	return Filter(nodes, query, limit)
}

// ParseNodes decodes an inventory document. JSON is accepted as YAML.
func ParseNodes(data []byte) ([]Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var nodes []Node
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&nodes); err != nil {
			return nil, fmt.Errorf("failed to decode inventory: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Nodes []Node `yaml:"nodes"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode inventory: %w", err)
		}
		nodes = wrapped.Nodes
	default:
		return nil, fmt.Errorf("inventory must be a list of nodes or a map with a nodes key")
	}

	for i, n := range nodes {
		if n.Name == "" {
			return nil, engine.NewValidationError(fmt.Sprintf("inventory node %d has no name", i), nil)
		}
	}
	return nodes, nil
}
