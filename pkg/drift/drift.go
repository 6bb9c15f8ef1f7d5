package drift

import (
	"bytes"
	"fmt"
	"reflect"
	"regexp"
	"sort"

	"github.com/openfroyo/deckhand/pkg/engine"
)

// Job definition formats.
const (
	FormatYAML = "yaml"
	FormatXML  = "xml"
)

// Document is a job definition after normalization. An absent document
// stands for a job the server does not know.
type Document struct {
	Format string
	Name   string
	Absent bool

	// Canonical is the serialized form pushed to the server.
	Canonical []byte

	tree any
}

// Change is one difference between two normalized documents.
type Change struct {
	// Path is the dotted path of the differing field, "." for the whole
	// document.
	Path   string `json:"path"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// Normalize parses a job document in format and applies the normalization
// rules: system-assigned identity is removed, the name is forced to name,
// a crontab schedule is expanded into its structured form, and at most one
// job may be present. Empty input yields an absent document.
func Normalize(format, name string, data []byte) (*Document, error) {
	var (
		doc *Document
		err error
	)
	switch format {
	case FormatYAML:
		doc, err = normalizeYAML(name, data)
	case FormatXML:
		doc, err = normalizeXML(name, data)
	default:
		return nil, engine.NewValidationError(fmt.Sprintf("unsupported job format %q", format), nil).
			WithOperation("normalize")
	}
	if err != nil {
		return nil, err
	}
	doc.Format, doc.Name = format, name
	return doc, nil
}

// Differs reports whether two normalized documents describe different
// jobs. Key order, formatting and serializer tags do not matter.
func Differs(a, b *Document) bool {
	if a.Absent || b.Absent {
		return a.Absent != b.Absent
	}
	if a.Format != b.Format {
		return true
	}
	if ae, ok := a.tree.(*element); ok {
		return !ae.equal(b.tree.(*element))
	}
	return !reflect.DeepEqual(a.tree, b.tree)
}

// Changes lists what turns current into desired.
func Changes(current, desired *Document) []Change {
	switch {
	case current.Absent && desired.Absent:
		return nil
	case current.Absent:
		return []Change{{Path: ".", After: string(desired.Canonical)}}
	case desired.Absent:
		return []Change{{Path: ".", Before: string(current.Canonical)}}
	}

	if current.Format == FormatYAML && desired.Format == FormatYAML {
		var changes []Change
		diffValues("", current.tree.([]any)[0], desired.tree.([]any)[0], &changes)
		return changes
	}
	if Differs(current, desired) {
		return []Change{{Path: ".", Before: string(current.Canonical), After: string(desired.Canonical)}}
	}
	return nil
}

func diffValues(path string, before, after any, out *[]Change) {
	bm, bok := before.(map[string]any)
	am, aok := after.(map[string]any)
	if !bok || !aok {
		if !reflect.DeepEqual(before, after) {
			p := path
			if p == "" {
				p = "."
			}
			*out = append(*out, Change{Path: p, Before: before, After: after})
		}
		return
	}

	keys := make(map[string]struct{}, len(bm)+len(am))
	for k := range bm {
		keys[k] = struct{}{}
	}
	for k := range am {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		diffValues(path+"."+k, bm[k], am[k], out)
	}
}

// tagQuirk matches an explicit non-specific tag in front of a literal *,
// e.g. "month: ! '*'", which some serializers emit and the server's
// parser rejects.
var tagQuirk = regexp.MustCompile(`:[ \t]+![ \t]+(['"]?\*)`)

func stripTagQuirk(data []byte) []byte {
	return tagQuirk.ReplaceAll(data, []byte(": $1"))
}

func multipleJobs(n int) error {
	return engine.NewValidationError(
		fmt.Sprintf("a job document must hold exactly one job, found %d", n), nil).
		WithCode(engine.ErrCodeMultipleJobs).
		WithOperation("normalize")
}

func isBlank(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}
