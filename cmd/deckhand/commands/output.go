package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/openfroyo/deckhand/pkg/engine"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return tw
}

func row(tw *tabwriter.Writer, cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(tw, strings.Join(parts, "\t"))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printSummary writes the outcome of a run, one line per step and fired
// notification.
func printSummary(w io.Writer, s *engine.RunSummary) error {
	if jsonOutput {
		return printJSON(w, s)
	}

	verb := "changed"
	if s.DryRun {
		verb = "would change"
	}

	tw := newTable(w, "RESOURCE", "ACTION", "STEP", "CHANGED", "DURATION")
	for _, st := range s.Steps {
		changed := yesNo(st.Changed)
		if st.Error != "" {
			changed = "error"
		}
		row(tw, st.Resource, st.Action, st.Step, changed, st.Duration.Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.Notifications) > 0 {
		fmt.Fprintln(w)
		tw = newTable(w, "SOURCE", "TARGET", "ACTION", "CHANGED", "COLLAPSED")
		for _, n := range s.Notifications {
			row(tw, n.Source, n.Target, n.Action, yesNo(n.Changed), n.Collapsed)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\nRun %s %s: %d %s in %s\n",
		s.RunID, s.Status, s.Changed(), verb, s.Duration().Round(time.Millisecond))
	if s.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", s.Error)
	}
	return nil
}
