package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit     int
		prune     int
		resources bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs",
		Long: `Show the runs recorded in the state database.

Without arguments the most recent runs are listed. With a run ID the
run's steps, fired notifications and events are shown.`,
		Example: `  # List the last 20 runs
  deckhand history

  # Inspect one run
  deckhand history 7c9e6679-7425-40de-944b-e07fc1f90ae7

  # Last known state of every resource
  deckhand history --resources

  # Keep only the 50 most recent runs
  deckhand history --prune 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case prune > 0:
				n, err := store.PruneRuns(ctx, prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d runs\n", n)
				return nil

			case resources:
				states, err := store.ListResourceStates(ctx, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, states)
				}
				tw := newTable(out, "RESOURCE", "LAST ACTION", "LAST RUN", "LAST CHANGED", "UPDATED")
				for _, s := range states {
					changed := "-"
					if s.LastChangedRunID != nil {
						changed = *s.LastChangedRunID
					}
					row(tw, s.Resource, s.LastAction, s.LastRunID, changed, s.UpdatedAt.Local().Format(time.DateTime))
				}
				return tw.Flush()

			case len(args) == 1:
				return a.showRun(cmd, args[0])
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, runs)
			}
			tw := newTable(out, "RUN", "STATUS", "DRY RUN", "CHANGED", "STARTED", "TARGET")
			for _, r := range runs {
				row(tw, r.ID, r.Status, yesNo(r.DryRun), r.Changed, r.StartedAt.Local().Format(time.DateTime), orDash(r.Target))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but this many recent runs")
	cmd.Flags().BoolVar(&resources, "resources", false, "show the last known state of every resource")

	return cmd
}

func (a *app) showRun(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	run, err := a.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	steps, err := a.store.ListSteps(ctx, id)
	if err != nil {
		return err
	}
	notifications, err := a.store.ListNotifications(ctx, id)
	if err != nil {
		return err
	}
	events, err := a.store.GetEvents(ctx, &id, nil, -1, 0)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{
			"run":           run,
			"steps":         steps,
			"notifications": notifications,
			"events":        events,
		})
	}

	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Dry run:  %s\n", yesNo(run.DryRun))
	fmt.Fprintf(out, "Sources:  %s\n", orDash(run.Sources))
	fmt.Fprintf(out, "Target:   %s\n", orDash(run.Target))
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.CompletedAt != nil {
		fmt.Fprintf(out, "Duration: %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != nil {
		fmt.Fprintf(out, "Error:    %s\n", *run.Error)
	}

	if len(steps) > 0 {
		fmt.Fprintln(out)
		tw := newTable(out, "RESOURCE", "ACTION", "STEP", "CHANGED", "DURATION")
		for _, s := range steps {
			changed := yesNo(s.Changed)
			if s.Error != nil {
				changed = "error"
			}
			row(tw, s.Resource, s.Action, s.Step, changed, s.Duration)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(notifications) > 0 {
		fmt.Fprintln(out)
		tw := newTable(out, "SOURCE", "TARGET", "ACTION", "CHANGED", "COLLAPSED")
		for _, n := range notifications {
			row(tw, n.Source, n.Target, n.Action, yesNo(n.Changed), n.Collapsed)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(events) > 0 {
		fmt.Fprintln(out)
		for _, e := range events {
			fmt.Fprintf(out, "%s [%s] %s %s\n", e.Timestamp.Local().Format(time.TimeOnly), e.Level, e.Message, e.Details)
		}
	}
	return nil
}
