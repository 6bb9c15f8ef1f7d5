package commands

import (
	"fmt"
	"strings"

	"github.com/openfroyo/deckhand/pkg/drift"
	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/resources"
	"github.com/spf13/cobra"
)

func newDriftCommand() *cobra.Command {
	var (
		project     string
		failOnDrift bool
		showChanges bool
	)

	cmd := &cobra.Command{
		Use:   "drift <declaration>...",
		Short: "Compare declared jobs with the server",
		Long: `Detect job drift.

Every enabled job in the declaration is fetched from the server through
the job CLI, normalized and compared with its declared content. Server
assigned identity, key order and crontab notation do not count as drift.

Nothing is changed; run converge to load drifted jobs.`,
		Example: `  # Report drift for every declared job
  deckhand drift site.cue

  # Only one project, with field level changes
  deckhand drift --project nightly --changes site.cue

  # Exit non-zero when anything drifted (for CI)
  deckhand drift --fail-on-drift site.cue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			_, tree, err := a.loadTree(ctx, args, true)
			if err != nil {
				return err
			}
			detector := a.detector(tree)

			var reports []*drift.Report
			for _, j := range enabledJobs(tree, project) {
				r, err := detector.Check(ctx, j)
				if err != nil {
					return err
				}
				reports = append(reports, r)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, reports); err != nil {
					return err
				}
			} else {
				tw := newTable(out, "PROJECT", "JOB", "STATUS", "CHANGES")
				for _, r := range reports {
					row(tw, r.Project, r.Name, r.Status, len(r.Changes))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if showChanges {
					for _, r := range reports {
						for _, c := range r.Changes {
							fmt.Fprintf(out, "%s %s: %v -> %v\n", r.Job, c.Path, c.Before, c.After)
						}
					}
				}
			}

			drifted := 0
			for _, r := range reports {
				if r.Differs() {
					drifted++
				}
			}
			a.logger.Info().Int("jobs", len(reports)).Int("drifted", drifted).Msg("Drift check complete")
			if failOnDrift && drifted > 0 {
				return fmt.Errorf("%d of %d jobs drifted", drifted, len(reports))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "only check jobs of this project")
	cmd.Flags().BoolVar(&failOnDrift, "fail-on-drift", false, "exit with an error when a job drifted")
	cmd.Flags().BoolVar(&showChanges, "changes", false, "print field level changes")

	return cmd
}

// enabledJobs lists the jobs a convergence would load, optionally limited
// to one project.
func enabledJobs(tree *resources.Tree, project string) []*resources.Job {
	var jobs []*resources.Job
	for _, p := range tree.Server.Projects {
		if p.Action == engine.ActionDisable {
			continue
		}
		if project != "" && !strings.EqualFold(p.Name, project) {
			continue
		}
		for _, j := range p.Jobs {
			if j.Action != engine.ActionDisable {
				jobs = append(jobs, j)
			}
		}
	}
	return jobs
}
