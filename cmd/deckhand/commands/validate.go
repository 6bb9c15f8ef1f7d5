package commands

import (
	"fmt"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/policy"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <declaration>...",
		Short: "Check a declaration without touching the host",
		Long: `Validate a declaration.

This command:
  - Parses every source and checks it against the schema
  - Resolves defaults and validates names, ports and paths
  - Evaluates the built-in and configured policies

Nothing is changed on the host. When the platform cannot be detected a
Debian host is assumed.`,
		Example: `  # Validate a declaration
  deckhand validate site.cue

  # Validate several sources merged together
  deckhand validate base.cue projects/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			_, tree, err := a.loadTree(ctx, args, false)
			if err != nil {
				return err
			}
			eng, err := a.policyEngine(ctx)
			if err != nil {
				return err
			}
			result, err := eng.Evaluate(ctx, policy.NewInput(tree, policy.Context{
				Operation: "validate",
				Target:    target,
			}))
			if err != nil {
				return err
			}

			var ids []engine.ResourceID
			tree.Server.Walk(func(id engine.ResourceID) { ids = append(ids, id) })

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, map[string]any{
					"resources": ids,
					"policy":    result,
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Declaration is valid: %d resources on %s\n", len(ids), tree.Platform.ID)
				printViolations(cmd, result)
			}

			if !result.Allowed {
				return fmt.Errorf("%d blocking policy violations", len(result.Violations))
			}
			return nil
		},
	}

	return cmd
}

func printViolations(cmd *cobra.Command, result *policy.Result) {
	out := cmd.OutOrStdout()
	if len(result.Violations)+len(result.Warnings) == 0 {
		fmt.Fprintf(out, "Policies: %d evaluated, no findings\n", len(result.EvaluatedPolicies))
		return
	}
	tw := newTable(out, "SEVERITY", "POLICY", "RESOURCE", "MESSAGE")
	for _, v := range result.Violations {
		row(tw, v.Severity, v.Policy, orDash(v.Resource), v.Message)
	}
	for _, v := range result.Warnings {
		row(tw, v.Severity, v.Policy, orDash(v.Resource), v.Message)
	}
	tw.Flush()
	for _, f := range result.Failures {
		fmt.Fprintf(out, "Policy evaluation failed: %s\n", f)
	}
}
