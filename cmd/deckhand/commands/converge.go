package commands

import (
	"context"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/policy"
	"github.com/openfroyo/deckhand/pkg/providers"
	"github.com/openfroyo/deckhand/pkg/stores"
	"github.com/openfroyo/deckhand/pkg/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

// run loads the declaration, checks it against the policies and drives
// every unit through the engine, journaling into the state database.
func (a *app) run(ctx context.Context, sources []string, dryRun bool) (summary *engine.RunSummary, err error) {
	operation := "converge"
	if dryRun {
		operation = "plan"
	}
	op := telemetry.StartOperation(a.tel.WithContext(ctx), operation,
		attribute.Bool("dry_run", dryRun),
		attribute.StringSlice("sources", sources))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	decl, tree, err := a.loadTree(ctx, sources, true)
	if err != nil {
		return nil, err
	}
	if _, err := a.checkPolicy(ctx, tree, operation, dryRun); err != nil {
		return nil, err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	env, err := a.providerEnv(tree)
	if err != nil {
		return nil, err
	}
	units, err := providers.Plan(env, tree)
	if err != nil {
		return nil, err
	}

	journal := stores.NewJournal(store, stores.JournalOptions{
		Sources: decl.Sources,
		Target:  target,
		Logger:  a.logger,
	})
	driver := engine.NewDriver(engine.Options{
		DryRun:   dryRun,
		Logger:   a.logger,
		Recorder: journal,
		Metrics:  a.tel.Metrics,
		Tracer:   a.tel.Tracer,
	})
	return driver.Run(ctx, units)
}

func newConvergeCommand() *cobra.Command {
	var (
		watch bool
		opts  appOptions
	)

	cmd := &cobra.Command{
		Use:   "converge <declaration>...",
		Short: "Bring the server in line with its declaration",
		Long: `Converge the managed host to the declared state.

This command:
  - Loads and validates the declaration (CUE, YAML or Starlark)
  - Evaluates the policies and stops on a blocking violation
  - Installs, configures and starts the server
  - Converges projects, jobs, node sources, ACLs and users
  - Fires restart and realm rebuild notifications once per run
  - Records the run in the state database

Only one run may hold the state database at a time.`,
		Example: `  # Converge the local host
  deckhand converge site.cue

  # Converge a remote host over SSH
  deckhand converge --target admin@rundeck01 site.cue

  # Keep converging whenever the declaration or policies change
  deckhand converge --watch --metrics-addr :9464 declarations/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			lock, err := stores.AcquireLock(stores.LockPath(a.settings.StateDB))
			if err != nil {
				return err
			}
			defer lock.Release()

			ctx := cmd.Context()
			if !watch {
				return a.converge(cmd, args)
			}

			go func() {
				if err := a.tel.Metrics.Serve(ctx); err != nil {
					a.logger.Error().Err(err).Msg("Metrics endpoint stopped")
				}
			}()
			if err := a.watchPolicies(ctx); err != nil {
				return err
			}
			return watchDeclarations(ctx, args, a.logger, func() {
				if err := a.converge(cmd, args); err != nil {
					a.logger.Error().Err(err).Msg("Convergence failed")
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "converge again whenever a declaration or policy changes")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&opts.probeTimeout, "probe-timeout", 0, "how long to wait for the server to come up (default from settings)")
	cmd.Flags().BoolVar(&opts.solo, "solo", false, "describe the managed host as the only node")

	return cmd
}

func (a *app) converge(cmd *cobra.Command, sources []string) error {
	summary, err := a.run(cmd.Context(), sources, false)
	if summary != nil {
		if perr := printSummary(cmd.OutOrStdout(), summary); perr != nil {
			return perr
		}
	}
	return err
}

// watchPolicies swaps the policy set whenever a policy file changes.
func (a *app) watchPolicies(ctx context.Context) error {
	if len(a.settings.PolicyPaths) == 0 {
		return nil
	}
	eng, err := a.policyEngine(ctx)
	if err != nil {
		return err
	}
	return policy.NewLoader(a.logger).Watch(ctx, a.settings.PolicyPaths, func(policies []policy.Policy) error {
		if err := eng.Reload(ctx, policies); err != nil {
			return err
		}
		a.logger.Info().Int("policies", len(policies)).Msg("Policies reloaded")
		return nil
	})
}

func newPlanCommand() *cobra.Command {
	var opts appOptions

	cmd := &cobra.Command{
		Use:   "plan <declaration>...",
		Short: "Show what converge would change",
		Long: `Run every check of a convergence without applying anything.

Steps report whether they would change the host. Notifications are
queued and reported but their handlers are not run. The dry run is
recorded in the state database like any other run.`,
		Example: `  # Preview a convergence
  deckhand plan site.cue

  # Machine readable output
  deckhand plan --json site.cue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.run(cmd.Context(), args, true)
			if summary != nil {
				if perr := printSummary(cmd.OutOrStdout(), summary); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.solo, "solo", false, "describe the managed host as the only node")

	return cmd
}
