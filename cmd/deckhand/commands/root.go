package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
	statePath  string
	target     string
	identity   string

	version = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, v, commit, buildDate string) error {
	version = v
	rootCmd := newRootCommand(v, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deckhand",
		Short: "deckhand - Rundeck server provisioning",
		Long: `deckhand installs and converges a Rundeck job scheduling server from a
declaration: the server itself, its projects, jobs, node sources, ACL
policies and realm users.

Every run is idempotent. Steps whose observed state already matches the
declaration do nothing, and service restarts happen only when something
they depend on changed.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default "+defaultSettingsHint+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "state database path, overrides the settings file")
	rootCmd.PersistentFlags().StringVar(&target, "target", "", "converge a remote host over ssh, user@host[:port]")
	rootCmd.PersistentFlags().StringVar(&identity, "identity", "", "private key for --target")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newConvergeCommand())
	rootCmd.AddCommand(newDriftCommand())
	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newInventoryCommand())
	rootCmd.AddCommand(newSchemaCommand())

	return rootCmd
}
