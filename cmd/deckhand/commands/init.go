package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfroyo/deckhand/pkg/config"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/stores"
	"github.com/spf13/cobra"
)

const sampleDeclaration = `// Declared state of the scheduling server.
server: {
	version: "2.6.11-1"
	port:    4440
	admin: password: "change-me-now"
}

projects: [{
	name: "ops"
	jobs: [{
		name: "cleanup"
		content: """
			- name: cleanup
			  schedule:
			    crontab: '0 0 3 ? * * *'
			  sequence:
			    commands:
			      - exec: find /tmp -mtime +7 -delete
			"""
	}]
	node_sources: [{
		name:  "web"
		query: "role:web"
	}]
}]

users: [{
	name:     "operator"
	password: "change-me-too"
	roles: ["user"]
}]
`

func newInitCommand() *cobra.Command {
	var (
		force  bool
		noKeys bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a deckhand workspace",
		Long: `Initialize a workspace with settings, a sample declaration, a policy
directory, an SSH identity and a migrated state database.

Existing files are left alone unless --force is given.`,
		Example: `  # Initialize the current directory
  deckhand init

  # Initialize a new directory and use it
  deckhand init ./site
  deckhand --config ./site/deckhand.yaml converge ./site/site.cue`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return initWorkspace(cmd.Context(), cmd, dir, force, !noKeys)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing files")
	cmd.Flags().BoolVar(&noKeys, "no-keys", false, "do not generate an SSH identity")

	return cmd
}

func initWorkspace(ctx context.Context, cmd *cobra.Command, dir string, force, keys bool) error {
	out := cmd.OutOrStdout()

	dirs := []string{
		dir,
		filepath.Join(dir, "data"),
		filepath.Join(dir, "policies"),
	}
	if keys {
		dirs = append(dirs, filepath.Join(dir, "keys"))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	settings := config.DefaultSettings()
	settings.StateDB = filepath.Join(dir, "data", "state.db")
	settings.PolicyPaths = []string{filepath.Join(dir, "policies")}

	settingsPath := filepath.Join(dir, "deckhand.yaml")
	if err := writeOnce(settingsPath, force, func() error { return settings.Write(settingsPath) }); err != nil {
		return err
	}
	fmt.Fprintf(out, "Settings:    %s\n", settingsPath)

	declPath := filepath.Join(dir, "site.cue")
	if err := writeOnce(declPath, force, func() error {
		return os.WriteFile(declPath, []byte(sampleDeclaration), 0o644)
	}); err != nil {
		return err
	}
	fmt.Fprintf(out, "Declaration: %s\n", declPath)

	if keys {
		keyPath := filepath.Join(dir, "keys", "deckhand_rsa")
		if err := writeOnce(keyPath, force, func() error {
			pair, err := host.GenerateKeyPair(0, "deckhand")
			if err != nil {
				return err
			}
			if err := os.WriteFile(keyPath, pair.Private, 0o600); err != nil {
				return err
			}
			return os.WriteFile(keyPath+".pub", pair.Public, 0o644)
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "Identity:    %s\n", keyPath)
	}

	store, err := stores.Open(ctx, settings.StateDB)
	if err != nil {
		return fmt.Errorf("failed to initialize state database: %w", err)
	}
	if err := store.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "State:       %s\n", settings.StateDB)
	return nil
}

// writeOnce runs write unless path exists and force is false.
func writeOnce(path string, force bool, write func() error) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := write(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
