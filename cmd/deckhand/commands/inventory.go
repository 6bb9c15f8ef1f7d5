package commands

import (
	"fmt"
	"strings"

	"github.com/openfroyo/deckhand/pkg/config"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/stores"
	"github.com/spf13/cobra"
)

func newInventoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Manage the node inventory",
		Long: `Manage the nodes node sources search.

Nodes live in the state database unless the settings name an inventory
file. Queries are space or AND separated key:value terms where the value
may use * wildcards, for example "role:web AND environment:prod".`,
	}

	cmd.AddCommand(newInventoryAddCommand())
	cmd.AddCommand(newInventoryListCommand())
	cmd.AddCommand(newInventorySearchCommand())
	cmd.AddCommand(newInventoryImportCommand())
	cmd.AddCommand(newInventoryRemoveCommand())

	return cmd
}

// withStore opens the app and its state database for an inventory
// subcommand.
func withStore(cmd *cobra.Command, fn func(a *app, store *stores.SQLiteStore) error) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	return fn(a, store)
}

func printNodes(cmd *cobra.Command, nodes []host.Node) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, nodes)
	}
	tw := newTable(out, "NAME", "ROLES", "ENVIRONMENT", "FQDN", "OS")
	for _, n := range nodes {
		row(tw, n.Name, orDash(strings.Join(n.Roles, ",")), orDash(n.Environment), orDash(n.FQDN), orDash(n.OS))
	}
	return tw.Flush()
}

func newInventoryAddCommand() *cobra.Command {
	var (
		node  host.Node
		attrs []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a node",
		Example: `  deckhand inventory add --name web01 --role web --env prod --attr rack=a1`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kv := range attrs {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid attribute %q, want key=value", kv)
				}
				if node.Attributes == nil {
					node.Attributes = make(map[string]string)
				}
				node.Attributes[k] = v
			}
			if err := config.ValidateStruct(config.NewValidator(), node); err != nil {
				return err
			}

			return withStore(cmd, func(a *app, store *stores.SQLiteStore) error {
				if err := store.UpsertNode(cmd.Context(), node); err != nil {
					return err
				}
				a.logger.Info().Str("node", node.Name).Msg("Node saved")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&node.Name, "name", "", "node name")
	cmd.Flags().StringVar(&node.Description, "description", "", "node description")
	cmd.Flags().StringSliceVar(&node.Roles, "role", nil, "node roles")
	cmd.Flags().StringSliceVar(&node.Recipes, "recipe", nil, "node recipes")
	cmd.Flags().StringVar(&node.FQDN, "fqdn", "", "fully qualified domain name")
	cmd.Flags().StringVar(&node.OS, "os", "", "operating system")
	cmd.Flags().StringVar(&node.Environment, "env", "", "environment")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "extra searchable attribute, key=value")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newInventoryListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(a *app, store *stores.SQLiteStore) error {
				nodes, err := store.ListNodes(cmd.Context())
				if err != nil {
					return err
				}
				return printNodes(cmd, nodes)
			})
		},
	}
}

func newInventorySearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search nodes the way a node source does",
		Example: `  deckhand inventory search 'role:web AND environment:prod'
  deckhand inventory search --limit 1 'name:web*'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			var inv host.Inventory
			if a.settings.InventoryFile != "" {
				inv = &host.FileInventory{Path: a.settings.InventoryFile}
			} else {
				store, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				inv = store
			}

			nodes, err := inv.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printNodes(cmd, nodes)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of nodes, 0 for all")

	return cmd
}

func newInventoryImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import nodes from a YAML or JSON file",
		Long: `Import a node list into the state database.

The file holds a list of nodes with the same fields as "inventory add".
Nodes are upserted by name in a single transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := (&host.FileInventory{Path: args[0]}).Load()
			if err != nil {
				return err
			}
			return withStore(cmd, func(a *app, store *stores.SQLiteStore) error {
				if err := store.ImportNodes(cmd.Context(), nodes); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d nodes\n", len(nodes))
				return nil
			})
		},
	}
}

func newInventoryRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>...",
		Aliases: []string{"rm"},
		Short:   "Remove nodes",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(a *app, store *stores.SQLiteStore) error {
				for _, name := range args {
					if err := store.DeleteNode(cmd.Context(), name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
