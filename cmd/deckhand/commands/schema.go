package commands

import (
	"fmt"
	"strings"

	"github.com/openfroyo/deckhand/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newSchemaCommand() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the built-in CUE schema",
		Long: `Print the CUE definitions every declaration source is checked against.

The output can be imported into a CUE package so editors and "cue vet"
check declarations before deckhand sees them.`,
		Example: `  # Save the schema next to a declaration
  deckhand schema > schema.cue

  # List the definition names
  deckhand schema --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				names := config.NewLoader(zerolog.Nop()).Schemas().ListSchemas()
				if jsonOutput {
					return printJSON(out, names)
				}
				fmt.Fprintln(out, strings.Join(names, "\n"))
				return nil
			}
			fmt.Fprint(out, strings.TrimLeft(config.SchemaSource(), "\n"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "only list the definition names")

	return cmd
}
