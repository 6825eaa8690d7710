package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/coordtest/internal/harness"
)

// NewDirectivesCommand creates the directives command, which lists the
// directive names a script may use.
func NewDirectivesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "directives",
		Short: "List the recognized script directives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := harness.Directives()
			slices.Sort(names)
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return out.Success(names)
			}
			return out.Success(strings.Join(names, "\n"))
		},
	}
}
