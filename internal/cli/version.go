package cli

import (
	"fmt"

	"github.com/fmueller/vidscribe/internal/platform"
	"github.com/fmueller/vidscribe/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		// Printing the version never depends on configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "vidscribe v%s (%s)\n", version.Resolve(), platform.CurrentRuntime())
			return nil
		},
	}
}
