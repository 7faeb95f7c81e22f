package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigscope/sigscope/internal/buildinfo"
)

// Command creates a new cobra.Command to print build information.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sigscope version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Current().String())
			return err
		},
	}
}
