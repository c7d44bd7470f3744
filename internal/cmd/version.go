package cmd

import (
	"fmt"

	"github.com/Sternrassler/qatouch-reporter/pkg/qatouch"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "qatouch-reporter %s\n", qatouch.Version)
			return nil
		},
	}
}
