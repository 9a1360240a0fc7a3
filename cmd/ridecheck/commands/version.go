package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridecheck/ridecheck/internal/build"
)

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ridecheck version %s\n", build.Version)
		},
	}
}
