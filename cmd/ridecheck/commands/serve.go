package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Install the configured version and serve the application origin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.loadApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return a.Serve(cmd.Context())
		},
	}
}
