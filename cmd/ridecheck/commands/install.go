package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Fetch the seed manifest into a new cache generation and activate it",
		Long: "Install fetches every manifest entry from the upstream origin into the " +
			"configured cache generation, then deletes all other generations. " +
			"If any entry fails to fetch nothing is activated.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.loadApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Install(cmd.Context()); err != nil {
				return err
			}
			ctrl := a.Registration.Active()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "installed %s (%d entries)\n", ctrl.CacheName(), len(ctrl.Manifest()))
			return nil
		},
	}
}
