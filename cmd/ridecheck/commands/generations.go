package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *CLI) newGenerationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generations",
		Short: "Inspect and clean up stored cache generations",
	}
	cmd.AddCommand(c.newGenerationsListCmd(), c.newGenerationsPruneCmd())
	return cmd
}

func (c *CLI) newGenerationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cache generations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.loadApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			names, err := a.Storage.Names(ctx)
			if err != nil {
				return err
			}
			current := a.Settings.Shell.CacheName

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tENTRIES\tCURRENT")
			for _, name := range names {
				entries := "-"
				if gen, err := a.Storage.Open(ctx, name); err == nil {
					if keys, err := gen.Keys(ctx); err == nil {
						entries = fmt.Sprint(len(keys))
					}
				}
				marker := ""
				if name == current {
					marker = "*"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", name, entries, marker)
			}
			return w.Flush()
		},
	}
}

func (c *CLI) newGenerationsPruneCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete every generation except the configured one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.loadApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			keep := a.Settings.Shell.CacheName
			out := cmd.OutOrStdout()
			if dryRun {
				names, err := a.Storage.Names(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					if name != keep {
						_, _ = fmt.Fprintf(out, "would delete %s\n", name)
					}
				}
				return nil
			}

			deleted, err := a.Prune(cmd.Context(), keep)
			for _, name := range deleted {
				_, _ = fmt.Fprintf(out, "deleted %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(deleted) == 0 {
				_, _ = fmt.Fprintln(out, "nothing to prune")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Only print what would be deleted")
	return cmd
}
