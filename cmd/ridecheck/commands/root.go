// Package commands implements the ridecheck command line.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/ridecheck/ridecheck/internal/app"
	"github.com/ridecheck/ridecheck/internal/build"
	"github.com/ridecheck/ridecheck/internal/conf"
	"github.com/ridecheck/ridecheck/internal/logger"
)

// CLI is the ridecheck command tree.
type CLI struct {
	rootCmd    *cobra.Command
	configFile string
}

// New builds the command tree.
func New() *CLI {
	rootCmd := &cobra.Command{
		Use:           "ridecheck",
		Short:         "Offline cache shell host for the RideCheck web app",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	c := &CLI{rootCmd: rootCmd}
	rootCmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "Config file (default ./ridecheck.yaml or /etc/ridecheck/ridecheck.yaml)")

	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newInstallCmd())
	rootCmd.AddCommand(c.newGenerationsCmd())
	rootCmd.AddCommand(c.newVersionCmd())
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output. Used for testing.
func (c *CLI) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
	c.rootCmd.SetErr(w)
}

// loadApp reads settings and builds the application. Logs go to the
// command's error stream.
func (c *CLI) loadApp(cmd *cobra.Command) (*app.App, error) {
	settings, err := conf.Load(c.configFile)
	if err != nil {
		return nil, err
	}
	log, err := app.NewLogger(settings.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	a, err := app.New(settings, log)
	if err != nil {
		return nil, err
	}
	log.Debug("configuration loaded",
		logger.String("cache_name", settings.Shell.CacheName),
		logger.String("storage", settings.Storage.Type))
	return a, nil
}
