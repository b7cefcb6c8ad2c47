package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/formflat"
	"github.com/happyhackingspace/formflat/internal/config"
	"github.com/happyhackingspace/formflat/internal/kobo"
	"github.com/happyhackingspace/formflat/internal/storage"
)

// CLI encapsulates the command-line interface with its dependencies.
type CLI struct {
	version     string
	verbose     bool
	silent      bool
	configFile  string
	token       string
	initialized bool
	cfg         *config.Config
	rootCmd     *cobra.Command
}

// New creates a new CLI instance with the given version string.
func New(version string) *CLI {
	c := &CLI{version: version}
	c.setupCommands()
	return c
}

// setupCommands initializes all CLI commands and their configurations.
func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:           "formflat",
		Short:         "Export survey submissions to spreadsheets, CSV and SQLite",
		Version:       c.version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.initApp()
			return c.loadConfig()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	c.rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose/debug output")
	c.rootCmd.PersistentFlags().BoolVarP(&c.silent, "silent", "s", false, "Suppress all logging and progress output")
	c.rootCmd.PersistentFlags().StringVar(&c.configFile, "config", "", "Config file (default: ./formflat.yaml)")
	c.rootCmd.PersistentFlags().StringVar(&c.token, "token", "", "API token (overrides api.token)")

	defaultHelp := c.rootCmd.HelpFunc()
	c.rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		c.initApp()
		defaultHelp(cmd, args)
	})

	c.rootCmd.AddCommand(c.newTokenCommand())
	c.rootCmd.AddCommand(c.newFormsCommand())
	c.rootCmd.AddCommand(c.newExportCommand())
	c.rootCmd.AddCommand(c.newPullCommand())
	c.rootCmd.AddCommand(c.newSchemaCommand())
	c.rootCmd.AddCommand(c.newServeCommand())
	c.rootCmd.AddCommand(c.newUpCommand())
}

// Run executes the CLI and returns any error.
func (c *CLI) Run() error {
	return c.rootCmd.ExecuteContext(context.Background())
}

// initApp initializes logging.
func (c *CLI) initApp() {
	if c.initialized {
		return
	}
	c.initialized = true

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	if c.silent {
		level = slog.Level(100)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func (c *CLI) loadConfig() error {
	if c.cfg != nil {
		return nil
	}
	var (
		cfg *config.Config
		err error
	)
	if c.configFile != "" {
		cfg, err = config.NewFileLoader(c.configFile).Load()
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return err
	}
	if c.token != "" {
		cfg.API.Token = c.token
	}
	slog.Debug("Config loaded", "api", cfg.API.URL, "data_folder", cfg.Storage.DataFolder)
	c.cfg = cfg
	return nil
}

func (c *CLI) client() *kobo.Client {
	return kobo.New(c.cfg.API.URL, kobo.WithTimeout(c.cfg.API.Timeout))
}

func (c *CLI) storage() *storage.Storage {
	return storage.NewStorage(c.cfg.Storage.DataFolder)
}

func (c *CLI) authedClient() (*kobo.Client, error) {
	if c.cfg.API.Token == "" {
		return nil, fmt.Errorf("no API token: pass --token, set FORMFLAT_API_TOKEN or run 'formflat token'")
	}
	return c.client().WithToken(c.cfg.API.Token), nil
}

// source returns the offline store or the API bound to the configured token.
func (c *CLI) source(offline bool) (formflat.Source, error) {
	if offline {
		return c.storage(), nil
	}
	client, err := c.authedClient()
	if err != nil {
		return nil, err
	}
	return client, nil
}
