// Package cmd provides the CLI commands for ragload.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/seongho-dev/ragload/internal/config"
	"github.com/seongho-dev/ragload/internal/logging"
	"github.com/seongho-dev/ragload/pkg/version"
)

var (
	configPath string
	logLevel   string

	loggingCleanup func()
)

// NewRootCmd creates the root command for the ragload CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragload",
		Short: "Load documents into a hybrid retrieval index",
		Long: `ragload takes converted documents through hierarchical chunking,
embedding and three consistent stores: a BM25 lexical index, an HNSW
semantic index and a SQLite parent store.

Run 'ragload load --manifest manifest.json' to load a batch.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ragload version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ragload.yaml if present)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig resolves the configuration and installs logging. Called by
// subcommands that touch the stores; version stays config-free.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	cleanup, err := logging.SetupDefault(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.LogFilePath(),
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
	})
	if err != nil {
		return nil, err
	}
	loggingCleanup = cleanup

	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
