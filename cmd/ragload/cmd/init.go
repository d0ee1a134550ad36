package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seongho-dev/ragload/configs"
	"github.com/seongho-dev/ragload/internal/config"
	"github.com/seongho-dev/ragload/internal/output"
)

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a ragload.yaml configuration template",
		Long: `Init writes an annotated ragload.yaml to the current directory.
Every value in the template is commented out; the built-in defaults
apply until a line is uncommented.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing ragload.yaml")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(config.DefaultConfigFile); err == nil && !force {
		out.Warningf("%s already exists, use --force to overwrite", config.DefaultConfigFile)
		return fmt.Errorf("%s already exists", config.DefaultConfigFile)
	}

	if err := os.WriteFile(config.DefaultConfigFile, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", config.DefaultConfigFile, err)
	}

	out.Successf("Wrote %s", config.DefaultConfigFile)
	return nil
}
