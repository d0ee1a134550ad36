package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seongho-dev/ragload/internal/embed"
	"github.com/seongho-dev/ragload/internal/load"
	"github.com/seongho-dev/ragload/internal/output"
	"github.com/seongho-dev/ragload/internal/store"
)

// newVerifyCmd creates the verify command.
func newVerifyCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check cross-store consistency of an existing index",
		Long: `Verify sweeps the lexical index, the semantic index and the
document store: every indexed child must appear in both indices and
resolve to a stored parent.

With --repair, orphaned children are removed from both indices.
Index divergence is reported but not repaired; reload the affected
sources instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, repair)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Remove orphaned children from both indices")

	return cmd
}

func runVerify(cmd *cobra.Command, repair bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lock := load.NewDirLock(cfg.DataDir)
	if err := lock.TryLock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	docs, err := store.NewSQLiteDocumentStore(cfg.DocumentStorePath())
	if err != nil {
		return err
	}
	defer func() { _ = docs.Close() }()

	lexical, err := store.NewBleveLexicalIndex(cfg.LexicalIndexPath())
	if err != nil {
		return err
	}
	defer func() { _ = lexical.Close() }()

	// Dimensions only matter for writes; the sweep reads IDs and
	// metadata, and the snapshot carries its own configuration.
	vector, err := store.NewHNSWVectorStore(store.VectorStoreConfig{
		Dimensions: embed.StaticDimensions,
	})
	if err != nil {
		return err
	}
	defer func() { _ = vector.Close() }()
	if err := vector.Load(cfg.VectorStorePath()); err != nil {
		return err
	}

	checker := load.NewChecker(docs, lexical, vector)
	result, err := checker.Check(ctx)
	if err != nil {
		return err
	}

	out.Statusf("🔍", "Checked %d children in %s", result.Checked, result.Duration.Round(time.Millisecond))

	if result.Consistent() {
		out.Success("Stores are consistent.")
		return nil
	}

	for _, issue := range result.Issues {
		out.Errorf("[%s] %s: %s", issue.Type, issue.ChunkID, issue.Detail)
	}

	if repair {
		if err := checker.Repair(ctx, result.Issues); err != nil {
			return err
		}
		if err := vector.Save(cfg.VectorStorePath()); err != nil {
			return err
		}
		out.Success("Orphaned children removed.")
		return nil
	}

	return fmt.Errorf("found %d consistency issues", len(result.Issues))
}
