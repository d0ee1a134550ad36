package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/seongho-dev/ragload/internal/chunk"
	"github.com/seongho-dev/ragload/internal/config"
	"github.com/seongho-dev/ragload/internal/document"
	"github.com/seongho-dev/ragload/internal/embed"
	ragerr "github.com/seongho-dev/ragload/internal/errors"
	"github.com/seongho-dev/ragload/internal/load"
	"github.com/seongho-dev/ragload/internal/output"
	"github.com/seongho-dev/ragload/internal/store"
)

// newLoadCmd creates the load command.
func newLoadCmd() *cobra.Command {
	var manifestPath string
	var offline bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a manifest of documents into the index",
		Long: `Load reads an ingestion manifest, converts each source file,
chunks it hierarchically and writes the chunks to the lexical index,
the semantic index and the document store.

Loading is idempotent: re-running the same manifest replaces chunks
instead of duplicating them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd, manifestPath, offline)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Ingestion manifest (JSON)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no embedding service)")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runLoad(cmd *cobra.Command, manifestPath string, offline bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if offline {
		cfg.Embeddings.Provider = "static"
	}

	entries, err := document.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		out.Warning("Manifest has no entries, nothing to load.")
		return nil
	}
	out.Statusf("📂", "Loading %d documents from %s", len(entries), manifestPath)

	// One loader per data dir. The stores assume a single writer.
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

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	vector, err := store.NewHNSWVectorStore(store.VectorStoreConfig{
		Dimensions: embedder.Dimensions(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = vector.Close() }()
	if err := vector.Load(cfg.VectorStorePath()); err != nil {
		return err
	}

	converted, convFailures := convertEntries(ctx, cfg, entries, out)

	coord, err := load.NewCoordinator(docs, lexical, vector, embedder, load.Config{
		Chunking: chunk.Config{
			ParentMaxSize:  cfg.Chunking.ParentMaxSize,
			ChildMaxSize:   cfg.Chunking.ChildMaxSize,
			ChildOverlap:   cfg.Chunking.ChildOverlap,
			MinChunkLength: cfg.Chunking.MinChunkLength,
		},
		Retry:      retryConfig(cfg),
		Workers:    cfg.Load.Workers,
		EmbedBatch: cfg.Embeddings.BatchSize,
	})
	if err != nil {
		return err
	}

	reports, err := coord.LoadAll(ctx, converted)
	if err != nil {
		return err
	}

	// Persist the HNSW snapshot before reporting success.
	if err := vector.Save(cfg.VectorStorePath()); err != nil {
		return err
	}

	out.Newline()
	out.Summary(reports)
	for _, f := range convFailures {
		out.Errorf("%s: conversion failed: %v", f.file, f.err)
	}

	failed := len(convFailures)
	for _, r := range reports {
		if r != nil && r.HasFailures() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("load completed with failures: %d of %d documents affected", failed, len(entries))
	}

	out.Successf("Loaded %d documents.", len(converted))
	return nil
}

// convFailure is a document that never reached the coordinator.
type convFailure struct {
	file string
	err  error
}

// convertEntries converts every manifest entry. A conversion failure is
// fatal for that document only.
func convertEntries(ctx context.Context, cfg *config.Config, entries []document.ManifestEntry, out *output.Writer) ([]*document.Document, []convFailure) {
	var converter document.Converter
	if cfg.Converter.Endpoint != "" {
		converter = document.NewHTTPConverter(document.HTTPConverterConfig{
			Endpoint: cfg.Converter.Endpoint,
			Timeout:  time.Duration(cfg.Converter.TimeoutSeconds) * time.Second,
		})
	} else {
		converter = document.NewMarkdownConverter()
	}

	var converted []*document.Document
	var failures []convFailure

	for i, entry := range entries {
		out.Progress(i+1, len(entries), "Converting documents")

		doc, err := converter.Convert(ctx, document.ConvertInput{
			Path:     entry.File,
			Metadata: entry.Metadata,
		})
		if err != nil {
			slog.Error("conversion failed",
				slog.String("file", entry.File),
				slog.String("error", err.Error()))
			failures = append(failures, convFailure{file: entry.File, err: err})
			continue
		}
		converted = append(converted, doc)
	}

	return converted, failures
}

func retryConfig(cfg *config.Config) ragerr.RetryConfig {
	rc := ragerr.DefaultRetryConfig()
	rc.MaxRetries = cfg.Load.StoreRetries
	return rc
}
