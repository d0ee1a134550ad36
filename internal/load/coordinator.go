package load

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seongho-dev/ragload/internal/chunk"
	"github.com/seongho-dev/ragload/internal/document"
	"github.com/seongho-dev/ragload/internal/embed"
	ragerr "github.com/seongho-dev/ragload/internal/errors"
	"github.com/seongho-dev/ragload/internal/store"
)

const (
	// DefaultWorkers bounds concurrent document loads.
	DefaultWorkers = 4

	// DefaultEmbedBatch is how many children go into one embedding
	// call. A failing call only affects its own batch.
	DefaultEmbedBatch = 32
)

// Config configures the coordinator.
type Config struct {
	// Chunking holds the chunking parameters. Validated up front:
	// invalid parameters fail before any store is touched.
	Chunking chunk.Config

	// Retry bounds store write retries.
	Retry ragerr.RetryConfig

	// Workers bounds concurrent document loads in LoadAll.
	Workers int

	// EmbedBatch is the embedding sub-batch size.
	EmbedBatch int
}

// Coordinator drives the load pipeline. Parents are written and
// confirmed in the document store before any child reaches an index,
// so a child match can always resolve its parent.
type Coordinator struct {
	docs     store.DocumentStore
	lexical  store.LexicalIndex
	vector   store.VectorStore
	embedder embed.Embedder
	chunker  *chunk.Chunker
	config   Config

	// Serializes store writes only. Chunking and embedding run
	// outside the lock and overlap across documents.
	writeMu sync.Mutex
}

// NewCoordinator validates the configuration and assembles the
// pipeline. A chunking parameter violation surfaces here, before any
// store I/O.
func NewCoordinator(
	docs store.DocumentStore,
	lexical store.LexicalIndex,
	vector store.VectorStore,
	embedder embed.Embedder,
	cfg Config,
) (*Coordinator, error) {
	chunker, err := chunk.NewChunker(cfg.Chunking)
	if err != nil {
		return nil, err
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = ragerr.DefaultRetryConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = DefaultEmbedBatch
	}

	return &Coordinator{
		docs:     docs,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		chunker:  chunker,
		config:   cfg,
	}, nil
}

// Load takes one document through the pipeline and reports per-chunk
// outcomes. Chunk-level failures never abort the load; the returned
// error is reserved for context cancellation.
func (c *Coordinator) Load(ctx context.Context, doc *document.Document) (*Report, error) {
	start := time.Now()
	report := NewReport(doc.SourceID)

	parents, err := c.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		// Empty document: zero chunks, zero failures.
		report.Duration = time.Since(start)
		slog.Info("document produced no chunks",
			slog.String("source", doc.SourceID))
		return report, nil
	}

	report.Parents = len(parents)
	for _, p := range parents {
		report.Children += len(p.Children)
	}

	survivors := c.writeParents(ctx, parents, report)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	c.indexChildren(ctx, survivors, report)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	slog.Info("document loaded",
		slog.String("source", doc.SourceID),
		slog.Int("parents", report.Parents),
		slog.Int("children", report.Children),
		slog.Int("indexed", report.Indexed()),
		slog.Int("failed", report.Failed()),
		slog.Duration("duration", report.Duration))

	return report, nil
}

// writeParents writes every parent to the document store with bounded
// retries. A parent that cannot be confirmed withholds its children
// from both indices: they are recorded as consistency failures and
// never reach an index without a resolvable parent.
func (c *Coordinator) writeParents(ctx context.Context, parents []*chunk.ParentChunk, report *Report) []*chunk.ChildChunk {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var survivors []*chunk.ChildChunk

	for _, p := range parents {
		rec := &store.ParentRecord{
			ID:       p.ID,
			SourceID: p.SourceID,
			Ordinal:  p.Ordinal,
			Section:  p.Section,
			Text:     p.Text,
			Metadata: p.Metadata,
		}

		err := ragerr.Retry(ctx, c.config.Retry, func() error {
			return c.docs.Upsert(ctx, rec)
		})
		if err != nil {
			report.Record(Outcome{
				ChunkID: p.ID,
				Kind:    chunk.KindParent,
				Status:  StatusFailed,
				Stage:   StageDocumentStore,
				Code:    ragerr.CodeOf(err),
				Reason:  err.Error(),
			})
			for _, ch := range p.Children {
				withheld := ragerr.ConsistencyError(
					fmt.Sprintf("parent %s could not be confirmed, child withheld from both indices", p.ID), err)
				report.Record(Outcome{
					ChunkID:  ch.ID,
					Kind:     chunk.KindChild,
					ParentID: ch.ParentID,
					Status:   StatusFailed,
					Stage:    StageDocumentStore,
					Code:     ragerr.CodeOf(withheld),
					Reason:   withheld.Error(),
				})
			}
			continue
		}

		report.Record(Outcome{
			ChunkID: p.ID,
			Kind:    chunk.KindParent,
			Status:  StatusIndexed,
		})
		survivors = append(survivors, p.Children...)
	}

	return survivors
}

// indexChildren fans the surviving children out to the semantic and
// lexical indices concurrently. Semantic failures are per sub-batch:
// a child excluded from the vector store does not drag its siblings
// out with it, and the lexical side is independent either way.
func (c *Coordinator) indexChildren(ctx context.Context, children []*chunk.ChildChunk, report *Report) {
	if len(children) == 0 {
		return
	}

	var semanticFailed map[string]error
	var lexicalErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semanticFailed = c.writeSemantic(gctx, children)
		return nil
	})
	g.Go(func() error {
		lexicalErr = c.writeLexical(gctx, children)
		return nil
	})
	_ = g.Wait()

	for _, ch := range children {
		semanticErr := semanticFailed[ch.ID]
		switch {
		case semanticErr == nil && lexicalErr == nil:
			report.Record(Outcome{
				ChunkID:  ch.ID,
				Kind:     chunk.KindChild,
				ParentID: ch.ParentID,
				Status:   StatusIndexed,
			})
		case semanticErr != nil && lexicalErr == nil:
			report.Record(Outcome{
				ChunkID:  ch.ID,
				Kind:     chunk.KindChild,
				ParentID: ch.ParentID,
				Status:   StatusFailed,
				Stage:    StageSemantic,
				Code:     ragerr.CodeOf(semanticErr),
				Reason:   fmt.Sprintf("excluded from semantic index (lexical intact): %v", semanticErr),
			})
		case semanticErr == nil && lexicalErr != nil:
			report.Record(Outcome{
				ChunkID:  ch.ID,
				Kind:     chunk.KindChild,
				ParentID: ch.ParentID,
				Status:   StatusFailed,
				Stage:    StageLexical,
				Code:     ragerr.CodeOf(lexicalErr),
				Reason:   fmt.Sprintf("excluded from lexical index (semantic intact): %v", lexicalErr),
			})
		default:
			report.Record(Outcome{
				ChunkID:  ch.ID,
				Kind:     chunk.KindChild,
				ParentID: ch.ParentID,
				Status:   StatusFailed,
				Stage:    StageSemantic,
				Code:     ragerr.CodeOf(semanticErr),
				Reason:   fmt.Sprintf("excluded from both indices: semantic: %v; lexical: %v", semanticErr, lexicalErr),
			})
		}
	}
}

// writeSemantic embeds the children in sub-batches and upserts every
// sub-batch that embedded. A failing sub-batch is recorded per child
// and does not exclude the other sub-batches from the vector store.
// Returns nil when everything landed.
func (c *Coordinator) writeSemantic(ctx context.Context, children []*chunk.ChildChunk) map[string]error {
	failed := make(map[string]error)

	for start := 0; start < len(children); start += c.config.EmbedBatch {
		end := start + c.config.EmbedBatch
		if end > len(children) {
			end = len(children)
		}
		batch := children[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}

		vectors, err := c.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			reason := ragerr.EmbeddingError("embed children", err)
			for _, ch := range batch {
				failed[ch.ID] = reason
			}
			continue
		}

		ids := make([]string, len(batch))
		metas := make([]store.EntryMeta, len(batch))
		for i, ch := range batch {
			ids[i] = ch.ID
			metas[i] = store.EntryMeta{
				SourceID: ch.SourceID,
				ParentID: ch.ParentID,
				Category: ch.Metadata["category"],
			}
		}

		err = ragerr.Retry(ctx, c.config.Retry, func() error {
			c.writeMu.Lock()
			defer c.writeMu.Unlock()
			return c.vector.Upsert(ctx, ids, vectors, metas)
		})
		if err != nil {
			for _, ch := range batch {
				failed[ch.ID] = err
			}
		}
	}

	if len(failed) == 0 {
		return nil
	}
	return failed
}

// writeLexical upserts the children into the BM25 index.
func (c *Coordinator) writeLexical(ctx context.Context, children []*chunk.ChildChunk) error {
	entries := make([]store.LexicalEntry, len(children))
	for i, ch := range children {
		entries[i] = store.LexicalEntry{
			ID:   ch.ID,
			Text: ch.Text,
			Meta: store.EntryMeta{
				SourceID: ch.SourceID,
				ParentID: ch.ParentID,
				Category: ch.Metadata["category"],
			},
		}
	}

	return ragerr.Retry(ctx, c.config.Retry, func() error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.lexical.Upsert(ctx, entries)
	})
}

// LoadAll loads documents with bounded concurrency. Reports come back
// in input order. A document failure does not stop its siblings; the
// first context cancellation does.
func (c *Coordinator) LoadAll(ctx context.Context, docs []*document.Document) ([]*Report, error) {
	reports := make([]*Report, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)

	for i, doc := range docs {
		g.Go(func() error {
			report, err := c.Load(gctx, doc)
			reports[i] = report
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}
