package load

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seongho-dev/ragload/internal/chunk"
	"github.com/seongho-dev/ragload/internal/document"
	"github.com/seongho-dev/ragload/internal/embed"
	ragerr "github.com/seongho-dev/ragload/internal/errors"
	"github.com/seongho-dev/ragload/internal/store"
)

type fixture struct {
	docs    *store.SQLiteDocumentStore
	lexical *store.BleveLexicalIndex
	vector  *store.HNSWVectorStore
	coord   *Coordinator
}

func testConfig() Config {
	return Config{
		Chunking: chunk.Config{ParentMaxSize: 100, ChildMaxSize: 40, ChildOverlap: 10, MinChunkLength: 4},
		Retry:    ragerr.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		Workers:  2,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	docs, err := store.NewSQLiteDocumentStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	lexical, err := store.NewBleveLexicalIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	vector, err := store.NewHNSWVectorStore(store.VectorStoreConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	coord, err := NewCoordinator(docs, lexical, vector, embedder, testConfig())
	require.NoError(t, err)

	return &fixture{docs: docs, lexical: lexical, vector: vector, coord: coord}
}

func testDoc(sourceID string) *document.Document {
	return &document.Document{
		SourceID: sourceID,
		Text: "# Overview\n" + strings.Repeat("retrieval pipeline content. ", 3) +
			"\n# Details\n" + strings.Repeat("store consistency notes. ", 3),
		Sections: []document.Section{
			{Title: "Overview", Level: 1, Offset: 0},
			{Title: "Details", Level: 1, Offset: len([]rune("# Overview\n" + strings.Repeat("retrieval pipeline content. ", 3) + "\n"))},
		},
		Metadata: map[string]string{"category": "guide"},
	}
}

func TestLoad_HappyPath(t *testing.T) {
	f := newFixture(t)

	report, err := f.coord.Load(context.Background(), testDoc("doc.md"))
	require.NoError(t, err)

	assert.Greater(t, report.Parents, 0)
	assert.Greater(t, report.Children, 0)
	assert.False(t, report.HasFailures())
	assert.Equal(t, report.Parents+report.Children, report.Indexed())

	// Both indices hold exactly the children.
	lexCount, err := f.lexical.Count()
	require.NoError(t, err)
	assert.Equal(t, report.Children, lexCount)
	assert.Equal(t, report.Children, f.vector.Count())

	docCount, err := f.docs.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Parents, docCount)
}

func TestLoad_EmptyDocumentZeroFailureReport(t *testing.T) {
	f := newFixture(t)

	report, err := f.coord.Load(context.Background(), &document.Document{
		SourceID: "empty.md",
		Text:     "   \n\t\n",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Parents)
	assert.Equal(t, 0, report.Children)
	assert.Empty(t, report.Outcomes)
	assert.False(t, report.HasFailures())

	// No store was touched.
	docCount, err := f.docs.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, docCount)
	assert.Equal(t, 0, f.vector.Count())
}

func TestLoad_InvalidChunkingRejectedBeforeStores(t *testing.T) {
	f := newFixture(t)

	cfg := testConfig()
	cfg.Chunking.ChildOverlap = cfg.Chunking.ChildMaxSize // overlap == child size

	_, err := NewCoordinator(f.docs, f.lexical, f.vector, embed.NewStaticEmbedder(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.New(ragerr.ErrCodeChunkingParams, "", nil))
	assert.Equal(t, ragerr.CategoryConfig, ragerr.CategoryOf(err))

	// Rejection happened before any store I/O.
	docCount, countErr := f.docs.Count(context.Background())
	require.NoError(t, countErr)
	assert.Equal(t, 0, docCount)
	assert.Equal(t, 0, f.vector.Count())
}

func TestLoad_Idempotent(t *testing.T) {
	f := newFixture(t)
	doc := testDoc("doc.md")

	first, err := f.coord.Load(context.Background(), doc)
	require.NoError(t, err)
	require.False(t, first.HasFailures())

	lexBefore, err := f.lexical.AllIDs()
	require.NoError(t, err)
	vecBefore := f.vector.AllIDs()
	docsBefore, err := f.docs.AllIDs(context.Background())
	require.NoError(t, err)

	second, err := f.coord.Load(context.Background(), doc)
	require.NoError(t, err)
	require.False(t, second.HasFailures())

	// Same document, same identities: the stores did not grow.
	lexAfter, err := f.lexical.AllIDs()
	require.NoError(t, err)
	vecAfter := f.vector.AllIDs()
	docsAfter, err := f.docs.AllIDs(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, lexBefore, lexAfter)
	assert.ElementsMatch(t, vecBefore, vecAfter)
	assert.ElementsMatch(t, docsBefore, docsAfter)
}

func TestLoad_ReferentialIntegrity(t *testing.T) {
	f := newFixture(t)

	report, err := f.coord.Load(context.Background(), testDoc("doc.md"))
	require.NoError(t, err)
	require.False(t, report.HasFailures())

	// Every indexed child resolves to a stored parent.
	for _, id := range f.vector.AllIDs() {
		meta, ok := f.vector.Meta(id)
		require.True(t, ok)

		parent, err := f.docs.Get(context.Background(), meta.ParentID)
		require.NoError(t, err)
		assert.Equal(t, "doc.md", parent.SourceID)
	}

	checker := NewChecker(f.docs, f.lexical, f.vector)
	result, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Consistent())
}

// failingDocStore rejects every write.
type failingDocStore struct {
	store.DocumentStore
}

func (s *failingDocStore) Upsert(ctx context.Context, rec *store.ParentRecord) error {
	return ragerr.StoreError("disk full", nil)
}

func TestLoad_ParentFailureWithholdsChildren(t *testing.T) {
	f := newFixture(t)

	cfg := testConfig()
	coord, err := NewCoordinator(&failingDocStore{DocumentStore: f.docs}, f.lexical, f.vector,
		embed.NewStaticEmbedder(), cfg)
	require.NoError(t, err)

	report, err := coord.Load(context.Background(), testDoc("doc.md"))
	require.NoError(t, err)

	// Every chunk failed: parents at the document store, children as
	// consistency failures.
	assert.Equal(t, report.Parents+report.Children, report.Failed())
	assert.Equal(t, 0, report.Indexed())

	var childCodes []string
	for _, o := range report.Outcomes {
		if o.Kind == chunk.KindChild {
			childCodes = append(childCodes, o.Code)
		}
	}
	require.NotEmpty(t, childCodes)
	for _, code := range childCodes {
		assert.Equal(t, ragerr.ErrCodeConsistency, code)
	}

	// Neither index received a child without a confirmed parent.
	lexCount, err := f.lexical.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, lexCount)
	assert.Equal(t, 0, f.vector.Count())
}

// failingEmbedder errors on every batch.
type failingEmbedder struct {
	embed.Embedder
}

func (e *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ragerr.EmbeddingError("model exploded", nil)
}

func TestLoad_EmbeddingFailureExcludesSemanticOnly(t *testing.T) {
	f := newFixture(t)

	coord, err := NewCoordinator(f.docs, f.lexical, f.vector,
		&failingEmbedder{Embedder: embed.NewStaticEmbedder()}, testConfig())
	require.NoError(t, err)

	report, err := coord.Load(context.Background(), testDoc("doc.md"))
	require.NoError(t, err)

	// Children failed on the semantic side but still landed lexically.
	assert.True(t, report.HasFailures())
	for _, o := range report.Outcomes {
		if o.Kind == chunk.KindChild {
			assert.Equal(t, StatusFailed, o.Status)
			assert.Equal(t, StageSemantic, o.Stage)
			assert.Equal(t, ragerr.ErrCodeEmbeddingFailed, o.Code)
		}
	}

	lexCount, err := f.lexical.Count()
	require.NoError(t, err)
	assert.Equal(t, report.Children, lexCount)
	assert.Equal(t, 0, f.vector.Count())

	// Parents were still written.
	docCount, err := f.docs.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Parents, docCount)
}

// selectiveEmbedder fails any batch whose text carries the marker.
type selectiveEmbedder struct {
	embed.Embedder
	marker string
}

func (e *selectiveEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, e.marker) {
			return nil, ragerr.EmbeddingError("model rejected input", nil)
		}
	}
	return e.Embedder.EmbedBatch(ctx, texts)
}

func TestLoad_PartialEmbeddingFailureKeepsSiblings(t *testing.T) {
	f := newFixture(t)

	cfg := testConfig()
	cfg.EmbedBatch = 1
	coord, err := NewCoordinator(f.docs, f.lexical, f.vector,
		&selectiveEmbedder{Embedder: embed.NewStaticEmbedder(), marker: "zzpoison"}, cfg)
	require.NoError(t, err)

	doc := &document.Document{
		SourceID: "partial.md",
		Text: strings.Repeat("alpha beta gamma delta content words. ", 3) +
			"\n\nzzpoison paragraph the model always rejects.\n\n" +
			strings.Repeat("epsilon zeta eta theta closing words. ", 3),
		Metadata: map[string]string{"category": "guide"},
	}

	report, err := coord.Load(context.Background(), doc)
	require.NoError(t, err)

	// Only the batches carrying the bad text failed; their siblings
	// still reached the vector store.
	var failedChildren, indexedChildren int
	for _, o := range report.Outcomes {
		if o.Kind != chunk.KindChild {
			continue
		}
		switch o.Status {
		case StatusFailed:
			failedChildren++
			assert.Equal(t, StageSemantic, o.Stage)
			assert.Equal(t, ragerr.ErrCodeEmbeddingFailed, o.Code)
		case StatusIndexed:
			indexedChildren++
		}
	}
	require.Greater(t, failedChildren, 0)
	require.Greater(t, indexedChildren, 0)
	assert.Equal(t, indexedChildren, f.vector.Count())

	// The lexical side is untouched by embedding failures.
	lexCount, err := f.lexical.Count()
	require.NoError(t, err)
	assert.Equal(t, report.Children, lexCount)
}

// rendezvousEmbedder blocks every embed call until released, so the
// test can observe how many calls are in flight at once.
type rendezvousEmbedder struct {
	embed.Embedder
	arrived chan struct{}
	release chan struct{}
}

func (e *rendezvousEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.arrived <- struct{}{}
	<-e.release
	return e.Embedder.EmbedBatch(ctx, texts)
}

func TestLoadAll_EmbeddingOverlapsAcrossDocuments(t *testing.T) {
	f := newFixture(t)

	emb := &rendezvousEmbedder{
		Embedder: embed.NewStaticEmbedder(),
		arrived:  make(chan struct{}, 8),
		release:  make(chan struct{}),
	}
	coord, err := NewCoordinator(f.docs, f.lexical, f.vector, emb, testConfig())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := coord.LoadAll(context.Background(),
			[]*document.Document{testDoc("a.md"), testDoc("b.md")})
		done <- err
	}()

	// Both documents must be blocked inside the embedder at the same
	// time: store writes serialize, embedding does not.
	for i := 0; i < 2; i++ {
		select {
		case <-emb.arrived:
		case <-time.After(5 * time.Second):
			t.Fatal("embedding did not overlap across documents")
		}
	}
	close(emb.release)

	require.NoError(t, <-done)
}

func TestLoadAll_ReportsInInputOrder(t *testing.T) {
	f := newFixture(t)

	docs := []*document.Document{
		testDoc("a.md"),
		{SourceID: "empty.md", Text: ""},
		testDoc("c.md"),
	}

	reports, err := f.coord.LoadAll(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	assert.Equal(t, "a.md", reports[0].SourceID)
	assert.Equal(t, "empty.md", reports[1].SourceID)
	assert.Equal(t, "c.md", reports[2].SourceID)

	assert.Greater(t, reports[0].Indexed(), 0)
	assert.Equal(t, 0, reports[1].Indexed())
	assert.Greater(t, reports[2].Indexed(), 0)
}

func TestLoad_CancelledContext(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coord.Load(ctx, testDoc("doc.md"))
	assert.Error(t, err)
}
