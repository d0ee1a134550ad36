package load

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seongho-dev/ragload/internal/embed"
	"github.com/seongho-dev/ragload/internal/store"
)

func testVector(seed int) []float32 {
	v := make([]float32, embed.StaticDimensions)
	v[seed%embed.StaticDimensions] = 1
	return v
}

func TestCheck_ConsistentAfterLoad(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Load(context.Background(), testDoc("doc.md"))
	require.NoError(t, err)

	result, err := NewChecker(f.docs, f.lexical, f.vector).Check(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Consistent())
	assert.Greater(t, result.Checked, 0)
}

func TestCheck_DetectsOrphanChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A child in both indices whose parent was never stored.
	err := f.vector.Upsert(ctx, []string{"orphan-1"}, [][]float32{testVector(1)},
		[]store.EntryMeta{{SourceID: "doc.md", ParentID: "no-such-parent"}})
	require.NoError(t, err)
	err = f.lexical.Upsert(ctx, []store.LexicalEntry{
		{ID: "orphan-1", Text: "stranded child text", Meta: store.EntryMeta{SourceID: "doc.md", ParentID: "no-such-parent"}},
	})
	require.NoError(t, err)

	result, err := NewChecker(f.docs, f.lexical, f.vector).Check(ctx)
	require.NoError(t, err)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, IssueOrphanChild, result.Issues[0].Type)
	assert.Equal(t, "orphan-1", result.Issues[0].ChunkID)
}

func TestCheck_DetectsIndexDivergence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.docs.Upsert(ctx, &store.ParentRecord{
		ID: "parent-1", SourceID: "doc.md", Text: "parent text",
	}))

	// Lexical-only child.
	err := f.lexical.Upsert(ctx, []store.LexicalEntry{
		{ID: "lex-only", Text: "lexical only", Meta: store.EntryMeta{SourceID: "doc.md", ParentID: "parent-1"}},
	})
	require.NoError(t, err)

	// Semantic-only child.
	err = f.vector.Upsert(ctx, []string{"vec-only"}, [][]float32{testVector(2)},
		[]store.EntryMeta{{SourceID: "doc.md", ParentID: "parent-1"}})
	require.NoError(t, err)

	result, err := NewChecker(f.docs, f.lexical, f.vector).Check(ctx)
	require.NoError(t, err)

	require.Len(t, result.Issues, 2)
	byType := make(map[IssueType]string)
	for _, issue := range result.Issues {
		byType[issue.Type] = issue.ChunkID
	}
	assert.Equal(t, "lex-only", byType[IssueMissingSemantic])
	assert.Equal(t, "vec-only", byType[IssueMissingLexical])
}

func TestCheck_DetectsLexicalOnlyOrphan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A child only the lexical index knows about, with a parent that
	// was never stored. The vector store has no metadata for it, so
	// the parent must come from the indexed parent_id field.
	err := f.lexical.Upsert(ctx, []store.LexicalEntry{
		{ID: "lex-orphan", Text: "stranded lexical child", Meta: store.EntryMeta{SourceID: "doc.md", ParentID: "no-such-parent"}},
	})
	require.NoError(t, err)

	result, err := NewChecker(f.docs, f.lexical, f.vector).Check(ctx)
	require.NoError(t, err)

	byType := make(map[IssueType]string)
	for _, issue := range result.Issues {
		byType[issue.Type] = issue.ChunkID
	}
	assert.Equal(t, "lex-orphan", byType[IssueOrphanChild])
	assert.Equal(t, "lex-orphan", byType[IssueMissingSemantic])
}

func TestRepair_RemovesOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.vector.Upsert(ctx, []string{"orphan-1"}, [][]float32{testVector(3)},
		[]store.EntryMeta{{SourceID: "doc.md", ParentID: "gone"}})
	require.NoError(t, err)
	err = f.lexical.Upsert(ctx, []store.LexicalEntry{
		{ID: "orphan-1", Text: "stranded", Meta: store.EntryMeta{SourceID: "doc.md", ParentID: "gone"}},
	})
	require.NoError(t, err)

	checker := NewChecker(f.docs, f.lexical, f.vector)
	result, err := checker.Check(ctx)
	require.NoError(t, err)
	require.False(t, result.Consistent())

	require.NoError(t, checker.Repair(ctx, result.Issues))

	after, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, after.Consistent())
	assert.Equal(t, 0, f.vector.Count())

	lexCount, err := f.lexical.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, lexCount)
}

func TestIssueType_String(t *testing.T) {
	assert.Equal(t, "orphan_child", IssueOrphanChild.String())
	assert.Equal(t, "missing_semantic", IssueMissingSemantic.String())
	assert.Equal(t, "missing_lexical", IssueMissingLexical.String())
}
