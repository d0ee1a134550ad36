package load

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seongho-dev/ragload/internal/store"
)

// IssueType categorizes a detected cross-store issue.
type IssueType int

const (
	// IssueOrphanChild is a child in the semantic index whose parent
	// cannot be resolved in the document store.
	IssueOrphanChild IssueType = iota
	// IssueMissingSemantic is a child present lexically but not
	// semantically.
	IssueMissingSemantic
	// IssueMissingLexical is a child present semantically but not
	// lexically.
	IssueMissingLexical
)

func (t IssueType) String() string {
	switch t {
	case IssueOrphanChild:
		return "orphan_child"
	case IssueMissingSemantic:
		return "missing_semantic"
	case IssueMissingLexical:
		return "missing_lexical"
	default:
		return "unknown"
	}
}

// Issue is one detected inconsistency.
type Issue struct {
	Type    IssueType
	ChunkID string
	Detail  string
}

// CheckResult is the outcome of a consistency sweep.
type CheckResult struct {
	// Checked is the number of distinct child IDs examined.
	Checked int
	// Issues lists every detected inconsistency.
	Issues []Issue
	// Duration is how long the sweep took.
	Duration time.Duration
}

// Consistent reports whether the sweep found nothing.
func (r *CheckResult) Consistent() bool {
	return len(r.Issues) == 0
}

// Checker sweeps the three stores for violations of the referential
// integrity invariant: every indexed child resolves to a parent, and
// the two indices hold the same child set.
type Checker struct {
	docs    store.DocumentStore
	lexical store.LexicalIndex
	vector  *store.HNSWVectorStore
}

// NewChecker creates a checker over the given stores. The concrete
// vector store type is required for per-entry metadata access.
func NewChecker(docs store.DocumentStore, lexical store.LexicalIndex, vector *store.HNSWVectorStore) *Checker {
	return &Checker{docs: docs, lexical: lexical, vector: vector}
}

// Check scans all stores. O(n) in the total entry count.
func (c *Checker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	var issues []Issue

	lexicalIDs, err := c.lexical.AllIDs()
	if err != nil {
		return nil, err
	}
	vectorIDs := c.vector.AllIDs()

	lexicalSet := make(map[string]bool, len(lexicalIDs))
	for _, id := range lexicalIDs {
		lexicalSet[id] = true
	}
	vectorSet := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = true
	}

	// Index divergence in both directions.
	for _, id := range lexicalIDs {
		if !vectorSet[id] {
			issues = append(issues, Issue{
				Type:    IssueMissingSemantic,
				ChunkID: id,
				Detail:  "child indexed lexically but absent from the semantic index",
			})
		}
	}
	for _, id := range vectorIDs {
		if !lexicalSet[id] {
			issues = append(issues, Issue{
				Type:    IssueMissingLexical,
				ChunkID: id,
				Detail:  "child indexed semantically but absent from the lexical index",
			})
		}
	}

	// Parent resolvability. Vector entries carry their parent in
	// in-memory metadata; lexical-only entries fall back to the stored
	// parent_id field below.
	for _, id := range vectorIDs {
		meta, ok := c.vector.Meta(id)
		if !ok {
			continue
		}
		exists, err := c.docs.Exists(ctx, meta.ParentID)
		if err != nil {
			return nil, err
		}
		if !exists {
			issues = append(issues, Issue{
				Type:    IssueOrphanChild,
				ChunkID: id,
				Detail:  fmt.Sprintf("parent %s not found in document store", meta.ParentID),
			})
		}
	}

	for _, id := range lexicalIDs {
		if vectorSet[id] {
			continue
		}
		parentID, err := c.lexical.ParentID(id)
		if err != nil {
			return nil, err
		}
		exists, err := c.docs.Exists(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if !exists {
			issues = append(issues, Issue{
				Type:    IssueOrphanChild,
				ChunkID: id,
				Detail:  fmt.Sprintf("parent %s not found in document store", parentID),
			})
		}
	}

	checked := len(lexicalSet)
	for id := range vectorSet {
		if !lexicalSet[id] {
			checked++
		}
	}

	result := &CheckResult{
		Checked:  checked,
		Issues:   issues,
		Duration: time.Since(start),
	}

	if !result.Consistent() {
		slog.Warn("consistency sweep found issues",
			slog.Int("checked", result.Checked),
			slog.Int("issues", len(result.Issues)))
	}

	return result, nil
}

// Repair deletes orphaned children from both indices, best-effort.
// Index divergence is not repaired here: it needs a reload of the
// affected source.
func (c *Checker) Repair(ctx context.Context, issues []Issue) error {
	var orphans []string
	for _, issue := range issues {
		if issue.Type == IssueOrphanChild {
			orphans = append(orphans, issue.ChunkID)
		}
	}
	if len(orphans) == 0 {
		return nil
	}

	if err := c.vector.Delete(ctx, orphans); err != nil {
		slog.Warn("failed to delete orphan children from semantic index",
			slog.Int("count", len(orphans)),
			slog.String("error", err.Error()))
	}
	if err := c.lexical.Delete(ctx, orphans); err != nil {
		slog.Warn("failed to delete orphan children from lexical index",
			slog.Int("count", len(orphans)),
			slog.String("error", err.Error()))
	}

	slog.Info("removed orphan children", slog.Int("count", len(orphans)))
	return nil
}
