// Package chunk implements hierarchical chunking: parent chunks carry
// retrieval context, child chunks are the precision units actually
// indexed. Identities are derived from content, so re-chunking an
// unchanged document yields the same IDs.
package chunk

import (
	"fmt"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// Chunk size defaults, in runes.
const (
	DefaultParentMaxSize  = 2000
	DefaultChildMaxSize   = 400
	DefaultChildOverlap   = 50
	DefaultMinChunkLength = 8
)

// Kind distinguishes the two chunk granularities.
type Kind string

const (
	KindParent Kind = "parent"
	KindChild  Kind = "child"
)

// Config holds the chunking parameters. All sizes are rune counts.
type Config struct {
	ParentMaxSize  int
	ChildMaxSize   int
	ChildOverlap   int
	MinChunkLength int
}

// DefaultConfig returns the default chunking parameters.
func DefaultConfig() Config {
	return Config{
		ParentMaxSize:  DefaultParentMaxSize,
		ChildMaxSize:   DefaultChildMaxSize,
		ChildOverlap:   DefaultChildOverlap,
		MinChunkLength: DefaultMinChunkLength,
	}
}

// Validate checks the parameter relationships. It must be called before
// any store is touched: a bad configuration fails the whole load.
func (c Config) Validate() error {
	if c.ParentMaxSize <= 0 {
		return ragerr.ChunkingParamsError(
			fmt.Sprintf("parent_max_size must be positive, got %d", c.ParentMaxSize))
	}
	if c.ChildMaxSize <= 0 {
		return ragerr.ChunkingParamsError(
			fmt.Sprintf("child_max_size must be positive, got %d", c.ChildMaxSize))
	}
	if c.ChildMaxSize > c.ParentMaxSize {
		return ragerr.ChunkingParamsError(
			fmt.Sprintf("child_max_size %d exceeds parent_max_size %d", c.ChildMaxSize, c.ParentMaxSize))
	}
	if c.ChildOverlap < 0 {
		return ragerr.ChunkingParamsError(
			fmt.Sprintf("child_overlap must not be negative, got %d", c.ChildOverlap))
	}
	if c.ChildOverlap >= c.ChildMaxSize {
		return ragerr.ChunkingParamsError(
			fmt.Sprintf("child_overlap %d must be smaller than child_max_size %d", c.ChildOverlap, c.ChildMaxSize))
	}
	if c.MinChunkLength < 0 {
		return ragerr.ChunkingParamsError(
			fmt.Sprintf("min_chunk_length must not be negative, got %d", c.MinChunkLength))
	}
	return nil
}

// ParentChunk is a context unit. It is persisted in the document store
// and resolved at query time when a child of it matches.
type ParentChunk struct {
	// ID is the content-derived identity.
	ID string
	// SourceID is the document this parent was cut from.
	SourceID string
	// Ordinal is the position among the document's parents, from 0.
	Ordinal int
	// Text is the parent content.
	Text string
	// Offset is the rune position of Text in the document.
	Offset int
	// Section is the title of the nearest enclosing section, if any.
	Section string
	// Metadata is inherited from the document.
	Metadata map[string]string

	// Children are the precision units cut from this parent, in order.
	Children []*ChildChunk
}

// ChildChunk is a precision unit. Children are what the semantic and
// lexical indices hold; a match resolves to the parent for context.
type ChildChunk struct {
	// ID is the content-derived identity, scoped by the parent ID.
	ID string
	// ParentID links back to the owning ParentChunk.
	ParentID string
	// SourceID is the originating document.
	SourceID string
	// Ordinal is the position among the parent's children, from 0.
	Ordinal int
	// Text is a contiguous substring of the parent text.
	Text string
	// Offset is the rune position of Text within the parent text.
	Offset int
	// Metadata is inherited from the parent.
	Metadata map[string]string
}
