// Package document defines the converted-document model and the
// conversion boundary. Conversion itself (PDF parsing, OCR, layout)
// is an external collaborator; this package only consumes its output:
// normalized markdown text plus structural metadata.
package document

import "strings"

// Section marks a structural boundary in the normalized text.
// Offsets are rune indices into Document.Text.
type Section struct {
	// Title is the heading text, without the marker.
	Title string
	// Level is the heading level (1 = top).
	Level int
	// Offset is where the section starts in the document text.
	Offset int
}

// Document is one converted input file. It is consumed once by the
// chunker and never persisted by the core.
type Document struct {
	// SourceID identifies the source file (typically the filename).
	// It scopes chunk identities, so it must be stable across runs.
	SourceID string

	// Text is the normalized markdown text.
	Text string

	// Sections is the structural metadata, ordered by offset.
	// May be empty when the source had no recognizable structure.
	Sections []Section

	// Metadata is the user-supplied key-value mapping attached at
	// ingestion (title, category, publication date, ...). Inherited by
	// every chunk cut from this document.
	Metadata map[string]string
}

// Empty reports whether the document has no indexable content.
func (d *Document) Empty() bool {
	return strings.TrimSpace(d.Text) == ""
}

// CloneMetadata returns a copy of the metadata map so chunks never
// share the underlying map with the document or each other.
func (d *Document) CloneMetadata() map[string]string {
	if len(d.Metadata) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		out[k] = v
	}
	return out
}
