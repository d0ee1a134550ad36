package chunk

import (
	"strings"

	"github.com/seongho-dev/ragload/internal/document"
)

// sizeSeparators is the boundary preference when a span exceeds
// ParentMaxSize: paragraph break, then line break, then word break.
// A span with none of these gets a hard rune cut.
var sizeSeparators = []string{"\n\n", "\n", " "}

// Chunker cuts documents into parent/child hierarchies.
type Chunker struct {
	config Config
}

// NewChunker validates the parameters and returns a chunker.
func NewChunker(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: cfg}, nil
}

// Config returns the parameters the chunker was built with.
func (c *Chunker) Config() Config {
	return c.config
}

// span is a candidate parent: text plus its rune offset in the document.
type span struct {
	text    string
	offset  int
	section string
}

// Chunk cuts a document into parents with children attached. An empty
// document yields no chunks and no error. Parents whose children all
// dropped are dropped too, and ordinals stay contiguous after drops.
func (c *Chunker) Chunk(doc *document.Document) ([]*ParentChunk, error) {
	if doc == nil || doc.Empty() {
		return nil, nil
	}

	spans := c.segment(doc)

	var parents []*ParentChunk
	for _, s := range spans {
		trimmed := strings.TrimSpace(s.text)
		if len([]rune(trimmed)) < c.config.MinChunkLength || trimmed == "" {
			continue
		}

		parent := &ParentChunk{
			SourceID: doc.SourceID,
			Ordinal:  len(parents),
			Text:     s.text,
			Offset:   s.offset,
			Section:  s.section,
			Metadata: doc.CloneMetadata(),
		}
		parent.ID = Identity(doc.SourceID, KindParent, parent.Ordinal, parent.Text)

		parent.Children = c.cutChildren(parent)
		if len(parent.Children) == 0 {
			continue
		}
		parents = append(parents, parent)
	}

	return parents, nil
}

// segment produces parent-sized spans. Section boundaries are honored
// first; oversized spans fall back to separator-based size splitting.
func (c *Chunker) segment(doc *document.Document) []span {
	runes := []rune(doc.Text)

	if len(doc.Sections) == 0 {
		return c.splitSpan(span{text: doc.Text}, sizeSeparators)
	}

	var spans []span
	appendRegion := func(start, end int, section string) {
		if start >= end {
			return
		}
		region := span{
			text:    string(runes[start:end]),
			offset:  start,
			section: section,
		}
		spans = append(spans, c.splitSpan(region, sizeSeparators)...)
	}

	// Preamble before the first header keeps an empty section title.
	appendRegion(0, clampOffset(doc.Sections[0].Offset, len(runes)), "")

	for i, sec := range doc.Sections {
		start := clampOffset(sec.Offset, len(runes))
		end := len(runes)
		if i+1 < len(doc.Sections) {
			end = clampOffset(doc.Sections[i+1].Offset, len(runes))
		}
		appendRegion(start, end, sec.Title)
	}

	return spans
}

// splitSpan splits a span that exceeds ParentMaxSize, preferring the
// given separators in order and hard-cutting as the last resort. Parts
// smaller than the limit are greedily merged back up to it.
func (c *Chunker) splitSpan(s span, separators []string) []span {
	if len([]rune(s.text)) <= c.config.ParentMaxSize {
		return []span{s}
	}
	if len(separators) == 0 {
		return c.hardSplit(s)
	}

	sep := separators[0]
	parts := strings.Split(s.text, sep)
	if len(parts) == 1 {
		return c.splitSpan(s, separators[1:])
	}

	sepRunes := len([]rune(sep))
	var out []span

	var buf strings.Builder
	bufRunes := 0
	bufOffset := s.offset

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		out = append(out, span{text: buf.String(), offset: bufOffset, section: s.section})
		buf.Reset()
		bufRunes = 0
	}

	cursor := s.offset
	for _, part := range parts {
		partRunes := len([]rune(part))

		if partRunes > c.config.ParentMaxSize {
			// Oversized even alone: flush what we have, then split the
			// part with the finer separators.
			flush()
			out = append(out, c.splitSpan(span{text: part, offset: cursor, section: s.section}, separators[1:])...)
			cursor += partRunes + sepRunes
			bufOffset = cursor
			continue
		}

		joined := bufRunes
		if buf.Len() > 0 {
			joined += sepRunes
		}
		if buf.Len() > 0 && joined+partRunes > c.config.ParentMaxSize {
			flush()
			bufOffset = cursor
		}

		if buf.Len() > 0 {
			buf.WriteString(sep)
			bufRunes += sepRunes
		} else {
			bufOffset = cursor
		}
		buf.WriteString(part)
		bufRunes += partRunes
		cursor += partRunes + sepRunes
	}
	flush()

	return out
}

// hardSplit cuts a span every ParentMaxSize runes.
func (c *Chunker) hardSplit(s span) []span {
	runes := []rune(s.text)
	var out []span
	for start := 0; start < len(runes); start += c.config.ParentMaxSize {
		end := start + c.config.ParentMaxSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, span{
			text:    string(runes[start:end]),
			offset:  s.offset + start,
			section: s.section,
		})
	}
	return out
}

// cutChildren slides a fixed window over the parent text. Window width
// is ChildMaxSize, stride is ChildMaxSize-ChildOverlap, and the last
// window clamps to the parent end. Windows that trim to nothing or to
// less than MinChunkLength are dropped without leaving ordinal gaps.
func (c *Chunker) cutChildren(parent *ParentChunk) []*ChildChunk {
	runes := []rune(parent.Text)
	stride := c.config.ChildMaxSize - c.config.ChildOverlap

	var children []*ChildChunk
	for start := 0; start < len(runes); start += stride {
		end := start + c.config.ChildMaxSize
		if end > len(runes) {
			end = len(runes)
		}

		text := string(runes[start:end])
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || len([]rune(trimmed)) < c.config.MinChunkLength {
			if end == len(runes) {
				break
			}
			continue
		}

		child := &ChildChunk{
			ParentID: parent.ID,
			SourceID: parent.SourceID,
			Ordinal:  len(children),
			Text:     text,
			Offset:   start,
			Metadata: cloneMeta(parent.Metadata),
		}
		child.ID = Identity(parent.ID, KindChild, child.Ordinal, child.Text)
		children = append(children, child)

		if end == len(runes) {
			break
		}
	}

	return children
}

func clampOffset(off, max int) int {
	if off < 0 {
		return 0
	}
	if off > max {
		return max
	}
	return off
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
