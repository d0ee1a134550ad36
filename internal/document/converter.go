package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// ConvertInput is the raw side of the conversion boundary.
type ConvertInput struct {
	// Path is the source file on disk.
	Path string
	// Metadata is the user metadata from the manifest entry.
	Metadata map[string]string
}

// Converter turns a raw source file into a normalized Document.
// Implementations wrap external conversion collaborators; a failure is
// fatal for that document only and must not affect siblings.
type Converter interface {
	Convert(ctx context.Context, input ConvertInput) (*Document, error)
}

// headerPattern matches ATX headers: # Title .. ###### Title.
var headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// MarkdownConverter consumes files that are already markdown (the
// output of an upstream conversion step). It normalizes line endings,
// strips a UTF-8 BOM, and derives Section metadata from ATX headers.
type MarkdownConverter struct{}

// NewMarkdownConverter creates a converter for pre-converted markdown.
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{}
}

// Convert reads and normalizes a markdown file.
func (c *MarkdownConverter) Convert(ctx context.Context, input ConvertInput) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(input.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerr.New(ragerr.ErrCodeSourceNotFound,
				fmt.Sprintf("source file %s not found", input.Path), err)
		}
		return nil, ragerr.ConversionError(fmt.Sprintf("read %s: %v", input.Path, err), err)
	}

	text := Normalize(string(data))

	return &Document{
		SourceID: filepath.Base(input.Path),
		Text:     text,
		Sections: ParseSections(text),
		Metadata: input.Metadata,
	}, nil
}

// Normalize canonicalizes converted text: CRLF/CR to LF, UTF-8 BOM
// stripped, trailing whitespace per line removed. Identity hashes are
// computed over normalized text, so this must stay deterministic.
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// ParseSections extracts structural boundaries from ATX headers.
// Headers inside fenced code blocks are ignored. Offsets are rune
// positions so they line up with the chunker's rune-based windows.
func ParseSections(text string) []Section {
	var sections []Section
	offset := 0
	inFence := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		} else if !inFence {
			if m := headerPattern.FindStringSubmatch(line); m != nil {
				sections = append(sections, Section{
					Title:  m[2],
					Level:  len(m[1]),
					Offset: offset,
				})
			}
		}
		offset += len([]rune(line)) + 1 // +1 for the newline
	}

	return sections
}
