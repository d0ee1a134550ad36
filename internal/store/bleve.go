package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	index "github.com/blevesearch/bleve_index_api"

	"github.com/seongho-dev/ragload/internal/analyze"
	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

const (
	// TermTokenizerName is the registered name of the tokenizer that
	// delegates to the analyze package.
	TermTokenizerName = "ragload_terms"

	// TermAnalyzerName is the registered name of the content analyzer.
	TermAnalyzerName = "ragload_analyzer"
)

// indexAnalyzer backs the registered tokenizer. Registration is global
// in bleve, so the analyzer is shared by every index in the process;
// what matters is that index time and query time see the same one.
var indexAnalyzer analyze.Analyzer = analyze.NewDefaultAnalyzer()

func init() {
	_ = registry.RegisterTokenizer(TermTokenizerName, termTokenizerConstructor)
}

// bleveEntry is the document shape handed to bleve.
type bleveEntry struct {
	Content  string `json:"content"`
	SourceID string `json:"source_id"`
	ParentID string `json:"parent_id"`
	Category string `json:"category"`
}

// BleveLexicalIndex wraps bleve v2 for BM25 keyword retrieval.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

// validateIndexIntegrity checks a bleve index directory before opening
// so a half-written index from a crashed run is detected up front.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isCorruptionError reports whether an open failure indicates index
// corruption rather than a transient problem.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveLexicalIndex opens or creates the lexical index. An empty
// path creates an in-memory index. A corrupted on-disk index is
// cleared and recreated; the caller must reload its content.
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt, "create index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, ragerr.StoreError(fmt.Sprintf("create directory for %s", path), mkErr)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("lexical index corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt,
					fmt.Sprintf("lexical index corrupted at %s and cannot clear", path), removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("lexical index open failed, clearing",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt,
					fmt.Sprintf("lexical index corrupted at %s and cannot clear", path), removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt, "open lexical index", err)
	}

	return &BleveLexicalIndex{index: idx, path: path}, nil
}

// createIndexMapping builds the mapping: content goes through the
// registered term analyzer, metadata fields are exact-match keywords.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(TermAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": TermTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = TermAnalyzerName
	docMapping.AddFieldMappingsAt("content", contentField)

	for _, field := range []string{"source_id", "parent_id", "category"} {
		keywordField := bleve.NewTextFieldMapping()
		keywordField.Analyzer = keyword.Name
		docMapping.AddFieldMappingsAt(field, keywordField)
	}

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = TermAnalyzerName

	return indexMapping, nil
}

// Upsert indexes entries in one batch. bleve replaces a document that
// reuses an ID, which is what keeps reloads idempotent.
func (b *BleveLexicalIndex) Upsert(ctx context.Context, entries []LexicalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ragerr.StoreError("lexical index is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := b.index.NewBatch()
	for _, e := range entries {
		doc := bleveEntry{
			Content:  e.Text,
			SourceID: e.Meta.SourceID,
			ParentID: e.Meta.ParentID,
			Category: e.Meta.Category,
		}
		if err := batch.Index(e.ID, doc); err != nil {
			return ragerr.StoreError(fmt.Sprintf("index entry %s", e.ID), err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return ragerr.StoreError("execute lexical batch", err)
	}

	return nil
}

// Delete removes entries by ID. Unknown IDs are ignored.
func (b *BleveLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ragerr.StoreError("lexical index is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return ragerr.StoreError("delete lexical entries", err)
	}

	return nil
}

// Exists reports whether the ID is indexed.
func (b *BleveLexicalIndex) Exists(id string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, ragerr.StoreError("lexical index is closed", nil)
	}

	doc, err := b.index.Document(id)
	if err != nil {
		return false, ragerr.StoreError(fmt.Sprintf("look up entry %s", id), err)
	}
	return doc != nil, nil
}

// ParentID returns the stored parent_id of an indexed entry, or
// ErrNotFound when the ID is not indexed.
func (b *BleveLexicalIndex) ParentID(id string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", ragerr.StoreError("lexical index is closed", nil)
	}

	doc, err := b.index.Document(id)
	if err != nil {
		return "", ragerr.StoreError(fmt.Sprintf("look up entry %s", id), err)
	}
	if doc == nil {
		return "", ErrNotFound
	}

	var parentID string
	doc.VisitFields(func(f index.Field) {
		if f.Name() == "parent_id" {
			parentID = string(f.Value())
		}
	})
	return parentID, nil
}

// AllIDs returns every indexed ID. Used by the consistency sweep.
func (b *BleveLexicalIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ragerr.StoreError("lexical index is closed", nil)
	}

	docCount, err := b.index.DocCount()
	if err != nil {
		return nil, ragerr.StoreError("count lexical entries", err)
	}
	if docCount == 0 {
		return []string{}, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, ragerr.StoreError("enumerate lexical entries", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Count returns the number of indexed entries.
func (b *BleveLexicalIndex) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ragerr.StoreError("lexical index is closed", nil)
	}

	docCount, err := b.index.DocCount()
	if err != nil {
		return 0, ragerr.StoreError("count lexical entries", err)
	}
	return int(docCount), nil
}

// Close closes the index. Bleve persists on write, so there is nothing
// to flush.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// termTokenizerConstructor builds the bleve tokenizer delegating to
// the analyze package.
func termTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &termTokenizer{}, nil
}

// termTokenizer adapts analyze.Analyzer to bleve's tokenizer contract.
// The analyzer already normalizes and filters, so no bleve token
// filters are layered on top.
type termTokenizer struct{}

func (t *termTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	terms := indexAnalyzer.Tokens(text)

	result := make(analysis.TokenStream, 0, len(terms))
	pos := 1
	offset := 0

	for _, term := range terms {
		start := strings.Index(strings.ToLower(text[offset:]), term)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(term)

		result = append(result, &analysis.Token{
			Term:     []byte(term),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}
