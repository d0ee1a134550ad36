// Package analyze defines the text-analysis boundary between the
// loader and the lexical index. The contract is content-bearing,
// normalized tokens: a morphological analyzer service can stand behind
// the same interface without touching the index code, as long as the
// same analyzer is used at index time and query time.
package analyze

import (
	"strings"
	"unicode"
)

// Analyzer produces the index terms for a piece of text.
type Analyzer interface {
	// Tokens returns normalized, content-bearing tokens in order.
	// Stopword-equivalents are already removed.
	Tokens(text string) []string
}

// defaultMinTokenLength filters noise like single-letter particles.
const defaultMinTokenLength = 2

// defaultStopWords covers function words that carry no retrieval
// signal. English plus the most frequent Korean particles written as
// standalone syllables.
var defaultStopWords = []string{
	"a", "an", "the", "and", "or", "but", "of", "to", "in", "on",
	"for", "with", "as", "at", "by", "is", "are", "was", "were",
	"be", "it", "this", "that", "these", "those",
	"그리고", "그러나", "하지만", "또는", "및", "등", "수", "있다", "없다",
}

// DefaultAnalyzer is a Unicode-aware tokenizer. It keeps runs of
// letters and digits, splits scripts apart (Hangul, Han and Latin
// never share a token), lowercases Latin, and drops short tokens and
// stopwords.
type DefaultAnalyzer struct {
	minLength int
	stopWords map[string]struct{}
}

// Option configures a DefaultAnalyzer.
type Option func(*DefaultAnalyzer)

// WithMinLength overrides the minimum token length.
func WithMinLength(n int) Option {
	return func(a *DefaultAnalyzer) { a.minLength = n }
}

// WithStopWords replaces the stopword set.
func WithStopWords(words []string) Option {
	return func(a *DefaultAnalyzer) { a.stopWords = buildStopWordMap(words) }
}

// NewDefaultAnalyzer creates an analyzer with the default filters.
func NewDefaultAnalyzer(opts ...Option) *DefaultAnalyzer {
	a := &DefaultAnalyzer{
		minLength: defaultMinTokenLength,
		stopWords: buildStopWordMap(defaultStopWords),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// scriptClass buckets runes so different scripts never join into one
// token. Mixed Korean-English text tokenizes each run separately.
// Latin letters and digits share a class so identifiers like "v2"
// stay whole.
type scriptClass int

const (
	classOther scriptClass = iota
	classHangul
	classHan
	classLatin
)

func classify(r rune) scriptClass {
	switch {
	case unicode.Is(unicode.Hangul, r):
		return classHangul
	case unicode.Is(unicode.Han, r):
		return classHan
	case r >= '0' && r <= '9':
		return classLatin
	case unicode.IsLetter(r):
		return classLatin
	default:
		return classOther
	}
}

// Tokens implements Analyzer.
func (a *DefaultAnalyzer) Tokens(text string) []string {
	var tokens []string
	var current strings.Builder
	currentClass := classOther

	emit := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		current.Reset()
		if len([]rune(tok)) < a.minLength {
			return
		}
		if _, stop := a.stopWords[tok]; stop {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, r := range text {
		class := classify(r)
		if class == classOther {
			emit()
			currentClass = classOther
			continue
		}
		if class != currentClass {
			emit()
			currentClass = class
		}
		current.WriteRune(unicode.ToLower(r))
	}
	emit()

	return tokens
}

func buildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
