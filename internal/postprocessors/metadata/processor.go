// Package metadata provides a processor that fills derived document metadata.
package metadata

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// Metadata keys written by the processor.
const (
	KeyTitle              = "title"
	KeyDocumentType       = "document_type"
	KeyAccessLevel        = "access_level"
	KeyCreatedAt          = "created_at"
	KeyUpdatedAt          = "updated_at"
	KeyVersion            = "version"
	KeyKeywords           = "keywords"
	KeyWordCount          = "word_count"
	KeyReadingTimeMinutes = "reading_time_minutes"
)

// DerivedKeys lists every key the processor computes from document fields.
// Updates strip them so they are recomputed from the new content.
var DerivedKeys = []string{
	KeyTitle, KeyDocumentType, KeyAccessLevel, KeyCreatedAt, KeyUpdatedAt,
	KeyVersion, KeyKeywords, KeyWordCount, KeyReadingTimeMinutes,
}

// Defaults for keyword extraction and reading time.
const (
	DefaultMaxKeywords    = 10
	DefaultWordsPerMinute = 200
)

var wordPattern = regexp.MustCompile(`\b[a-zA-Z]{4,}\b`)

// defaultStopwords are frequent words of four or more letters that carry no topic.
var defaultStopwords = []string{
	"about", "above", "after", "again", "against", "also", "been", "before",
	"being", "below", "between", "both", "could", "does", "doing", "down",
	"during", "each", "from", "further", "have", "having", "here", "into",
	"just", "more", "most", "only", "other", "over", "same", "should", "some",
	"such", "than", "that", "their", "theirs", "them", "then", "there", "these",
	"they", "this", "those", "through", "under", "until", "very", "were",
	"what", "when", "where", "which", "while", "will", "with", "would", "your",
}

// Processor enriches document metadata. It never overwrites keys that are
// already present and passes chunks through unchanged.
// It implements the PostProcessor interface.
type Processor struct {
	maxKeywords    int
	wordsPerMinute int
	stopwords      map[string]struct{}
}

// Option configures the metadata processor.
type Option func(*Processor)

// WithMaxKeywords sets how many keywords are kept.
func WithMaxKeywords(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxKeywords = n
		}
	}
}

// WithWordsPerMinute sets the reading speed used for reading time.
func WithWordsPerMinute(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.wordsPerMinute = n
		}
	}
}

// WithStopwords adds words to the stopword set.
func WithStopwords(words ...string) Option {
	return func(p *Processor) {
		for _, w := range words {
			p.stopwords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// New creates a metadata processor.
func New(opts ...Option) *Processor {
	p := &Processor{
		maxKeywords:    DefaultMaxKeywords,
		wordsPerMinute: DefaultWordsPerMinute,
		stopwords:      make(map[string]struct{}, len(defaultStopwords)),
	}
	for _, w := range defaultStopwords {
		p.stopwords[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "metadata"
}

// Process fills missing metadata on doc and returns chunks untouched.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	md := doc.Metadata

	setDefault(md, KeyTitle, doc.Title)
	setDefault(md, KeyDocumentType, string(doc.DocumentType))
	setDefault(md, KeyAccessLevel, string(doc.AccessLevel))
	setDefault(md, KeyCreatedAt, doc.CreatedAt.UTC().Format(time.RFC3339))
	setDefault(md, KeyUpdatedAt, doc.UpdatedAt.UTC().Format(time.RFC3339))
	setDefault(md, KeyVersion, doc.Version)

	if _, ok := md[KeyKeywords]; !ok {
		md[KeyKeywords] = p.Keywords(doc.Content)
	}

	words := WordCount(doc.Content)
	setDefault(md, KeyWordCount, words)
	setDefault(md, KeyReadingTimeMinutes, ReadingTime(words, p.wordsPerMinute))

	return chunks, nil
}

// Keywords returns the most frequent alphabetic tokens of four or more
// letters, excluding stopwords. Ties are broken alphabetically.
func (p *Processor) Keywords(content string) []string {
	freq := make(map[string]int)
	for _, w := range wordPattern.FindAllString(strings.ToLower(content), -1) {
		if _, stop := p.stopwords[w]; stop {
			continue
		}
		freq[w]++
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > p.maxKeywords {
		words = words[:p.maxKeywords]
	}
	return words
}

// WordCount counts whitespace separated words.
func WordCount(content string) int {
	return len(strings.Fields(content))
}

// ReadingTime returns max(1, round(words/wpm)) using round-half-to-even.
func ReadingTime(words, wordsPerMinute int) int {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	minutes := int(math.RoundToEven(float64(words) / float64(wordsPerMinute)))
	if minutes < 1 {
		return 1
	}
	return minutes
}

func setDefault(md map[string]any, key string, value any) {
	if _, ok := md[key]; !ok {
		md[key] = value
	}
}
