// Package chunker provides a boundary-aware text chunking processor.
package chunker

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk window.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 50

// boundaryFraction is how far into the window the boundary search starts.
const boundaryFraction = 0.8

// Processor splits document content into overlapping chunks, cutting at
// sentence terminators or newlines near the end of each window.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
	newID     func() string
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithIDGenerator replaces the chunk id generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Processor) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		newID:     func() string { return uuid.New().String() },
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the configured default window size.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Overlap returns the configured default overlap.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Process splits the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
// Per-document ChunkSize/ChunkOverlap take precedence over the processor defaults.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		// Empty content produces no chunks
		return nil, nil
	}

	size, overlap := p.resolve(doc)
	windows := Split(doc.Content, size, overlap)

	chunks := make([]domain.Chunk, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, domain.Chunk{
			ID:          p.newID(),
			DocumentID:  doc.ID,
			Index:       len(chunks),
			Content:     w.Text,
			StartOffset: w.Start,
			EndOffset:   w.End,
		})
	}

	for i := range chunks {
		chunks[i].Position = positionOf(i, len(chunks))
		md := domain.CloneMetadata(doc.Metadata)
		if md == nil {
			md = make(map[string]any, 2)
		}
		md["chunk_index"] = chunks[i].Index
		md["position"] = string(chunks[i].Position)
		chunks[i].Metadata = md
	}

	return chunks, nil
}

func (p *Processor) resolve(doc *domain.Document) (size, overlap int) {
	size, overlap = p.chunkSize, p.overlap
	if doc.ChunkSize > 0 {
		size = doc.ChunkSize
	}
	if doc.ChunkOverlap > 0 {
		overlap = doc.ChunkOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return size, overlap
}

func positionOf(i, n int) domain.ChunkPosition {
	switch {
	case i == 0:
		return domain.PositionStart
	case i == n-1:
		return domain.PositionEnd
	default:
		return domain.PositionMiddle
	}
}

// Window is one trimmed, non-empty piece of text and the byte range it was cut from.
type Window struct {
	Text  string
	Start int
	End   int
}

// Split cuts content into windows of at most size characters that overlap
// by overlap characters. Cut points snap back to the last sentence
// terminator, or failing that the last newline, found after 80% of the
// window. Windows are trimmed and empty ones dropped. Window ranges are byte
// offsets into content and never split a UTF-8 sequence.
func Split(content string, size, overlap int) []Window {
	if content == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	offs := runeOffsets(content)
	n := len(offs) - 1

	if n <= size {
		if text := strings.TrimSpace(content); text != "" {
			return []Window{{Text: text, Start: 0, End: len(content)}}
		}
		return nil
	}

	var windows []Window
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else {
			end = cutPoint(content, offs, start, end, size)
		}

		from, to := offs[start], offs[end]
		if text := strings.TrimSpace(content[from:to]); text != "" {
			windows = append(windows, Window{Text: text, Start: from, End: to})
		}
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			// Never stall on short tail segments.
			next = end
		}
		start = next
	}

	return windows
}

// runeOffsets returns the byte offset of every rune in content followed by len(content).
func runeOffsets(content string) []int {
	offs := make([]int, 0, utf8.RuneCountInString(content)+1)
	for i := range content {
		offs = append(offs, i)
	}
	return append(offs, len(content))
}

// cutPoint picks the end of the window [start, end), both rune indexes.
func cutPoint(content string, offs []int, start, end, size int) int {
	from := start + int(float64(size)*boundaryFraction)
	if from >= end {
		return end
	}
	base := offs[from]
	segment := content[base:offs[end]]

	if i := strings.LastIndexAny(segment, ".!?"); i > 0 {
		return runeIndex(offs, base+i+1)
	}
	if i := strings.LastIndexByte(segment, '\n'); i > 0 {
		return runeIndex(offs, base+i+1)
	}
	return end
}

// runeIndex maps a byte offset at a rune boundary back to its rune index.
func runeIndex(offs []int, b int) int {
	i, _ := slices.BinarySearch(offs, b)
	return i
}
