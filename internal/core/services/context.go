package services

import (
	"sort"
	"strings"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// DefaultContextTokens is the token budget used when none is given.
const DefaultContextTokens = 1500

// charsPerToken approximates tokens from text length.
const charsPerToken = 4

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

// MergeChunks joins chunks in index order until the token budget is reached.
func MergeChunks(chunks []domain.Chunk, maxTokens int) string {
	sorted := append([]domain.Chunk(nil), chunks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	texts := make([]string, len(sorted))
	for i, c := range sorted {
		texts[i] = c.Content
	}
	return mergeTexts(texts, maxTokens)
}

// MergeResults joins search hits in rank order until the token budget is reached.
func MergeResults(results []domain.SearchResult, maxTokens int) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Content
	}
	return mergeTexts(texts, maxTokens)
}

func mergeTexts(texts []string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}

	var b strings.Builder
	used := 0
	for _, t := range texts {
		tokens := EstimateTokens(t)
		if used+tokens > maxTokens {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(t)
		used += tokens
	}
	return b.String()
}
