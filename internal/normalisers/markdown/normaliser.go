package markdown

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise removes Markdown syntax but keeps the text of headings, links
// and code blocks. Paragraph breaks survive so the chunker can split on them.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	text := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")
	body, frontTitle := splitFrontMatter(text)

	title := frontTitle
	if title == "" {
		title = firstHeading(body)
	}
	if title == "" {
		title = titleFromURI(raw.URI)
	}

	return &driven.NormaliseResult{
		Title:    title,
		Content:  strip(body),
		Metadata: map[string]any{"format": "markdown"},
	}, nil
}

var (
	frontMatter  = regexp.MustCompile(`(?s)\A---\n(.*?)\n---[ \t]*(\n|\z)`)
	frontTitle   = regexp.MustCompile(`(?m)^title:[ \t]*["']?(.*?)["']?[ \t]*$`)
	atxHeading   = regexp.MustCompile(`(?m)^#[ \t]+(.+?)[ \t]*#*[ \t]*$`)
	codeFence    = regexp.MustCompile("(?m)^[ \t]*(```|~~~).*$")
	inlineCode   = regexp.MustCompile("`([^`\n]+)`")
	images       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	refLinks     = regexp.MustCompile(`(?m)^[ \t]*\[[^\]]+\]:[ \t]+\S+.*$`)
	headings     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.*?)[ \t]*#*[ \t]*$`)
	stars        = regexp.MustCompile(`(\*\*|\*|~~)([^\s*~](?:[^\n]*?[^\s*~])?)(\*\*|\*|~~)`)
	underscores  = regexp.MustCompile(`\b(__|_)([^\s_](?:[^\n]*?[^\s_])?)(__|_)\b`)
	blockquote   = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	rules        = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	listMarkers  = regexp.MustCompile(`(?m)^([ \t]*)([-*+]|\d+[.)])[ \t]+`)
	tableBorders = regexp.MustCompile(`(?m)^[ \t]*\|?[ \t]*:?-{3,}:?[ \t]*(\|[ \t]*:?-{3,}:?[ \t]*)*\|?[ \t]*$`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// splitFrontMatter removes a leading YAML block and returns its title, if any.
func splitFrontMatter(text string) (body, title string) {
	m := frontMatter.FindStringSubmatchIndex(text)
	if m == nil {
		return text, ""
	}
	header := text[m[2]:m[3]]
	if t := frontTitle.FindStringSubmatch(header); len(t) > 1 {
		title = strings.TrimSpace(t[1])
	}
	return text[m[1]:], title
}

func firstHeading(text string) string {
	if m := atxHeading.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func strip(text string) string {
	text = codeFence.ReplaceAllString(text, "")
	text = images.ReplaceAllString(text, "$1")
	text = links.ReplaceAllString(text, "$1")
	text = refLinks.ReplaceAllString(text, "")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = headings.ReplaceAllString(text, "$1")
	text = rules.ReplaceAllString(text, "")
	text = tableBorders.ReplaceAllString(text, "")
	text = blockquote.ReplaceAllString(text, "")
	text = listMarkers.ReplaceAllString(text, "$1")
	text = stars.ReplaceAllString(text, "$2")
	text = underscores.ReplaceAllString(text, "$2")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func titleFromURI(uri string) string {
	name := filepath.Base(uri)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}
