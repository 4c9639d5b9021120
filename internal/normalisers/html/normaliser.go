package html

import (
	"context"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise strips markup and returns the page text. The title comes from
// <title>, then the first <h1>, then the file name.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	page := string(raw.Content)
	return &driven.NormaliseResult{
		Title:    extractTitle(page, raw.URI),
		Content:  StripTags(page),
		Metadata: map[string]any{"format": "html"},
	}, nil
}

var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	h1Tag             = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article|header|footer|main|nav)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article|header|footer|main|nav)(\s[^>]*)?>`)
	lineBreaks        = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	cells             = regexp.MustCompile(`(?i)</t[dh]>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t\p{Zs}]+`)
)

// droppedElements are removed together with their content.
var droppedElements = func() []*regexp.Regexp {
	var res []*regexp.Regexp
	for _, tag := range []string{"script", "style", "noscript", "head", "svg", "template"} {
		res = append(res, regexp.MustCompile(`(?is)<`+tag+`(\s[^>]*)?>.*?</`+tag+`\s*>`))
	}
	return res
}()

func extractTitle(page, uri string) string {
	for _, re := range []*regexp.Regexp{titleTag, h1Tag} {
		if m := re.FindStringSubmatch(page); len(m) > 1 {
			title := strings.Join(strings.Fields(html.UnescapeString(allTags.ReplaceAllString(m[1], ""))), " ")
			if title != "" {
				return title
			}
		}
	}
	return titleFromURI(uri)
}

// StripTags reduces HTML to text, one block element per line.
func StripTags(page string) string {
	for _, re := range droppedElements {
		page = re.ReplaceAllString(page, "")
	}
	page = htmlComments.ReplaceAllString(page, "")
	page = openBlockElements.ReplaceAllString(page, "\n")
	page = blockElements.ReplaceAllString(page, "\n")
	page = lineBreaks.ReplaceAllString(page, "\n")
	page = cells.ReplaceAllString(page, " ")
	page = allTags.ReplaceAllString(page, "")
	page = html.UnescapeString(page)

	lines := strings.Split(page, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func titleFromURI(uri string) string {
	name := filepath.Base(uri)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}
