package eml

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"path/filepath"
	"strings"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/normalisers/html"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// maxDepth bounds nested multipart parsing.
const maxDepth = 8

// Normaliser handles RFC 822 email messages.
type Normaliser struct{}

// New creates a new EML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"message/rfc822"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise returns the headers and the text body of a message. A
// text/plain part is preferred over text/html; attachments are skipped.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	plain, rich := readEntity(msg.Header, msg.Body, 0)
	body := plain
	if body == "" {
		body = rich
	}

	md := map[string]any{"format": "eml"}
	var head strings.Builder
	for _, h := range []struct{ name, key string }{
		{"From", "from"}, {"To", "to"}, {"Date", "date"}, {"Subject", "subject"},
	} {
		v := decodeHeader(msg.Header.Get(h.name))
		if v == "" {
			continue
		}
		md[h.key] = v
		fmt.Fprintf(&head, "%s: %s\n", h.name, v)
	}

	title, _ := md["subject"].(string)
	if title == "" {
		title = titleFromURI(raw.URI)
	}

	return &driven.NormaliseResult{
		Title:    title,
		Content:  strings.TrimSpace(head.String() + "\n" + strings.TrimSpace(body)),
		Metadata: md,
	}, nil
}

// header is the subset of a MIME header readEntity needs.
type header interface {
	Get(key string) string
}

// readEntity returns the text/plain and text/html (stripped) content of a
// MIME entity.
func readEntity(h header, body io.Reader, depth int) (plain, rich string) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}
	if strings.HasPrefix(h.Get("Content-Disposition"), "attachment") {
		return "", ""
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxDepth || params["boundary"] == "" {
			return "", ""
		}
		var plains, riches []string
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if err != nil {
				break
			}
			p, r := readEntity(part.Header, part, depth+1)
			if p != "" {
				plains = append(plains, p)
			}
			if r != "" {
				riches = append(riches, r)
			}
		}
		return strings.Join(plains, "\n\n"), strings.Join(riches, "\n\n")
	}

	switch mediaType {
	case "text/plain", "text/html":
	default:
		return "", ""
	}

	data, err := io.ReadAll(decodeTransfer(h.Get("Content-Transfer-Encoding"), body))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", ""
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if mediaType == "text/html" {
		return "", html.StripTags(text)
	}
	return text, ""
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// decodeHeader decodes RFC 2047 encoded words.
func decodeHeader(v string) string {
	if v == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

func titleFromURI(uri string) string {
	name := filepath.Base(uri)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}
