package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// maxInputBytes caps content read from a file or stdin.
const maxInputBytes = 32 << 20

// stdinIsTerminal is swapped in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// input is document text read from a file or stdin.
type input struct {
	content  string
	name     string // base file name; empty for stdin
	title    string // extracted from the content, if any
	metadata map[string]any
}

// readInput returns the document named by arg: a file path, "-" for stdin,
// or stdin when arg is empty and input is piped.
func readInput(ctx context.Context, arg string, stdin io.Reader) (input, error) {
	switch {
	case arg != "" && arg != "-":
		return readFile(ctx, arg)
	case arg == "" && stdinIsTerminal():
		return input{}, errors.New("no input: pass a file, '-' or pipe content on stdin")
	default:
		data, err := readLimited(io.NopCloser(stdin), nil)
		if err != nil {
			return input{}, err
		}
		return input{content: data}, nil
	}
}

// readFile reads path and extracts its text when a normaliser registry is set.
// Files of an unknown type are read as plain text.
func readFile(ctx context.Context, path string) (input, error) {
	data, err := readLimited(openFile(path))
	if err != nil {
		return input{}, err
	}
	in := input{content: data, name: filepath.Base(path)}
	if normaliserRegistry == nil {
		return in, nil
	}

	raw := &domain.RawDocument{URI: path, Content: []byte(data)}
	res, err := normaliserRegistry.Normalise(ctx, raw)
	if errors.Is(err, domain.ErrUnsupportedFormat) {
		raw.MIMEType = "text/plain"
		res, err = normaliserRegistry.Normalise(ctx, raw)
	}
	if err != nil {
		return input{}, fmt.Errorf("extract %s: %w", in.name, err)
	}

	in.content = res.Content
	in.title = res.Title
	in.metadata = res.Metadata
	return in, nil
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func readLimited(r io.ReadCloser, openErr error) (string, error) {
	if openErr != nil {
		return "", openErr
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	if len(data) > maxInputBytes {
		return "", fmt.Errorf("input exceeds %d bytes", maxInputBytes)
	}
	return string(data), nil
}

// titleFromName derives a title from a file name.
func titleFromName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(base))
}

// documentTypeFor guesses a type from the file name, defaulting to generic.
func documentTypeFor(name string) domain.DocumentType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "polic"):
		return domain.DocumentTypePolicy
	case strings.Contains(lower, "faq"):
		return domain.DocumentTypeFAQ
	case strings.Contains(lower, "manual"), strings.Contains(lower, "guide"):
		return domain.DocumentTypeManual
	default:
		return domain.DocumentTypeGeneric
	}
}

// parseMetadata turns key=value pairs into a metadata map.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	md := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, domain.NewValidationError("metadata", fmt.Sprintf("expected key=value, got %q", p))
		}
		md[strings.TrimSpace(k)] = v
	}
	return md, nil
}

// parseFilter parses a --filter flag value:
//
//	field=value         equality
//	field!=value        inequality
//	field:in=a,b        membership
//	field:not_in=a,b    exclusion
func parseFilter(s string) (domain.SearchFilter, error) {
	left, value, ok := strings.Cut(s, "=")
	if !ok {
		return domain.SearchFilter{}, domain.NewValidationError("filter", fmt.Sprintf("expected field=value, got %q", s))
	}

	field, opName := left, ""
	switch {
	case strings.HasSuffix(left, "!"):
		field, opName = strings.TrimSuffix(left, "!"), "!="
	case strings.Contains(left, ":"):
		field, opName, _ = strings.Cut(left, ":")
	}

	op, err := domain.ParseFilterOperator(opName)
	if err != nil {
		return domain.SearchFilter{}, err
	}

	var v any = value
	if op.IsSetOperator() {
		parts := strings.Split(value, ",")
		list := make([]any, len(parts))
		for i, p := range parts {
			list[i] = strings.TrimSpace(p)
		}
		v = list
	}
	return domain.NewFilter(strings.TrimSpace(field), op, v)
}
