package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Travel </w:t></w:r><w:r><w:t>Policy</w:t></w:r></w:p>
    <w:p><w:r><w:t>Book flights</w:t><w:tab/><w:t>early.</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t>Line one</w:t><w:br/><w:t>Line two</w:t></w:r></w:p>
  </w:body>
</w:document>`

const coreXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
  xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title>Corporate Travel</dc:title>
  <dc:creator>Finance Team</dc:creator>
</cp:coreProperties>`

func buildDOCX(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestSupportedMIMETypes(t *testing.T) {
	assert.Equal(t, []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"}, New().SupportedMIMETypes())
}

func TestNormalise(t *testing.T) {
	raw := &domain.RawDocument{
		URI:     "/docs/travel.docx",
		Content: buildDOCX(t, map[string]string{"word/document.xml": documentXML, "docProps/core.xml": coreXML}),
	}

	res, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "Corporate Travel", res.Title)
	assert.Equal(t, "Travel Policy\nBook flights\tearly.\nLine one\nLine two", res.Content)
	assert.Equal(t, "docx", res.Metadata["format"])
	assert.Equal(t, "Finance Team", res.Metadata["author"])
}

func TestNormalise_TitleFromFileName(t *testing.T) {
	raw := &domain.RawDocument{
		URI:     "/docs/expense_claims.docx",
		Content: buildDOCX(t, map[string]string{"word/document.xml": documentXML}),
	}

	res, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "expense claims", res.Title)
}

func TestNormalise_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"not a zip", []byte("plain text")},
		{"missing body", buildDOCX(t, map[string]string{"docProps/core.xml": coreXML})},
		{"broken xml", buildDOCX(t, map[string]string{"word/document.xml": "<w:document><w:body><w:p>"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Normalise(context.Background(), &domain.RawDocument{URI: "x.docx", Content: tt.content})
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
