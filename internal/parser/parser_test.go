package parser

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>HISTÓRICO DO POÇO</w:t></w:r></w:p>
    <w:p><w:r><w:t>07/11/71</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve">Punzado CPS-01 </w:t></w:r><w:r><w:t>(561,0 – 568,0 m)</w:t></w:r></w:p>
    <w:p><w:r><w:t>Linea uno</w:t><w:br/><w:t>Linea dos</w:t></w:r></w:p>
    <w:p><w:r><w:instrText>PAGE</w:instrText></w:r></w:p>
  </w:body>
</w:document>`

func buildDocx(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDocxParser(t *testing.T) {
	data := buildDocx(t, map[string]string{"word/document.xml": documentXML})
	p := NewDocxParser()

	can, err := p.CanParse("pozo.docx", data[:4])
	require.NoError(t, err)
	assert.True(t, can)
	can, _ = p.CanParse("upload", data[:4])
	assert.True(t, can)
	can, _ = p.CanParse("notes.txt", data[:4])
	assert.False(t, can)

	doc, err := p.Parse("pozo.docx", data)
	require.NoError(t, err)
	assert.Equal(t, "docx", doc.Format)
	assert.Equal(t, "HISTÓRICO DO POÇO\n07/11/71\tPunzado CPS-01 (561,0 – 568,0 m)\nLinea uno\nLinea dos\n", doc.Text)
	assert.Contains(t, doc.HTML, "<p>Linea uno<br>Linea dos</p>")
	assert.NotContains(t, doc.Text, "PAGE")
}

func TestDocxParser_Errors(t *testing.T) {
	p := NewDocxParser()

	_, err := p.Parse("bad.docx", []byte("not a zip"))
	assert.Error(t, err)

	data := buildDocx(t, map[string]string{"word/other.xml": "<x/>"})
	_, err = p.Parse("empty.docx", data)
	assert.ErrorContains(t, err, "word/document.xml not found")
}

func TestHTMLParser(t *testing.T) {
	p := NewHTMLParser()
	src := `<html><body><h1>Historial del pozo</h1><p>12/03/85 Squeeze <b>CPS-02</b></p><script>alert(1)</script></body></html>`

	can, err := p.CanParse("export", []byte(src))
	require.NoError(t, err)
	assert.True(t, can)

	doc, err := p.Parse("export.html", []byte(src))
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Historial del pozo")
	assert.Contains(t, doc.Text, "12/03/85 Squeeze **CPS-02**")
	assert.NotContains(t, doc.HTML, "<script>")
}

func TestTextParser(t *testing.T) {
	p := NewTextParser()

	doc, err := p.Parse("notes.txt", []byte("07/11/71 Punzado"))
	require.NoError(t, err)
	assert.Equal(t, "07/11/71 Punzado", doc.Text)

	_, err = p.Parse("bin.txt", []byte{0xff, 0xfe, 0xfd})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name    string
		file    string
		data    []byte
		want    string
		wantErr bool
	}{
		{"docx by extension", "a.DOCX", buildDocx(t, map[string]string{"word/document.xml": documentXML}), "docx", false},
		{"html by extension", "a.htm", []byte("<p>x</p>"), "html", false},
		{"html by content", "upload", []byte("  <!DOCTYPE html><html></html>"), "html", false},
		{"text by extension", "a.txt", []byte("hola"), "text", false},
		{"text by content", "upload", []byte("hola"), "text", false},
		{"unsupported", "a.pdf", []byte("%PDF-1.4"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.FindParser(tt.file, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}

	p, err := r.GetParserByName("HTML")
	require.NoError(t, err)
	assert.Equal(t, "html", p.Name())
	_, err = r.GetParserByName("pdf")
	assert.Error(t, err)

	doc, err := GetGlobalRegistry().Convert("a.txt", []byte("texto"))
	require.NoError(t, err)
	assert.Equal(t, "texto", doc.Text)
}
