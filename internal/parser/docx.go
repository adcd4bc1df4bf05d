package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/well-timeline/backend/internal/models"
)

var zipMagic = []byte("PK\x03\x04")

// DocxParser reads the body text of Word documents.
type DocxParser struct{}

// NewDocxParser creates a new DocxParser.
func NewDocxParser() *DocxParser {
	return &DocxParser{}
}

func (p *DocxParser) Name() string {
	return "docx"
}

func (p *DocxParser) CanParse(name string, head []byte) (bool, error) {
	if extension(name) == ".docx" {
		return true, nil
	}
	return extension(name) == "" && bytes.HasPrefix(head, zipMagic), nil
}

// Parse extracts paragraphs from word/document.xml. Tabs and line breaks
// inside a paragraph are kept.
func (p *DocxParser) Parse(name string, data []byte) (*models.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	paragraphs, err := docxParagraphs(rc)
	if err != nil {
		return nil, err
	}

	var htmlOut strings.Builder
	for _, para := range paragraphs {
		if strings.TrimSpace(para) == "" {
			continue
		}
		htmlOut.WriteString("<p>")
		htmlOut.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		htmlOut.WriteString("</p>\n")
	}

	return &models.Document{
		Name:   name,
		Format: p.Name(),
		Text:   strings.Join(paragraphs, "\n"),
		HTML:   htmlOut.String(),
	}, nil
}

func docxParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)
	var paragraphs []string
	var current strings.Builder
	inParagraph, inText := false, false

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
			case "t":
				inText = inParagraph
			case "tab":
				if inParagraph {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inParagraph {
					current.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inParagraph {
					paragraphs = append(paragraphs, current.String())
					inParagraph = false
				}
			}
		}
	}
	return paragraphs, nil
}
