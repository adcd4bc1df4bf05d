package parser

import (
	"bytes"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/well-timeline/backend/internal/models"
)

// HTMLParser converts HTML exports of reports. The text is rendered as
// markdown; the HTML is sanitized for preview.
type HTMLParser struct {
	md     *converter.Converter
	policy *bluemonday.Policy
}

// NewHTMLParser creates a new HTMLParser.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

func (p *HTMLParser) Name() string {
	return "html"
}

func (p *HTMLParser) CanParse(name string, head []byte) (bool, error) {
	switch extension(name) {
	case ".html", ".htm":
		return true, nil
	case "":
		lower := bytes.ToLower(bytes.TrimSpace(head))
		return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")), nil
	}
	return false, nil
}

func (p *HTMLParser) Parse(name string, data []byte) (*models.Document, error) {
	clean := p.policy.SanitizeBytes(data)
	text, err := p.md.ConvertString(string(clean))
	if err != nil {
		return nil, err
	}
	return &models.Document{
		Name:   name,
		Format: p.Name(),
		Text:   strings.TrimSpace(text),
		HTML:   string(clean),
	}, nil
}
