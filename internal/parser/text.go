package parser

import (
	"fmt"
	"unicode/utf8"

	"github.com/well-timeline/backend/internal/models"
)

// TextParser accepts plain UTF-8 text.
type TextParser struct{}

// NewTextParser creates a new TextParser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

func (p *TextParser) Name() string {
	return "text"
}

func (p *TextParser) CanParse(name string, head []byte) (bool, error) {
	switch extension(name) {
	case ".txt", ".text", ".md":
		return true, nil
	case "":
		return len(head) > 0 && utf8.Valid(head), nil
	}
	return false, nil
}

func (p *TextParser) Parse(name string, data []byte) (*models.Document, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("document is not valid UTF-8")
	}
	return &models.Document{
		Name:   name,
		Format: p.Name(),
		Text:   string(data),
	}, nil
}
