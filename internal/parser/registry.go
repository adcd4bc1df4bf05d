package parser

import (
	"fmt"
	"strings"

	"github.com/well-timeline/backend/internal/models"
)

// sniffLen is how many leading bytes are passed to CanParse.
const sniffLen = 512

// Registry holds all available parsers and provides auto-detection.
type Registry struct {
	parsers []Parser
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry returns a registry with the docx, html and text parsers.
func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewDocxParser(),
			NewHTMLParser(),
			NewTextParser(),
		},
	}
}

// GetGlobalRegistry returns the singleton registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds a new parser to the registry.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// FindParser detects the correct parser for a document.
func (r *Registry) FindParser(name string, data []byte) (Parser, error) {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	for _, p := range r.parsers {
		can, err := p.CanParse(name, head)
		if err != nil {
			continue
		}
		if can {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no suitable parser found for file: %s", name)
}

// GetParserByName returns a parser by its name.
func (r *Registry) GetParserByName(name string) (Parser, error) {
	name = strings.ToLower(name)
	for _, p := range r.parsers {
		if strings.ToLower(p.Name()) == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("parser not found: %s", name)
}

// Convert finds a parser for the document and runs it.
func (r *Registry) Convert(name string, data []byte) (*models.Document, error) {
	p, err := r.FindParser(name, data)
	if err != nil {
		return nil, err
	}
	doc, err := p.Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("%s parser: %w", p.Name(), err)
	}
	return doc, nil
}
