// Package parser converts well history documents to text and splits them
// into dated interventions.
package parser

import (
	"path/filepath"
	"strings"

	"github.com/well-timeline/backend/internal/models"
)

// Parser defines the interface for document parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// CanParse reports whether the parser handles a document with this name
	// and leading bytes.
	CanParse(name string, head []byte) (bool, error)
	// Parse converts the whole document.
	Parse(name string, data []byte) (*models.Document, error)
}

func extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
