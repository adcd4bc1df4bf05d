// Package storage keeps uploaded well history documents.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/well-timeline/backend/internal/models"
)

// File statuses.
const (
	StatusUploaded  = "uploaded"
	StatusSegmented = "segmented"
	StatusError     = "error"
)

// ErrNotFound is returned for unknown file ids.
var ErrNotFound = errors.New("file not found")

// Store defines the interface for document storage.
type Store interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (*models.FileInfo, error)
	Get(ctx context.Context, id string) (*models.FileInfo, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	List(ctx context.Context, limit int) ([]*models.FileInfo, error)
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id, newName string) (*models.FileInfo, error)
	SetStatus(ctx context.Context, id, status string) error
}

// ReadAll loads a stored document into memory.
func ReadAll(ctx context.Context, s Store, id string) ([]byte, *models.FileInfo, error) {
	info, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.Open(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}
