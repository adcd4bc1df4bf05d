package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/well-timeline/backend/internal/models"
)

const metaSuffix = ".json"

// LocalStore implements Store on the local filesystem. Each document is
// stored under its id with a JSON metadata file beside it, so uploads
// survive restarts.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
}

// NewLocalStore creates a LocalStore and indexes the documents already in
// uploadDir.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	s := &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
	}
	s.loadIndex()
	return s, nil
}

func (s *LocalStore) loadIndex() {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		log.Warnf("[Storage] Failed to scan upload directory: %v", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.uploadDir, e.Name()))
		if err != nil {
			continue
		}
		var info models.FileInfo
		if err := json.Unmarshal(data, &info); err != nil || info.ID == "" {
			log.Warnf("[Storage] Skipping unreadable metadata %s", e.Name())
			continue
		}
		if _, err := os.Stat(s.path(info.ID)); err != nil {
			continue
		}
		s.files[info.ID] = &info
	}
	if len(s.files) > 0 {
		log.Infof("[Storage] Indexed %d existing documents", len(s.files))
	}
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.uploadDir, id)
}

func (s *LocalStore) writeMeta(info *models.FileInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(info.ID)+metaSuffix, data, 0644)
}

// Save saves a document to the local filesystem.
func (s *LocalStore) Save(_ context.Context, name, contentType string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := s.path(id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:          id,
		Name:        name,
		Size:        size,
		ContentType: contentType,
		UploadedAt:  time.Now(),
		Status:      StatusUploaded,
	}
	if err := s.writeMeta(info); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return copyInfo(info), nil
}

// Get retrieves document metadata by ID.
func (s *LocalStore) Get(_ context.Context, id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyInfo(info), nil
}

// Open returns the document contents.
func (s *LocalStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.RLock()
	_, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	f, err := os.Open(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// List returns the most recent documents.
func (s *LocalStore) List(_ context.Context, limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, copyInfo(info))
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a document and its metadata.
func (s *LocalStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	for _, p := range []string{s.path(id), s.path(id) + metaSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting file: %w", err)
		}
	}

	delete(s.files, id)
	return nil
}

// Rename updates the display name of a document.
func (s *LocalStore) Rename(_ context.Context, id, newName string) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	info.Name = newName
	if err := s.writeMeta(info); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}
	return copyInfo(info), nil
}

// SetStatus records the processing status of a document.
func (s *LocalStore) SetStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	info.Status = status
	return s.writeMeta(info)
}

func copyInfo(info *models.FileInfo) *models.FileInfo {
	c := *info
	return &c
}
