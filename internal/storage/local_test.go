package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})

	t.Run("indexes existing documents", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		info, err := first.Save(context.Background(), "pozo.docx", "", strings.NewReader("data"))
		if err != nil {
			t.Fatalf("Failed to save: %v", err)
		}

		second, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		got, err := second.Get(context.Background(), info.ID)
		if err != nil {
			t.Fatalf("Expected document to survive reopen: %v", err)
		}
		if got.Name != "pozo.docx" {
			t.Errorf("Expected name 'pozo.docx', got %v", got.Name)
		}
	})
}

func TestLocalStore_SaveAndOpen(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	content := "HISTÓRICO DO POÇO"
	info, err := store.Save(ctx, "pozo.txt", "text/plain", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}
	if info.ID == "" {
		t.Error("Expected ID to be set")
	}
	if info.Size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), info.Size)
	}
	if info.Status != StatusUploaded {
		t.Errorf("Expected status %q, got %v", StatusUploaded, info.Status)
	}

	rc, err := store.Open(ctx, info.ID)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != content {
		t.Errorf("Expected %q, got %q", content, data)
	}

	data, got, err := ReadAll(ctx, store, info.ID)
	if err != nil || string(data) != content || got.ID != info.ID {
		t.Errorf("ReadAll mismatch: %v %q", err, data)
	}
}

func TestLocalStore_NotFound(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := store.Open(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open: expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
	if _, err := store.Rename(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rename: expected ErrNotFound, got %v", err)
	}
	if err := store.SetStatus(ctx, "missing", StatusError); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus: expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a.docx", "b.docx", "c.docx"} {
		if _, err := store.Save(ctx, name, "", strings.NewReader(name)); err != nil {
			t.Fatalf("Failed to save %s: %v", name, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	list, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(list))
	}
	if list[0].Name != "c.docx" || list[1].Name != "b.docx" {
		t.Errorf("Expected newest first, got %s, %s", list[0].Name, list[1].Name)
	}

	all, _ := store.List(ctx, 0)
	if len(all) != 3 {
		t.Errorf("Expected 3 files without limit, got %d", len(all))
	}
}

func TestLocalStore_RenameStatusDelete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	info, err := store.Save(ctx, "old.docx", "", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	renamed, err := store.Rename(ctx, info.ID, "new.docx")
	if err != nil || renamed.Name != "new.docx" {
		t.Fatalf("Rename failed: %v", err)
	}
	if err := store.SetStatus(ctx, info.ID, StatusSegmented); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	reopened, err := NewLocalStore(store.uploadDir)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	got, err := reopened.Get(ctx, info.ID)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.Name != "new.docx" || got.Status != StatusSegmented {
		t.Errorf("Expected persisted rename and status, got %+v", got)
	}

	if err := store.Delete(ctx, info.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.uploadDir, info.ID+metaSuffix)); !os.IsNotExist(err) {
		t.Error("Expected metadata file to be removed")
	}
}
