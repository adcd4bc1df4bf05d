package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// memoryS3 is an in-memory S3 endpoint covering the object calls the store
// makes.
type memoryS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

func (m *memoryS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range m.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(m.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		return response(http.StatusOK, b.String()), nil
	}

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		m.objects[key] = body
		return response(http.StatusOK, ""), nil
	case http.MethodGet:
		body, ok := m.objects[key]
		if !ok {
			return response(http.StatusNotFound, `<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`), nil
		}
		return &http.Response{
			StatusCode:    http.StatusOK,
			Body:          io.NopCloser(bytes.NewReader(body)),
			ContentLength: int64(len(body)),
			Header:        http.Header{},
		}, nil
	case http.MethodDelete:
		delete(m.objects, key)
		return response(http.StatusNoContent, ""), nil
	}
	return response(http.StatusNotImplemented, ""), nil
}

func newMemoryS3Store(t *testing.T) (*S3Store, *memoryS3) {
	t.Helper()
	backend := &memoryS3{objects: make(map[string][]byte)}
	client := s3.NewFromConfig(aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIA", "SECRET", ""),
		HTTPClient:  &http.Client{Transport: backend},
	}, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return newS3Store(client, "wells", "/timeline/"), backend
}

func TestS3Store_Lifecycle(t *testing.T) {
	store, backend := newMemoryS3Store(t)
	ctx := context.Background()

	info, err := store.Save(ctx, "pozo.docx", "application/octet-stream", strings.NewReader("contenido"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, ok := backend.objects["timeline/documents/"+info.ID]; !ok {
		t.Fatalf("Expected body under the prefixed documents key, have %v", backend.objects)
	}

	data, got, err := ReadAll(ctx, store, info.ID)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "contenido" || got.Name != "pozo.docx" || got.Size != 9 {
		t.Errorf("Unexpected document: %q %+v", data, got)
	}

	if _, err := store.Rename(ctx, info.ID, "renombrado.docx"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if err := store.SetStatus(ctx, info.ID, StatusSegmented); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	list, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != "renombrado.docx" || list[0].Status != StatusSegmented {
		t.Errorf("Unexpected listing: %+v", list)
	}

	if err := store.Delete(ctx, info.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestIDFromMetaKey(t *testing.T) {
	if id, ok := idFromMetaKey("p/meta/abc.json"); !ok || id != "abc" {
		t.Errorf("Expected abc, got %q %v", id, ok)
	}
	if _, ok := idFromMetaKey("p/documents/abc"); ok {
		t.Error("Expected body keys to be ignored")
	}
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{}); err == nil {
		t.Error("Expected an error without a bucket")
	}
}
