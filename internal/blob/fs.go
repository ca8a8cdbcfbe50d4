package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps blobs as files under a root directory, with a small sidecar
// file carrying the content type. Used for development and tests.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

type sidecar struct {
	ContentType string `json:"content_type"`
}

func (s *FSStore) path(ref string) (string, error) {
	// Refs are ULID-derived; anything with separators is refused outright.
	if ref == "" || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return "", fmt.Errorf("invalid blob ref %q", ref)
	}
	return filepath.Join(s.root, ref), nil
}

func (s *FSStore) Put(ctx context.Context, ref string, data []byte, contentType string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing blob: %w", err)
	}
	meta, _ := json.Marshal(sidecar{ContentType: contentType})
	if err := os.WriteFile(path+".meta", meta, 0o644); err != nil {
		return fmt.Errorf("writing blob metadata: %w", err)
	}
	return nil
}

func (s *FSStore) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}

	contentType := "application/octet-stream"
	if meta, err := os.ReadFile(path + ".meta"); err == nil {
		var sc sidecar
		if json.Unmarshal(meta, &sc) == nil && sc.ContentType != "" {
			contentType = sc.ContentType
		}
	}

	return f, contentType, nil
}

func (s *FSStore) Remove(ctx context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(path + ".meta"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
