package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps each bucket as a directory under root.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(bucket, key string) (string, error) {
	if bucket == "" || key == "" || strings.Contains(bucket, "..") || strings.Contains(key, "..") ||
		strings.ContainsAny(bucket, `/\`) || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: invalid object path %q/%q", ErrStore, bucket, key)
	}
	return filepath.Join(s.root, bucket, key), nil
}

func (s *FSStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("%w: create bucket dir: %v", ErrUpload, err)
	}

	// Write to a temp file first so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ErrUpload, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrUpload, key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrUpload, key, err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrDownload, key, err)
	}
	return data, nil
}

func (s *FSStore) Delete(ctx context.Context, bucket, key string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %v", ErrStore, key, err)
	}
	return nil
}
