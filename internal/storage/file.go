package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"SupportChat/internal/session"
)

// FileStore keeps the log as <dir>/<key>.json
type FileStore struct {
	path string
}

// NewFileStore creates dir if needed
func NewFileStore(dir, key string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, key+".json")}, nil
}

func (f *FileStore) Load(_ context.Context) (session.Log, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return session.Log{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	return decodeLog(raw)
}

func (f *FileStore) Save(_ context.Context, log session.Log) error {
	raw, err := encodeLog(log)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStore) Remove(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStore) Close() error {
	return nil
}
