package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirBackend keeps one <table>.json file per table in a directory.
type DirBackend struct {
	dir string
}

// NewDirBackend creates dir if needed.
func NewDirBackend(dir string) (*DirBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &DirBackend{dir: dir}, nil
}

func (b *DirBackend) path(table Table) string {
	return filepath.Join(b.dir, string(table)+".json")
}

// Load reads the table file.
func (b *DirBackend) Load(table Table) ([]byte, error) {
	data, err := os.ReadFile(b.path(table))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Save writes to a temp file in the same directory and renames it over the
// table file, so readers never see a half-written document.
func (b *DirBackend) Save(table Table, doc []byte) error {
	final := b.path(table)

	tmp, err := os.CreateTemp(b.dir, "."+string(table)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (b *DirBackend) Close() error { return nil }
