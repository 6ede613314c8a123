package state

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// tempFilePrefix marks files still being written. ListFiles skips them and
// ValidateFilename refuses them as upload names.
const tempFilePrefix = ".upload-"

// PutFile writes data as name in the files directory, replacing any
// previous content atomically.
func (s *State) PutFile(name string, data []byte) error {
	if err := ValidateFilename(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.filesDir, tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.filesDir, name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to store file: %w", err)
	}

	log.Info("stored file %s (%d bytes)", name, len(data))
	return nil
}

// ReadFile returns the content of a shared file.
func (s *State) ReadFile(name string) ([]byte, error) {
	if err := ValidateFilename(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.filesDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// ListFiles returns the shared files sorted by name with their xxh64
// checksums. Temp files of in-progress writes are skipped. Only the
// directory snapshot is taken under the lock; checksums are computed after
// it is released. Replacing a file is a rename, so an open handle always
// sees one complete version.
func (s *State) ListFiles() ([]FileInfo, error) {
	s.mu.Lock()
	entries, err := os.ReadDir(s.filesDir)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var out []FileInfo
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), tempFilePrefix) {
			continue
		}
		sum, size, err := checksumFile(filepath.Join(s.filesDir, entry.Name()))
		if err != nil {
			log.Warn("skipping %s: %v", entry.Name(), err)
			continue
		}
		out = append(out, FileInfo{Name: entry.Name(), Size: size, Checksum: sum})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func checksumFile(path string) (uint64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, 0, err
	}
	return h.Sum64(), n, nil
}
