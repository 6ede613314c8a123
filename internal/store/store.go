// Package store persists the server's tables as whole documents.
//
// Each logical table (accounts, chat log, task board, AI histories) is one
// opaque JSON document that is rewritten in full on every change. Backends
// only need to load and atomically replace a document by name.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Table names a persisted document.
type Table string

// The four durable tables.
const (
	TableAccounts Table = "users"
	TableChat     Table = "chat"
	TableTasks    Table = "tasks"
	TableAIChat   Table = "ai_chat"
)

// Tables lists every durable table.
var Tables = []Table{TableAccounts, TableChat, TableTasks, TableAIChat}

// ErrNotFound is returned by Backend.Load for a table never saved.
var ErrNotFound = errors.New("document not found")

// Backend loads and atomically replaces documents.
type Backend interface {
	Load(table Table) ([]byte, error)
	Save(table Table, doc []byte) error
	Close() error
}

// Store encodes tables as JSON on top of a Backend and skips rewriting a
// document whose bytes did not change since the last successful save.
type Store struct {
	backend Backend

	mu      sync.Mutex
	digests map[Table]uint64
}

// New wraps backend.
func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		digests: make(map[Table]uint64),
	}
}

// Get decodes table into v. It returns ErrNotFound for a missing document
// and a decode error for a corrupt one.
func (s *Store) Get(table Table, v any) error {
	doc, err := s.backend.Load(table)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}

	s.mu.Lock()
	s.digests[table] = xxhash.Sum64(doc)
	s.mu.Unlock()
	return nil
}

// Put encodes v and saves it as table unless the encoding is unchanged.
// It reports whether the backend was written.
func (s *Store) Put(table Table, v any) (bool, error) {
	doc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", table, err)
	}
	sum := xxhash.Sum64(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.digests[table]; ok && prev == sum {
		return false, nil
	}
	if err := s.backend.Save(table, doc); err != nil {
		return false, fmt.Errorf("save %s: %w", table, err)
	}
	s.digests[table] = sum
	return true, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
