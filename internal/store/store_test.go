package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackend struct {
	Backend
	saves int
	fail  bool
}

func (c *countingBackend) Save(table Table, doc []byte) error {
	if c.fail {
		return errors.New("disk full")
	}
	c.saves++
	return c.Backend.Save(table, doc)
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	dir, err := NewDirBackend(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	db, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "chatd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Backend{"json": dir, "sqlite": db}
}

func TestBackendsRoundTrip(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := backend.Load(TableChat)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, backend.Save(TableChat, []byte(`[1]`)))
			require.NoError(t, backend.Save(TableChat, []byte(`[1,2]`)))

			doc, err := backend.Load(TableChat)
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(doc))

			_, err = backend.Load(TableTasks)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStorePutSkipsUnchangedDocuments(t *testing.T) {
	dir, err := NewDirBackend(t.TempDir())
	require.NoError(t, err)
	counting := &countingBackend{Backend: dir}
	s := New(counting)

	wrote, err := s.Put(TableAccounts, map[string]string{"alice": "x"})
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.Put(TableAccounts, map[string]string{"alice": "x"})
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = s.Put(TableAccounts, map[string]string{"alice": "y"})
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 2, counting.saves)
}

func TestStorePutFailureIsRetriedNextTime(t *testing.T) {
	dir, err := NewDirBackend(t.TempDir())
	require.NoError(t, err)
	counting := &countingBackend{Backend: dir, fail: true}
	s := New(counting)

	_, err = s.Put(TableChat, []string{"a"})
	require.Error(t, err)

	counting.fail = false
	wrote, err := s.Put(TableChat, []string{"a"})
	require.NoError(t, err)
	assert.True(t, wrote, "a failed save must not be remembered as persisted")
}

func TestStoreGet(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewDirBackend(dir)
	require.NoError(t, err)
	s := New(backend)

	var out []string
	assert.ErrorIs(t, s.Get(TableChat, &out), ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat.json"), []byte("{corrupt"), 0644))
	err = s.Get(TableChat, &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = s.Put(TableChat, []string{"x", "y"})
	require.NoError(t, err)
	require.NoError(t, s.Get(TableChat, &out))
	assert.Equal(t, []string{"x", "y"}, out)
}

func TestDirBackendLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewDirBackend(dir)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, backend.Save(TableTasks, []byte(`{}`)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tasks.json", entries[0].Name())
}
