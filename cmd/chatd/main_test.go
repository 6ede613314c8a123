package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/chatd/internal/config"
	"github.com/codefionn/chatd/internal/secrets"
	"github.com/codefionn/chatd/internal/socketserver"
	"github.com/codefionn/chatd/internal/state"
	"github.com/codefionn/chatd/internal/store"
)

func TestOpenBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		want    any
	}{
		{"json", config.StorageJSON, &store.DirBackend{}},
		{"sqlite", config.StorageSQLite, &store.SQLiteBackend{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.DataDir = t.TempDir()
			cfg.Storage.Backend = tt.backend

			backend, err := openBackend(cfg)
			require.NoError(t, err)
			defer backend.Close()
			assert.IsType(t, tt.want, backend)

			require.NoError(t, backend.Save(store.TableChat, []byte(`[]`)))
			got, err := backend.Load(store.TableChat)
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got))
		})
	}
}

func TestAPIKeysFromEnvPassword(t *testing.T) {
	enc, err := secrets.EncryptString("key-two", "hunter2")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.AI.APIKeys = []string{"key-one", enc}

	t.Setenv(secretsPasswordEnv, "hunter2")
	keys, password, err := apiKeys(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-one", "key-two"}, keys)
	assert.Equal(t, "hunter2", password)

	t.Setenv(secretsPasswordEnv, "wrong")
	_, _, err = apiKeys(cfg)
	assert.ErrorIs(t, err, secrets.ErrInvalidPassword)
}

func TestAPIKeysPlaintext(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AI.APIKeys = []string{" a ", "", "b"}

	keys, password, err := apiKeys(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Empty(t, password)
}

type recordingKeys struct {
	calls [][]string
}

func (r *recordingKeys) SetKeys(ctx context.Context, keys []string) {
	r.calls = append(r.calls, keys)
}

func TestReloadKeys(t *testing.T) {
	enc, err := secrets.EncryptString("fresh", "pw")
	require.NoError(t, err)

	next := config.DefaultConfig()
	next.AI.APIKeys = []string{enc}

	rec := &recordingKeys{}
	reloadKeys(context.Background(), rec, next, "pw")
	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{"fresh"}, rec.calls[0])

	// A password that no longer fits keeps the old pool.
	reloadKeys(context.Background(), rec, next, "other")
	assert.Len(t, rec.calls, 1)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "chatd dev\n", out.String())
}

func TestClientCommands(t *testing.T) {
	st, err := state.New(state.Options{
		FilesDir: t.TempDir(),
		Hasher:   secrets.PasswordHasher{N: 1 << 10, R: 8, P: 1},
	})
	require.NoError(t, err)
	require.NoError(t, st.Register("alice", "secret"))

	srv := socketserver.NewServer(socketserver.Options{ListenAddr: "127.0.0.1:0"}, st, nil)
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append([]string{"client", "--addr", srv.Addr().String(), "--user", "alice", "--password", "secret"}, args...))
		defer rootCmd.SetArgs(nil)
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	assert.Equal(t, "[OK] Task created: ", run("task", "create", "ship it")[:19])

	src := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("quarterly numbers"), 0644))
	assert.Equal(t, "[OK] File 'report.txt' uploaded (17 bytes)\n", run("upload", src))

	dst := filepath.Join(t.TempDir(), "copy.txt")
	run("download", "report.txt", dst)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(data))

	assert.Equal(t, "quarterly numbers", run("download", "report.txt"))
}

func TestMetricsMux(t *testing.T) {
	for _, withPprof := range []bool{false, true} {
		mux := metricsMux(withPprof)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "chatd_")

		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
		if withPprof {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusNotFound, rec.Code)
		}
	}
}
