package socketclient

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/chatd/internal/secrets"
	"github.com/codefionn/chatd/internal/socketserver"
	"github.com/codefionn/chatd/internal/state"
)

func startServer(t *testing.T) (string, *state.State) {
	t.Helper()

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
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr().String(), st
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLogin(t *testing.T) {
	addr, _ := startServer(t)
	c := dial(t, addr)
	ctx := context.Background()

	err := c.Login(ctx, "alice", "wrong")
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr), "got %v", err)
	assert.Equal(t, "[ERR] Invalid credentials", serverErr.Reply)

	require.NoError(t, c.Login(ctx, "alice", "secret"))
}

func TestCommandCollectsMultiLineReply(t *testing.T) {
	addr, _ := startServer(t)
	c := dial(t, addr)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", "secret"))

	reply, err := c.Command(ctx, "chat send hi there")
	require.NoError(t, err)
	assert.Equal(t, "[OK] Message sent", reply)

	reply, err = c.Command(ctx, "chat view")
	require.NoError(t, err)
	lines := strings.Split(reply, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Chat (1 messages):", lines[2])
	assert.Equal(t, "    hi there", lines[5])

	// The next command must not see leftovers of the previous reply.
	reply, err = c.Command(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "Online users (1):\n  - alice (you)", reply)
}

func TestCommandRejectsBlankLine(t *testing.T) {
	addr, _ := startServer(t)
	c := dial(t, addr)

	_, err := c.Command(context.Background(), "   ")
	assert.Error(t, err)
}

func TestUploadDownload(t *testing.T) {
	addr, st := startServer(t)
	c := dial(t, addr)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", "secret"))

	data := []byte("line one\nline two\x00\xff")
	reply, err := c.Upload(ctx, "notes.bin", data)
	require.NoError(t, err)
	assert.Equal(t, "[OK] File 'notes.bin' uploaded (19 bytes)", reply)

	stored, err := st.ReadFile("notes.bin")
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	got, err := c.Download(ctx, "notes.bin")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = c.Download(ctx, "missing.bin")
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, "[ERR] File not found", serverErr.Reply)
}

func TestUploadRequiresLogin(t *testing.T) {
	addr, _ := startServer(t)
	c := dial(t, addr)

	_, err := c.Upload(context.Background(), "a.txt", []byte("x"))
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, "[ERR] Please login first", serverErr.Reply)
}

func TestUploadInvalidFilename(t *testing.T) {
	addr, _ := startServer(t)
	c := dial(t, addr)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", "secret"))

	_, err := c.Upload(ctx, "../escape", []byte("x"))
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, "[ERR] Invalid filename", serverErr.Reply)

	// The session is back in command mode.
	reply, err := c.Command(ctx, "files")
	require.NoError(t, err)
	assert.Equal(t, "No files yet", reply)
}

func TestCloseIsIdempotent(t *testing.T) {
	addr, _ := startServer(t)
	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	_, err = c.Command(context.Background(), "help")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestContextDeadline(t *testing.T) {
	addr, _ := startServer(t)
	c := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	time.Sleep(60 * time.Millisecond)

	_, err := c.Command(ctx, "help")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialFailure(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:1"
	config.ConnectTimeout = time.Second

	_, err := DialWithConfig(context.Background(), config)
	assert.Error(t, err)

	config.Addr = ""
	_, err = DialWithConfig(context.Background(), config)
	assert.Error(t, err)
}
