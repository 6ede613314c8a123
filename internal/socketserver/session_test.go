package socketserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/codefionn/chatd/internal/llm"
	"github.com/codefionn/chatd/internal/secrets"
	"github.com/codefionn/chatd/internal/state"
)

var cheapHasher = secrets.PasswordHasher{N: 1 << 10, R: 8, P: 1}

func newTestState(t testing.TB) *state.State {
	t.Helper()
	st, err := state.New(state.Options{FilesDir: t.TempDir(), Hasher: cheapHasher})
	require.NoError(t, err)
	return st
}

// fakeAI records the conversations it is asked to continue.
type fakeAI struct {
	available bool
	reply     string
	err       error
	calls     [][]llm.Turn
}

func (f *fakeAI) Available() bool { return f.available }

func (f *fakeAI) Generate(ctx context.Context, turns []llm.Turn) (string, error) {
	f.calls = append(f.calls, turns)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type harness struct {
	t       *testing.T
	st      *state.State
	session *Session
}

func newHarness(t *testing.T, st *state.State, ai AIClient) *harness {
	return &harness{t: t, st: st, session: NewSession(st, ai, Limits{}, "test")}
}

func (h *harness) do(line string) string {
	h.t.Helper()
	return h.session.Handle(context.Background(), line).Text
}

func (h *harness) login(user string) {
	h.t.Helper()
	_ = h.st.Register(user, "secret")
	require.True(h.t, strings.HasPrefix(h.do("login "+user+" secret"), "[OK] Logged in as '"+user+"'"))
}

func TestAuthGate(t *testing.T) {
	h := newHarness(t, newTestState(t), nil)

	for _, cmd := range []string{"chat view", "task list", "ai hi", "upload", "download x", "files", "users", "logout", "post hi", "VIEW"} {
		assert.Equal(t, msgLoginRequired, h.do(cmd), cmd)
	}
	assert.Equal(t, msgUnknownCommand, h.do("frobnicate"))
	assert.Equal(t, "", h.do(""))
	assert.Equal(t, "", h.do("   "))
	assert.Contains(t, h.do("HELP"), "register <username> <password>")
	assert.Equal(t, ModeUnauthenticated, h.session.Mode())
}

func TestRegisterAndLogin(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)

	assert.Equal(t, usageRegister, h.do("register alice"))
	assert.Equal(t, "[OK] User 'alice' registered", h.do("register alice secret"))
	assert.Equal(t, msgRegisterFailed, h.do("register alice other"))
	assert.Equal(t, msgRegisterFailed, h.do("register al secret"))
	assert.Equal(t, msgRegisterFailed, h.do("register bob abc"))
	assert.Equal(t, ModeUnauthenticated, h.session.Mode(), "register does not log in")

	assert.Equal(t, usageLogin, h.do("login alice"))

	wrongPassword := h.do("login alice wrong")
	unknownUser := h.do("login mallory secret")
	assert.Equal(t, msgInvalidCreds, wrongPassword)
	assert.Equal(t, wrongPassword, unknownUser)

	reply := h.do("login alice secret")
	require.True(t, strings.HasPrefix(reply, "[OK] Logged in as 'alice' (session "))
	assert.Contains(t, reply, h.session.SessionID())
	assert.Equal(t, ModeAuthenticated, h.session.Mode())

	assert.Equal(t, msgAlreadyLoggedIn, h.do("login alice secret"))
	assert.Equal(t, msgAlreadyLoggedIn, h.do("register carol secret"))

	other := newHarness(t, st, nil)
	other.do("login alice secret")
	assert.NotEqual(t, h.session.SessionID(), other.session.SessionID())

	assert.Equal(t, msgLoggedOut, h.do("logout"))
	assert.Equal(t, ModeUnauthenticated, h.session.Mode())
	assert.Equal(t, 1, st.SessionCount())
	assert.Equal(t, msgLoginRequired, h.do("chat view"))
}

func TestQuit(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)
	h.login("alice")

	reply := h.session.Handle(context.Background(), "Exit")
	assert.Equal(t, msgGoodbye, reply.Text)
	assert.True(t, reply.Close)

	h.session.Disconnect()
	assert.Equal(t, 0, st.SessionCount())
	assert.Equal(t, ModeClosed, h.session.Mode())
}

func TestChat(t *testing.T) {
	h := newHarness(t, newTestState(t), nil)
	h.login("alice")

	assert.Equal(t, msgNoMessages, h.do("chat view"))
	assert.Equal(t, usageChat, h.do("chat"))
	assert.Equal(t, msgUnknownChatAction, h.do("chat shout hi"))

	assert.Equal(t, msgMessageSent, h.do("chat send hello world"))
	assert.Equal(t, msgMessageSent, h.do("post second"))
	assert.Equal(t, msgMessageSent, h.do("SEND third"))

	view := h.do("chat view 1")
	assert.Contains(t, view, "Chat (1 messages):")
	assert.Contains(t, view, "[1] alice (")
	assert.Contains(t, view, "    third")
	assert.NotContains(t, view, "hello world")

	all := h.do("read")
	assert.Contains(t, all, "Chat (3 messages):")
	assert.Contains(t, all, "    hello world")
	assert.Less(t, strings.Index(all, "hello world"), strings.Index(all, "third"))
}

func TestChatMultiline(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)
	h.login("alice")

	assert.Equal(t, "Enter message (type 'END' on new line to finish):", h.do("chat send"))
	assert.Equal(t, ModeMultiline, h.session.Mode())
	assert.Equal(t, "", h.do("line one"))
	assert.Equal(t, "", h.do(""))
	assert.Equal(t, "", h.do("  indented"))
	assert.Equal(t, "", h.do("end"))
	assert.Equal(t, msgMessageSent, h.do("END"))
	assert.Equal(t, ModeAuthenticated, h.session.Mode())

	msgs := st.RecentChat(1)
	require.Len(t, msgs, 1)
	assert.Equal(t, "line one\n\n  indented\nend", msgs[0].Text)

	h.do("post")
	assert.Equal(t, msgEmptyMessage, h.do("END"))
	assert.Equal(t, 1, st.ChatLen())
}

func TestChatViewCountDegradesToDefault(t *testing.T) {
	h := newHarness(t, newTestState(t), nil)
	h.login("alice")
	for i := 0; i < 3; i++ {
		h.do(fmt.Sprintf("chat send m%d", i))
	}

	want := h.do("chat view")
	for _, arg := range []string{"0", "0", "-5", "abc", "1.5"} {
		assert.Equal(t, want, h.do("chat view "+arg), arg)
	}

	rapid.Check(t, func(rt *rapid.T) {
		arg := rapid.OneOf(
			rapid.Map(rapid.IntRange(-1000, 0), func(n int) string { return fmt.Sprint(n) }),
			rapid.StringMatching(`[a-z.\-]{1,8}`),
		).Draw(rt, "count")
		if got := h.do("view " + arg); got != want {
			rt.Fatalf("view %q = %q, want default window", arg, got)
		}
	})
}

func TestTasks(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)
	h.login("alice")

	assert.Equal(t, msgNoTasks, h.do("task list"))
	assert.Equal(t, usageTask, h.do("task"))
	assert.Equal(t, msgTitleRequired, h.do("task create"))
	assert.Equal(t, msgUnknownTaskAction, h.do("task explode 1"))
	assert.Equal(t, usageTaskID, h.do("task view"))

	reply := h.do("task create Fix the build")
	require.True(t, strings.HasPrefix(reply, "[OK] Task created: "))
	id := strings.TrimPrefix(reply, "[OK] Task created: ")
	assert.Len(t, id, 8)

	list := h.do("task list")
	assert.Contains(t, list, "Tasks (1 total):")
	assert.Contains(t, list, "["+id+"] Fix the build (pending)")
	assert.Contains(t, list, "         by alice - ")

	view := h.do("task view " + id)
	assert.Contains(t, view, "Title:       Fix the build")
	assert.Contains(t, view, "Description:\n(none)")

	assert.Equal(t, msgInvalidStatus, h.do("task status "+id+" done"))
	assert.Equal(t, msgInvalidStatus, h.do("task status "+id))
	assert.Equal(t, msgTaskNotFound, h.do("task status nope solved"))
	assert.Equal(t, "[OK] Status changed to 'in_progress'", h.do("task status "+id+" in_progress"))

	task, err := st.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, state.StatusInProgress, task.Status)

	assert.Equal(t, msgTaskNotFound, h.do("task view nope"))
	assert.Equal(t, msgTaskNotFound, h.do("task add-desc nope"))
	assert.Equal(t, ModeAuthenticated, h.session.Mode())

	assert.Equal(t, msgTaskDeleted, h.do("task delete "+id))
	assert.Equal(t, msgTaskNotFound, h.do("task delete "+id))
}

func TestTaskDescriptionCommit(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)
	h.login("alice")
	task, err := st.CreateTask("t", "alice")
	require.NoError(t, err)

	assert.Equal(t, "Enter description (type 'END' on new line to finish):", h.do("task add-desc "+task.ID))
	h.do("a")
	h.do("b")
	assert.Equal(t, msgDescriptionSaved, h.do("END"))

	got, _ := st.GetTask(task.ID)
	assert.Equal(t, "a\nb", got.Description)

	assert.Equal(t, "Enter solution (type 'END' on new line to finish):", h.do("task add-sol "+task.ID))
	assert.Equal(t, msgSolutionSaved, h.do("END"))
	got, _ = st.GetTask(task.ID)
	assert.Equal(t, "", got.Solution)
}

func TestTaskDescriptionAbortedByDisconnect(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)
	h.login("alice")
	task, err := st.CreateTask("t", "alice")
	require.NoError(t, err)
	require.NoError(t, st.SetTaskDescription(task.ID, "original"))

	h.do("task add-desc " + task.ID)
	h.do("a")
	h.session.Disconnect()

	got, _ := st.GetTask(task.ID)
	assert.Equal(t, "original", got.Description)
	assert.Equal(t, 0, st.SessionCount())
}

func TestTaskDeletedWhileCollecting(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)
	h.login("alice")
	task, err := st.CreateTask("t", "alice")
	require.NoError(t, err)

	h.do("task add-sol " + task.ID)
	h.do("text")
	require.NoError(t, st.DeleteTask(task.ID))
	assert.Equal(t, msgTaskNotFound, h.do("END"))
	assert.Equal(t, ModeAuthenticated, h.session.Mode())
}

func TestUploadStages(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)
	h.login("alice")

	assert.Equal(t, msgFilenamePrompt, h.do("upload"))
	assert.Equal(t, msgInvalidFilename, h.do("../etc/passwd"))
	assert.Equal(t, ModeAuthenticated, h.session.Mode())

	for _, size := range []string{"-1", "abc", fmt.Sprint(int64(100*1024*1024) + 1)} {
		h.do("upload")
		assert.Equal(t, msgSizePrompt, h.do("notes.txt"))
		assert.Equal(t, msgInvalidFileSize, h.do(size), size)
		assert.Equal(t, ModeAuthenticated, h.session.Mode())
	}

	h.do("upload")
	h.do("notes.txt")
	reply := h.session.Handle(context.Background(), "5")
	assert.Equal(t, "Ready to receive 5 bytes (base64)", reply.Text)
	assert.True(t, reply.Payload)
	assert.Equal(t, 8, reply.PayloadLen)

	// Declared 5 bytes but the payload decodes to 6.
	done := h.session.HandlePayload(context.Background(), []byte(base64.StdEncoding.EncodeToString([]byte("abcdef"))), nil)
	assert.Equal(t, msgInvalidFileData, done.Text)

	h.do("upload")
	h.do("notes.txt")
	h.do("5")
	done = h.session.HandlePayload(context.Background(), []byte("!!!!!!!!"), nil)
	assert.Equal(t, msgInvalidFileData, done.Text)

	h.do("upload")
	h.do("notes.txt")
	h.do("5")
	done = h.session.HandlePayload(context.Background(), nil, os.ErrDeadlineExceeded)
	assert.Equal(t, msgUploadTimedOut, done.Text)
	assert.Equal(t, ModeAuthenticated, h.session.Mode())

	assert.Equal(t, msgNoFiles, h.do("files"))
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)
	h.login("alice")

	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 20000).Draw(rt, "data")
		name := rapid.StringMatching(`[a-zA-Z0-9_-]{1,12}\.bin`).Draw(rt, "name")

		h.do("upload")
		h.do(name)
		reply := h.session.Handle(context.Background(), fmt.Sprint(len(data)))
		if !reply.Payload || reply.PayloadLen != base64.StdEncoding.EncodedLen(len(data)) {
			rt.Fatalf("unexpected payload directive %+v", reply)
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		done := h.session.HandlePayload(context.Background(), []byte(encoded), nil)
		if want := fmt.Sprintf(msgUploaded, name, len(data)); done.Text != want {
			rt.Fatalf("upload reply %q, want %q", done.Text, want)
		}

		download := h.do("download " + name)
		want := fmt.Sprintf("[OK] Sending '%s' (%d bytes)\n%s", name, len(data), encoded)
		if download != want {
			rt.Fatalf("download of %d bytes does not round trip", len(data))
		}
	})
}

func TestDownloadAndFiles(t *testing.T) {
	st := newTestState(t)
	h := newHarness(t, st, nil)
	h.login("alice")

	assert.Equal(t, usageDownload, h.do("download"))
	assert.Equal(t, msgInvalidFilename, h.do("download ../secret"))
	assert.Equal(t, msgInvalidFilename, h.do("download a\\b"))
	assert.Equal(t, msgFileNotFound, h.do("download missing.txt"))

	require.NoError(t, st.PutFile("b.txt", []byte("bb")))
	require.NoError(t, st.PutFile("a.txt", []byte("a")))

	files := h.do("files")
	lines := strings.Split(files, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Files (2):", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "a.txt  1 bytes  xxh64:"))
	assert.True(t, strings.HasPrefix(lines[2], "b.txt  2 bytes  xxh64:"))
}

func TestUsers(t *testing.T) {
	st := newTestState(t)
	alice := newHarness(t, st, nil)
	alice.login("alice")
	bob := newHarness(t, st, nil)
	bob.login("bob")

	assert.Equal(t, "Online users (2):\n  - alice (you)\n  - bob", alice.do("users"))
	assert.Equal(t, "Online users (2):\n  - alice\n  - bob (you)", bob.do("users"))

	bob.session.Disconnect()
	assert.Equal(t, "Online users (1):\n  - alice (you)", alice.do("users"))
}

func TestAIDegraded(t *testing.T) {
	st := newTestState(t)
	for _, ai := range []AIClient{nil, &fakeAI{available: false}} {
		h := newHarness(t, st, ai)
		h.login("alice")
		assert.Equal(t, usageAI, h.do("ai"))
		assert.Equal(t, msgAIUnavailable, h.do("ai hello"))
		assert.Equal(t, msgAICleared, h.do("ai CLEAR"))
		h.session.Disconnect()
	}
}

func TestAIConversation(t *testing.T) {
	st := newTestState(t)
	ai := &fakeAI{available: true, reply: "hi there"}
	h := newHarness(t, st, ai)
	h.login("alice")

	assert.Equal(t, "AI: hi there", h.do("ai hello"))
	require.Len(t, ai.calls, 1)
	assert.Equal(t, []llm.Turn{{Role: llm.RoleUser, Content: "hello"}}, ai.calls[0])

	assert.Equal(t, "AI: hi there", h.do("ai again"))
	assert.Equal(t, []llm.Turn{
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi there"},
		{Role: llm.RoleUser, Content: "again"},
	}, ai.calls[1])

	ai.err = llm.ErrOverloaded
	assert.Equal(t, "AI: "+llm.ErrOverloaded.Error(), h.do("ai third"))
	history := st.AIHistory("alice", 100)
	require.Len(t, history, 5, "the prompt of a failed request is kept")
	assert.Equal(t, state.AITurn{Role: state.RoleUser, Content: "third"}, history[4])

	ai.err = &llm.RequestError{Err: errors.New("bad")}
	assert.Equal(t, "AI: Error processing request: bad", h.do("ai fourth"))
	assert.Equal(t, llm.Turn{Role: llm.RoleUser, Content: "third"}, ai.calls[3][4])

	ai.err = llm.ErrUnavailable
	assert.Equal(t, msgAIUnavailable, h.do("ai fifth"))
	assert.Len(t, st.AIHistory("alice", 100), 6, "nothing is recorded when no backend is configured")

	assert.Equal(t, msgAICleared, h.do("ai clear"))
	assert.Empty(t, st.AIHistory("alice", 100))
}

func TestAIHistoryWindow(t *testing.T) {
	st := newTestState(t)
	for i := 0; i < 30; i++ {
		st.AppendAIExchange("alice", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	ai := &fakeAI{available: true, reply: "ok"}
	h := newHarness(t, st, ai)
	h.login("alice")

	h.do("ai latest")
	require.Len(t, ai.calls, 1)
	turns := ai.calls[0]
	require.Len(t, turns, 20)
	assert.Equal(t, llm.Turn{Role: llm.RoleUser, Content: "latest"}, turns[19])
	assert.Equal(t, "a29", turns[18].Content)
}
