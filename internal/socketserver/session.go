package socketserver

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/codefionn/chatd/internal/consts"
	"github.com/codefionn/chatd/internal/llm"
	"github.com/codefionn/chatd/internal/metrics"
	"github.com/codefionn/chatd/internal/state"
)

// Mode is the protocol state of one connection.
type Mode int

const (
	ModeUnauthenticated Mode = iota
	ModeAuthenticated
	ModeMultiline
	ModeUpload
	ModeClosed
)

func (m Mode) String() string {
	switch m {
	case ModeUnauthenticated:
		return "UNAUTHENTICATED"
	case ModeAuthenticated:
		return "AUTHENTICATED"
	case ModeMultiline:
		return "AWAITING_MULTILINE"
	case ModeUpload:
		return "AWAITING_UPLOAD"
	case ModeClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Reply is what the connection driver must do after one input.
type Reply struct {
	// Text is written followed by a newline. Empty means nothing is written.
	Text string
	// Close ends the connection after Text is written.
	Close bool
	// PayloadLen, when Payload is set, is the exact number of bytes the
	// driver must read next and hand to HandlePayload.
	Payload    bool
	PayloadLen int
}

// AIClient generates AI replies. *llm.RotatingClient implements it.
type AIClient interface {
	Generate(ctx context.Context, turns []llm.Turn) (string, error)
	Available() bool
}

// Limits tune the protocol engine.
type Limits struct {
	ChatViewDefault int
	AIHistoryWindow int
	MaxUploadBytes  int64
	UploadTimeout   time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.ChatViewDefault < 1 {
		l.ChatViewDefault = consts.DefaultChatView
	}
	if l.AIHistoryWindow < 1 {
		l.AIHistoryWindow = consts.AIHistoryWindow
	}
	if l.MaxUploadBytes <= 0 {
		l.MaxUploadBytes = consts.MaxUploadBytes
	}
	if l.UploadTimeout <= 0 {
		l.UploadTimeout = consts.Timeout2Minutes
	}
	return l
}

type multilineTarget int

const (
	targetChat multilineTarget = iota
	targetDescription
	targetSolution
)

type uploadStage int

const (
	stageFilename uploadStage = iota
	stageSize
	stagePayload
)

// Session is the protocol state machine of one connection. It never reads
// from the network: the driver feeds it lines and upload payloads and acts
// on the returned Reply. A Session is used by one goroutine only.
type Session struct {
	state  *state.State
	ai     AIClient
	limits Limits
	remote string

	mode      Mode
	sessionID string
	username  string

	// AWAITING_MULTILINE
	target multilineTarget
	taskID string
	lines  []string

	// AWAITING_UPLOAD
	stage      uploadStage
	uploadName string
	uploadSize int64
}

// NewSession starts a connection in UNAUTHENTICATED. ai may be nil.
func NewSession(st *state.State, ai AIClient, limits Limits, remoteAddr string) *Session {
	return &Session{
		state:  st,
		ai:     ai,
		limits: limits.withDefaults(),
		remote: remoteAddr,
		mode:   ModeUnauthenticated,
	}
}

// Mode returns the current protocol state.
func (s *Session) Mode() Mode { return s.mode }

// Username is empty until login.
func (s *Session) Username() string { return s.username }

// SessionID is empty until login.
func (s *Session) SessionID() string { return s.sessionID }

// Handle consumes one line with its newline and trailing CR removed.
func (s *Session) Handle(ctx context.Context, line string) Reply {
	switch s.mode {
	case ModeClosed:
		return Reply{Close: true}
	case ModeMultiline:
		return s.collectLine(line)
	case ModeUpload:
		return s.uploadLine(line)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return Reply{}
	}

	verb, rest := splitVerb(line)
	metrics.ObserveCommand(verb)

	switch verb {
	case "help":
		return text(helpText)
	case "register":
		return s.handleRegister(rest)
	case "login":
		return s.handleLogin(rest)
	case "quit", "exit":
		s.mode = ModeClosed
		return Reply{Text: msgGoodbye, Close: true}
	}

	handler, known := s.commands()[verb]
	if !known {
		return text(msgUnknownCommand)
	}
	if s.mode != ModeAuthenticated {
		return text(msgLoginRequired)
	}
	return handler(ctx, rest)
}

type commandFunc func(ctx context.Context, rest string) Reply

func (s *Session) commands() map[string]commandFunc {
	return map[string]commandFunc{
		"logout":   s.handleLogout,
		"users":    s.handleUsers,
		"chat":     s.handleChat,
		"post":     s.handleSend,
		"send":     s.handleSend,
		"view":     s.handleView,
		"read":     s.handleView,
		"task":     s.handleTask,
		"upload":   s.handleUpload,
		"download": s.handleDownload,
		"files":    s.handleFiles,
		"ai":       s.handleAI,
	}
}

// Disconnect tears the session down after the transport is gone: the
// session is deregistered and any pending sub-protocol is discarded.
func (s *Session) Disconnect() {
	if s.sessionID != "" {
		s.state.Logout(s.sessionID)
	}
	s.resetSubprotocol()
	s.sessionID = ""
	s.username = ""
	s.mode = ModeClosed
}

// beginMultiline switches to AWAITING_MULTILINE and returns the prompt.
func (s *Session) beginMultiline(target multilineTarget, taskID string) Reply {
	s.mode = ModeMultiline
	s.target = target
	s.taskID = taskID
	s.lines = nil

	noun := "message"
	switch target {
	case targetDescription:
		noun = "description"
	case targetSolution:
		noun = "solution"
	}
	return textf(msgMultilinePrompt, noun)
}

func (s *Session) collectLine(line string) Reply {
	if line != consts.MultilineSentinel {
		s.lines = append(s.lines, line)
		return Reply{}
	}

	body := strings.Join(s.lines, "\n")
	target, taskID := s.target, s.taskID
	s.resetSubprotocol()

	switch target {
	case targetDescription:
		if err := s.state.SetTaskDescription(taskID, body); err != nil {
			return text(msgTaskNotFound)
		}
		return text(msgDescriptionSaved)
	case targetSolution:
		if err := s.state.SetTaskSolution(taskID, body); err != nil {
			return text(msgTaskNotFound)
		}
		return text(msgSolutionSaved)
	default:
		return s.sendChat(body)
	}
}

func (s *Session) resetSubprotocol() {
	s.lines = nil
	s.taskID = ""
	s.uploadName = ""
	s.uploadSize = 0
	if s.mode == ModeMultiline || s.mode == ModeUpload {
		s.mode = ModeAuthenticated
	}
}

// splitVerb returns the lower-cased first token and the untouched rest.
func splitVerb(line string) (string, string) {
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return strings.ToLower(line), ""
	}
	return strings.ToLower(line[:i]), strings.TrimSpace(line[i:])
}
