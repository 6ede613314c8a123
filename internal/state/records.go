package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codefionn/chatd/internal/consts"
)

// TimeLayout is how every stored and rendered timestamp is formatted.
const TimeLayout = "2006-01-02 15:04:05"

var (
	ErrUserExists         = errors.New("username already taken")
	ErrInvalidAccount     = errors.New("username or password too short")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTaskNotFound       = errors.New("task not found")
	ErrInvalidStatus      = errors.New("invalid task status")
	ErrTitleRequired      = errors.New("task title required")
	ErrInvalidFilename    = errors.New("invalid filename")
	ErrFileNotFound       = errors.New("file not found")
	ErrEmptyMessage       = errors.New("empty message")
)

// Account is a registered user. Username is the key of the accounts table
// and is not repeated in the stored record.
type Account struct {
	Username     string `json:"-"`
	PasswordHash string `json:"password"`
	CreatedAt    string `json:"created_at"`
}

// ValidateCredentials applies the registration length rules. Lengths count
// characters, not bytes.
func ValidateCredentials(username, password string) error {
	if utf8.RuneCountInString(username) < consts.MinUsernameLength ||
		utf8.RuneCountInString(password) < consts.MinPasswordLength {
		return ErrInvalidAccount
	}
	return nil
}

// SessionInfo is one authenticated connection.
type SessionInfo struct {
	ID         string
	Username   string
	RemoteAddr string
	LoginAt    time.Time
}

// ChatMessage is one entry of the shared chat log.
type ChatMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
	Time string `json:"time"`
}

// Status is the state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSolved     Status = "solved"
)

// ParseStatus accepts exactly one of the three status names.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusSolved:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Task is an entry of the shared task board.
type Task struct {
	ID          string `json:"-"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
	Status      Status `json:"status"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

// NewTask builds a pending task with empty description and solution.
func NewTask(id, title, createdBy string, now time.Time) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, ErrTitleRequired
	}
	return Task{
		ID:        id,
		Title:     title,
		Status:    StatusPending,
		CreatedBy: createdBy,
		CreatedAt: now.Format(TimeLayout),
	}, nil
}

// AI conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AITurn is one entry of a per-account AI conversation.
type AITurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FileInfo describes a shared file.
type FileInfo struct {
	Name     string
	Size     int64
	Checksum uint64
}

// ValidateFilename rejects names that could leave the files directory and
// names reserved for in-progress uploads.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidFilename
	}
	if strings.HasPrefix(name, tempFilePrefix) {
		return ErrInvalidFilename
	}
	return nil
}
