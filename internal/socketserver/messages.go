package socketserver

import (
	"fmt"
	"strings"
)

// Greeting is written once when a connection is accepted.
const Greeting = "Welcome! Type 'help' for commands\n\n"

// Fixed replies.
const (
	msgRegistered        = "[OK] User '%s' registered"
	msgRegisterFailed    = "[ERR] Username taken or invalid"
	msgAlreadyLoggedIn   = "[ERR] Already logged in"
	msgLoggedIn          = "[OK] Logged in as '%s' (session %s)"
	msgInvalidCreds      = "[ERR] Invalid credentials"
	msgLoginRequired     = "[ERR] Please login first"
	msgLoggedOut         = "[OK] Logged out"
	msgGoodbye           = "Goodbye!"
	msgUnknownCommand    = "[ERR] Unknown command. Type 'help' for commands"
	msgInternalError     = "[ERR] Internal error"
	msgMessageSent       = "[OK] Message sent"
	msgEmptyMessage      = "[ERR] Empty message"
	msgNoMessages        = "No messages yet"
	msgUnknownChatAction = "[ERR] Unknown chat action"
	msgTaskCreated       = "[OK] Task created: %s"
	msgTitleRequired     = "[ERR] Title required"
	msgNoTasks           = "No tasks yet"
	msgTaskNotFound      = "[ERR] Task not found"
	msgInvalidStatus     = "[ERR] Status must be: pending, in_progress, or solved"
	msgStatusChanged     = "[OK] Status changed to '%s'"
	msgTaskDeleted       = "[OK] Task deleted"
	msgUnknownTaskAction = "[ERR] Unknown task action"
	msgDescriptionSaved  = "[OK] Description saved"
	msgSolutionSaved     = "[OK] Solution saved"
	msgMultilinePrompt   = "Enter %s (type 'END' on new line to finish):"
	msgFilenamePrompt    = "Enter filename:"
	msgSizePrompt        = "Enter file size (bytes):"
	msgPayloadPrompt     = "Ready to receive %d bytes (base64)"
	msgUploaded          = "[OK] File '%s' uploaded (%d bytes)"
	msgInvalidFilename   = "[ERR] Invalid filename"
	msgInvalidFileSize   = "[ERR] Invalid file size"
	msgInvalidFileData   = "[ERR] Invalid file data"
	msgUploadTimedOut    = "[ERR] Upload timed out"
	msgSending           = "[OK] Sending '%s' (%d bytes)\n%s"
	msgFileNotFound      = "[ERR] File not found"
	msgNoFiles           = "No files yet"
	msgAICleared         = "[OK] AI chat history cleared"
	msgAIUnavailable     = "[ERR] AI backend is not available"
	msgAIReply           = "AI: %s"
)

// Usage lines.
const (
	usageRegister = "Usage: register <username> <password>"
	usageLogin    = "Usage: login <username> <password>"
	usageChat     = "Usage: chat send <message> | chat view [count]"
	usageTask     = "Usage: task create <title> | task view <id> | task list | task status <id> <status>"
	usageTaskID   = "Usage: task <action> <task_id>"
	usageAI       = "Usage: ai <message> | ai clear"
	usageDownload = "Usage: download <filename>"
)

const separator = "============================================================"

const helpText = `========================================
      Messenger with Tasks & AI
========================================

AUTHENTICATION:
  register <username> <password>  - register new account
  login <username> <password>     - login to your account
  logout                          - logout

CHAT (after login):
  chat send <message>             - send message to chat
  chat send                       - send multi-line message (end with 'END')
  chat view                       - view recent messages
  chat view <count>               - view last N messages
  post|send [message]             - shorthand for chat send
  view|read [count]               - shorthand for chat view

TASKS (after login):
  task create <title>             - create new task
  task add-desc <task_id>         - add description (multiline, end with 'END')
  task add-sol <task_id>          - add solution (multiline, end with 'END')
  task list                       - list all tasks
  task view <task_id>             - view task details
  task status <task_id> <status>  - change status (pending/in_progress/solved)
  task delete <task_id>           - delete task

FILES (after login):
  upload                          - upload a file (guided)
  download <filename>             - download a file
  files                           - list shared files

AI CHAT (after login):
  ai <message>                    - chat with AI
  ai clear                        - clear AI chat history

OTHER:
  users                           - list online users
  help                            - show this help
  quit                            - exit`

// framed wraps body lines between separator lines, the way every listing
// is rendered.
func framed(title string, body []string) string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(separator + "\n")
	sb.WriteString(title + "\n")
	sb.WriteString(separator + "\n")
	for _, line := range body {
		sb.WriteString(line + "\n")
	}
	sb.WriteString(separator)
	return sb.String()
}

func textf(format string, args ...interface{}) Reply {
	return Reply{Text: fmt.Sprintf(format, args...)}
}

func text(s string) Reply {
	return Reply{Text: s}
}
