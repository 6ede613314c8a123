package socketserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/chatd/internal/state"
)

func (s *Session) handleTask(ctx context.Context, rest string) Reply {
	if rest == "" {
		return text(usageTask)
	}
	action, arg := splitVerb(rest)

	switch action {
	case "create":
		return s.taskCreate(arg)
	case "list":
		return s.taskList()
	case "view", "add-desc", "add-sol", "status", "delete":
	default:
		return text(msgUnknownTaskAction)
	}

	args := strings.Fields(arg)
	if len(args) == 0 {
		return text(usageTaskID)
	}
	id := args[0]

	switch action {
	case "view":
		return s.taskView(id)
	case "add-desc":
		if !s.state.HasTask(id) {
			return text(msgTaskNotFound)
		}
		return s.beginMultiline(targetDescription, id)
	case "add-sol":
		if !s.state.HasTask(id) {
			return text(msgTaskNotFound)
		}
		return s.beginMultiline(targetSolution, id)
	case "status":
		value := ""
		if len(args) > 1 {
			value = args[1]
		}
		return s.taskStatus(id, value)
	default:
		if err := s.state.DeleteTask(id); err != nil {
			return text(msgTaskNotFound)
		}
		log.Info("user %s deleted task %s", s.username, id)
		return text(msgTaskDeleted)
	}
}

func (s *Session) taskCreate(title string) Reply {
	task, err := s.state.CreateTask(title, s.username)
	if errors.Is(err, state.ErrTitleRequired) {
		return text(msgTitleRequired)
	}
	if err != nil {
		log.Error("create task for %s: %v", s.username, err)
		return text(msgInternalError)
	}
	log.Info("user %s created task %s", s.username, task.ID)
	return textf(msgTaskCreated, task.ID)
}

func (s *Session) taskList() Reply {
	tasks := s.state.ListTasks()
	if len(tasks) == 0 {
		return text(msgNoTasks)
	}

	body := make([]string, 0, 2*len(tasks))
	for _, t := range tasks {
		body = append(body,
			fmt.Sprintf("[%s] %s (%s)", t.ID, t.Title, t.Status),
			fmt.Sprintf("         by %s - %s", t.CreatedBy, t.CreatedAt),
		)
	}
	return text(framed(fmt.Sprintf("Tasks (%d total):", len(tasks)), body))
}

func (s *Session) taskView(id string) Reply {
	t, err := s.state.GetTask(id)
	if err != nil {
		return text(msgTaskNotFound)
	}

	return text(framed("Task: "+t.ID, []string{
		"Title:       " + t.Title,
		"Status:      " + string(t.Status),
		"Created by:  " + t.CreatedBy,
		"Created at:  " + t.CreatedAt,
		"",
		"Description:",
		orNone(t.Description),
		"",
		"Solution:",
		orNone(t.Solution),
	}))
}

func (s *Session) taskStatus(id, value string) Reply {
	status, err := s.state.SetTaskStatus(id, value)
	switch {
	case errors.Is(err, state.ErrInvalidStatus):
		return text(msgInvalidStatus)
	case err != nil:
		return text(msgTaskNotFound)
	}
	return textf(msgStatusChanged, status)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
