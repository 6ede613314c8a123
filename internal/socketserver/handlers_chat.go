package socketserver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

func (s *Session) handleChat(ctx context.Context, rest string) Reply {
	if rest == "" {
		return text(usageChat)
	}
	action, arg := splitVerb(rest)

	switch action {
	case "send":
		return s.handleSend(ctx, arg)
	case "view":
		return s.handleView(ctx, arg)
	default:
		return text(msgUnknownChatAction)
	}
}

// handleSend posts rest, or opens a multi-line body when rest is empty.
func (s *Session) handleSend(ctx context.Context, rest string) Reply {
	if rest == "" {
		return s.beginMultiline(targetChat, "")
	}
	return s.sendChat(rest)
}

func (s *Session) sendChat(body string) Reply {
	if strings.TrimSpace(body) == "" {
		return text(msgEmptyMessage)
	}
	if _, err := s.state.AppendChat(s.username, body); err != nil {
		return text(msgEmptyMessage)
	}
	log.Info("user %s sent chat message", s.username)
	return text(msgMessageSent)
}

func (s *Session) handleView(ctx context.Context, rest string) Reply {
	count := s.viewCount(rest)

	msgs := s.state.RecentChat(count)
	if len(msgs) == 0 {
		return text(msgNoMessages)
	}

	body := make([]string, 0, 2*len(msgs))
	for i, msg := range msgs {
		body = append(body,
			fmt.Sprintf("[%d] %s (%s)", i+1, msg.From, msg.Time),
			"    "+msg.Text,
		)
	}
	return text(framed(fmt.Sprintf("Chat (%d messages):", len(msgs)), body))
}

// viewCount parses the optional count. Missing, non-numeric and values
// below 1 all fall back to the default window.
func (s *Session) viewCount(arg string) int {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return s.limits.ChatViewDefault
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return s.limits.ChatViewDefault
	}
	return n
}
