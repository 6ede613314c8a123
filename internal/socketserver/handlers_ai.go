package socketserver

import (
	"context"
	"errors"
	"strings"

	"github.com/codefionn/chatd/internal/llm"
)

func (s *Session) handleAI(ctx context.Context, rest string) Reply {
	if rest == "" {
		return text(usageAI)
	}
	if strings.EqualFold(rest, "clear") {
		s.state.ClearAI(s.username)
		return text(msgAICleared)
	}
	if s.ai == nil || !s.ai.Available() {
		return text(msgAIUnavailable)
	}

	history := s.state.AIHistory(s.username, s.limits.AIHistoryWindow-1)
	turns := make([]llm.Turn, 0, len(history)+1)
	for _, h := range history {
		turns = append(turns, llm.Turn{Role: h.Role, Content: h.Content})
	}
	turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: rest})

	answer, err := s.ai.Generate(ctx, turns)
	if errors.Is(err, llm.ErrUnavailable) {
		return text(msgAIUnavailable)
	}
	if err != nil {
		s.state.AppendAIPrompt(s.username, rest)
		return textf(msgAIReply, err.Error())
	}

	s.state.AppendAIExchange(s.username, rest, answer)
	log.Info("user %s sent AI message", s.username)
	return textf(msgAIReply, answer)
}
