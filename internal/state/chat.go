package state

import "github.com/codefionn/chatd/internal/store"

// AppendChat adds a message to the chat log.
func (s *State) AppendChat(from, text string) (ChatMessage, error) {
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ChatMessage{From: from, Text: text, Time: s.timestamp()}
	s.chat = append(s.chat, msg)
	s.persist(store.TableChat)
	return msg, nil
}

// RecentChat returns a copy of the last n messages in append order.
func (s *State) RecentChat(n int) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if n >= 0 && n < len(s.chat) {
		start = len(s.chat) - n
	}
	out := make([]ChatMessage, len(s.chat)-start)
	copy(out, s.chat[start:])
	return out
}

// ChatLen returns the number of messages ever appended.
func (s *State) ChatLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chat)
}
