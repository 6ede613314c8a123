package state

import "github.com/codefionn/chatd/internal/store"

// AIHistory returns a copy of the last limit turns of username's history.
// A limit below 1 returns nothing.
func (s *State) AIHistory(username string, limit int) []AITurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 1 {
		return nil
	}
	turns := s.ai[username]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]AITurn, len(turns))
	copy(out, turns)
	return out
}

// AppendAIExchange records a completed exchange. Both turns are appended
// together so the history keeps alternating.
func (s *State) AppendAIExchange(username, prompt, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ai[username] = append(s.ai[username],
		AITurn{Role: RoleUser, Content: prompt},
		AITurn{Role: RoleAssistant, Content: answer},
	)
	s.persist(store.TableAIChat)
}

// AppendAIPrompt records a user turn whose request produced no answer.
func (s *State) AppendAIPrompt(username, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ai[username] = append(s.ai[username], AITurn{Role: RoleUser, Content: prompt})
	s.persist(store.TableAIChat)
}

// ClearAI empties username's history.
func (s *State) ClearAI(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ai[username] = []AITurn{}
	s.persist(store.TableAIChat)
}
