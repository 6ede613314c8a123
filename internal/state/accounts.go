package state

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/codefionn/chatd/internal/metrics"
	"github.com/codefionn/chatd/internal/secrets"
	"github.com/codefionn/chatd/internal/store"
)

// Register creates an account. The digest is derived before the lock is
// taken; the uniqueness check and insert happen under it.
func (s *State) Register(username, password string) error {
	if err := ValidateCredentials(username, password); err != nil {
		return err
	}

	s.mu.Lock()
	_, exists := s.accounts[username]
	s.mu.Unlock()
	if exists {
		return ErrUserExists
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[username]; exists {
		return ErrUserExists
	}
	s.accounts[username] = Account{
		Username:     username,
		PasswordHash: digest,
		CreatedAt:    s.timestamp(),
	}
	s.persist(store.TableAccounts)

	log.Info("registered user %s", username)
	return nil
}

// Login checks the password and registers a new session. Unknown users and
// wrong passwords both return ErrInvalidCredentials after one digest
// derivation.
func (s *State) Login(username, password, remoteAddr string) (SessionInfo, error) {
	s.mu.Lock()
	acc, known := s.accounts[username]
	s.mu.Unlock()

	digest := acc.PasswordHash
	if !known {
		digest = s.dummyDigest
	}

	ok, err := secrets.VerifyPassword(digest, password)
	if err != nil {
		log.Warn("stored digest for %s is unreadable: %v", username, err)
	}
	if !known || !ok {
		return SessionInfo{}, ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	for _, taken := s.sessions[id]; taken; _, taken = s.sessions[id] {
		id = uuid.NewString()
	}
	info := SessionInfo{
		ID:         id,
		Username:   username,
		RemoteAddr: remoteAddr,
		LoginAt:    s.now(),
	}
	s.sessions[id] = info
	metrics.SessionsActive.Set(float64(len(s.sessions)))

	log.Info("user %s logged in from %s (session %s)", username, remoteAddr, id)
	return info, nil
}

// Logout removes a session. Unknown ids are ignored.
func (s *State) Logout(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(s.sessions, sessionID)
	metrics.SessionsActive.Set(float64(len(s.sessions)))
	log.Info("user %s logged out (session %s)", info.Username, sessionID)
}

// OnlineUsers returns the distinct usernames of live sessions, sorted.
func (s *State) OnlineUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(s.sessions))
	users := make([]string, 0, len(s.sessions))
	for _, info := range s.sessions {
		if !seen[info.Username] {
			seen[info.Username] = true
			users = append(users, info.Username)
		}
	}
	sort.Strings(users)
	return users
}

// SessionCount returns the number of live sessions.
func (s *State) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
