package socketserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/chatd/internal/state"
)

func (s *Session) handleRegister(rest string) Reply {
	if s.mode != ModeUnauthenticated {
		return text(msgAlreadyLoggedIn)
	}
	args := strings.Fields(rest)
	if len(args) < 2 {
		return text(usageRegister)
	}
	username, password := args[0], args[1]

	if err := s.state.Register(username, password); err != nil {
		if !errors.Is(err, state.ErrUserExists) && !errors.Is(err, state.ErrInvalidAccount) {
			log.Error("register %s from %s: %v", username, s.remote, err)
			return text(msgInternalError)
		}
		return text(msgRegisterFailed)
	}
	return textf(msgRegistered, username)
}

func (s *Session) handleLogin(rest string) Reply {
	if s.mode != ModeUnauthenticated {
		return text(msgAlreadyLoggedIn)
	}
	args := strings.Fields(rest)
	if len(args) < 2 {
		return text(usageLogin)
	}
	username, password := args[0], args[1]

	info, err := s.state.Login(username, password, s.remote)
	if err != nil {
		log.Info("failed login for %s from %s", username, s.remote)
		return text(msgInvalidCreds)
	}

	s.sessionID = info.ID
	s.username = info.Username
	s.mode = ModeAuthenticated
	return textf(msgLoggedIn, info.Username, info.ID)
}

func (s *Session) handleLogout(ctx context.Context, rest string) Reply {
	s.state.Logout(s.sessionID)
	s.sessionID = ""
	s.username = ""
	s.mode = ModeUnauthenticated
	return text(msgLoggedOut)
}

func (s *Session) handleUsers(ctx context.Context, rest string) Reply {
	users := s.state.OnlineUsers()

	lines := make([]string, 0, len(users)+1)
	lines = append(lines, fmt.Sprintf("Online users (%d):", len(users)))
	for _, name := range users {
		if name == s.username {
			name += " (you)"
		}
		lines = append(lines, "  - "+name)
	}
	return text(strings.Join(lines, "\n"))
}
