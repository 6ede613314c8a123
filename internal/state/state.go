// Package state holds the server's authoritative in-memory tables.
//
// Every exported method of State is one critical section under a single
// mutex. Mutations write the affected table through the store before the
// lock is released; a failed write is logged and the in-memory change
// stands.
package state

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codefionn/chatd/internal/consts"
	"github.com/codefionn/chatd/internal/logger"
	"github.com/codefionn/chatd/internal/metrics"
	"github.com/codefionn/chatd/internal/secrets"
	"github.com/codefionn/chatd/internal/store"
)

var log = logger.Named("state")

// Options configures a State.
type Options struct {
	// Store persists the tables. Nil keeps everything in memory.
	Store *store.Store
	// FilesDir holds uploaded files.
	FilesDir string
	// Hasher derives password digests. Zero value means secrets.DefaultHasher.
	Hasher secrets.PasswordHasher
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
	// NewTaskID returns a candidate task id. Nil means a truncated uuid.
	NewTaskID func() string
}

// State owns accounts, chat, tasks, AI histories, live sessions and the
// shared files directory.
type State struct {
	mu sync.Mutex

	store     *store.Store
	filesDir  string
	hasher    secrets.PasswordHasher
	now       func() time.Time
	newTaskID func() string

	// Digest checked when the username is unknown so that login takes the
	// same time either way.
	dummyDigest string

	accounts  map[string]Account
	chat      []ChatMessage
	tasks     map[string]Task
	taskOrder []string
	ai        map[string][]AITurn
	sessions  map[string]SessionInfo
}

// New builds a State and loads every table from opts.Store. A missing or
// corrupt table starts empty.
func New(opts Options) (*State, error) {
	s := &State{
		store:     opts.Store,
		filesDir:  opts.FilesDir,
		hasher:    opts.Hasher,
		now:       opts.Now,
		newTaskID: opts.NewTaskID,
		accounts:  make(map[string]Account),
		tasks:     make(map[string]Task),
		ai:        make(map[string][]AITurn),
		sessions:  make(map[string]SessionInfo),
	}
	if s.hasher == (secrets.PasswordHasher{}) {
		s.hasher = secrets.DefaultHasher
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newTaskID == nil {
		s.newTaskID = func() string { return uuid.NewString()[:consts.TaskIDLength] }
	}

	if s.filesDir != "" {
		if err := os.MkdirAll(s.filesDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create files directory: %w", err)
		}
	}

	dummy, err := s.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to derive dummy digest: %w", err)
	}
	s.dummyDigest = dummy

	s.load()
	return s, nil
}

func (s *State) load() {
	if s.store == nil {
		return
	}

	var accounts map[string]Account
	if s.get(store.TableAccounts, &accounts) {
		for name, acc := range accounts {
			acc.Username = name
			s.accounts[name] = acc
		}
	}

	var chat []ChatMessage
	if s.get(store.TableChat, &chat) {
		s.chat = chat
	}

	var tasks map[string]Task
	if s.get(store.TableTasks, &tasks) {
		for id, task := range tasks {
			task.ID = id
			s.tasks[id] = task
			s.taskOrder = append(s.taskOrder, id)
		}
		sort.Slice(s.taskOrder, func(i, j int) bool {
			a, b := s.tasks[s.taskOrder[i]], s.tasks[s.taskOrder[j]]
			if a.CreatedAt != b.CreatedAt {
				return a.CreatedAt < b.CreatedAt
			}
			return a.ID < b.ID
		})
	}

	var ai map[string][]AITurn
	if s.get(store.TableAIChat, &ai) {
		for name, turns := range ai {
			s.ai[name] = turns
		}
	}

	log.Info("loaded %d accounts, %d messages, %d tasks, %d AI histories",
		len(s.accounts), len(s.chat), len(s.tasks), len(s.ai))
}

func (s *State) get(table store.Table, v any) bool {
	err := s.store.Get(table, v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound):
		log.Debug("no stored %s table, starting empty", table)
	default:
		log.Warn("could not load %s table, starting empty: %v", table, err)
	}
	return false
}

// persist must be called with mu held.
func (s *State) persist(table store.Table) {
	if s.store == nil {
		return
	}

	var v any
	switch table {
	case store.TableAccounts:
		v = s.accounts
	case store.TableChat:
		v = s.chat
	case store.TableTasks:
		v = s.tasks
	case store.TableAIChat:
		v = s.ai
	}

	if _, err := s.store.Put(table, v); err != nil {
		log.Error("failed to persist %s: %v", table, err)
		metrics.PersistFailures.WithLabelValues(string(table)).Inc()
	}
}

func (s *State) timestamp() string {
	return s.now().Format(TimeLayout)
}
