package state

import (
	"errors"
	"slices"

	"github.com/codefionn/chatd/internal/store"
)

// Bound on id regeneration; with random ids a second attempt is already
// vanishingly rare.
const maxTaskIDAttempts = 32

var errTaskIDSpace = errors.New("could not allocate a unique task id")

// CreateTask adds a pending task and returns it.
func (s *State) CreateTask(title, createdBy string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ""
	for i := 0; i < maxTaskIDAttempts; i++ {
		candidate := s.newTaskID()
		if _, taken := s.tasks[candidate]; !taken {
			id = candidate
			break
		}
	}
	if id == "" {
		return Task{}, errTaskIDSpace
	}

	task, err := NewTask(id, title, createdBy, s.now())
	if err != nil {
		return Task{}, err
	}
	s.tasks[id] = task
	s.taskOrder = append(s.taskOrder, id)
	s.persist(store.TableTasks)

	log.Debug("task %s created by %s", id, createdBy)
	return task, nil
}

// ListTasks returns every task in creation order.
func (s *State) ListTasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		out = append(out, s.tasks[id])
	}
	return out
}

// GetTask returns a copy of one task.
func (s *State) GetTask(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return task, nil
}

// HasTask reports whether id exists.
func (s *State) HasTask(id string) bool {
	_, err := s.GetTask(id)
	return err == nil
}

// SetTaskDescription replaces a task's description.
func (s *State) SetTaskDescription(id, text string) error {
	return s.updateTask(id, func(t *Task) { t.Description = text })
}

// SetTaskSolution replaces a task's solution.
func (s *State) SetTaskSolution(id, text string) error {
	return s.updateTask(id, func(t *Task) { t.Solution = text })
}

// SetTaskStatus validates value and applies it. An invalid value leaves the
// task untouched.
func (s *State) SetTaskStatus(id, value string) (Status, error) {
	status, err := ParseStatus(value)
	if err != nil {
		return "", err
	}
	return status, s.updateTask(id, func(t *Task) { t.Status = status })
}

func (s *State) updateTask(id string, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	fn(&task)
	s.tasks[id] = task
	s.persist(store.TableTasks)
	return nil
}

// DeleteTask removes a task.
func (s *State) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	if i := slices.Index(s.taskOrder, id); i >= 0 {
		s.taskOrder = slices.Delete(s.taskOrder, i, i+1)
	}
	s.persist(store.TableTasks)
	return nil
}
