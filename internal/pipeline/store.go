package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// TaskStore is a concurrent-safe registry of tasks.
//
// Each task entry carries its own mutex so stage-completion callbacks for
// different tasks never contend; the registry map itself is guarded by a
// read-write mutex only for entry lookup and insertion/removal.
//
// Status transitions are monotonic: pending -> processing -> {completed,
// error}. Terminal statuses are sticky; in particular an error recorded by
// one stage failure can never be overwritten by a later stage success.
//
// The store is in-process and unbounded: tasks stay until Remove is called.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*taskEntry
}

type taskEntry struct {
	mu   sync.Mutex
	task Task
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*taskEntry)}
}

// Create registers a new pending task. Fails with ErrTaskExists when the id
// is already registered.
func (s *TaskStore) Create(taskID string, brief Brief) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, taskID)
	}
	s.tasks[taskID] = &taskEntry{task: Task{
		ID:        taskID,
		Brief:     brief,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}}
	return nil
}

// entry returns the live entry for a task id.
func (s *TaskStore) entry(taskID string) (*taskEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return e, nil
}

// SetStatus advances a task's status. Transitions must follow the monotonic
// lifecycle; setting the current status again is a no-op. Illegal transitions
// return ErrConflictingState.
func (s *TaskStore) SetStatus(taskID string, status TaskStatus) error {
	return s.setStatus(taskID, status, "")
}

// Fail marks a task as terminally errored with the triggering reason. The
// first recorded reason wins.
func (s *TaskStore) Fail(taskID, reason string) error {
	return s.setStatus(taskID, StatusError, reason)
}

func (s *TaskStore) setStatus(taskID string, status TaskStatus, reason string) error {
	e, err := s.entry(taskID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.task.Status
	if current == status {
		return nil
	}
	if current.Terminal() {
		return fmt.Errorf("%w: task %s is already %s", ErrConflictingState, taskID, current)
	}
	if !validTransition(current, status) {
		return fmt.Errorf("%w: cannot move task %s from %s to %s", ErrConflictingState, taskID, current, status)
	}

	e.task.Status = status
	if status == StatusError && e.task.Reason == "" {
		e.task.Reason = reason
	}
	return nil
}

// validTransition reports whether from -> to follows the lifecycle.
func validTransition(from, to TaskStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusError
	case StatusProcessing:
		return to == StatusCompleted || to == StatusError
	}
	return false
}

// AttachResult stores the final package for a task. It is only legal once the
// task has reached a terminal status; attaching under pending or processing
// returns ErrConflictingState.
func (s *TaskStore) AttachResult(taskID string, pkg *Package) error {
	e, err := s.entry(taskID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.task.Status.Terminal() {
		return fmt.Errorf("%w: cannot attach result to %s task %s", ErrConflictingState, e.task.Status, taskID)
	}
	e.task.Result = pkg
	return nil
}

// Get returns a snapshot of a task.
func (s *TaskStore) Get(taskID string) (Task, error) {
	e, err := s.entry(taskID)
	if err != nil {
		return Task{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task, nil
}

// List returns a snapshot of all tasks ordered by creation time.
func (s *TaskStore) List() []Task {
	s.mu.RLock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		tasks = append(tasks, e.task)
		e.mu.Unlock()
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// Remove deletes a task. In-flight stage executions are not preempted; their
// late results are discarded because subsequent store calls for the removed
// id return ErrNotFound.
func (s *TaskStore) Remove(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	delete(s.tasks, taskID)
	return nil
}

// Counts summarizes tasks by status.
type Counts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Errored    int `json:"errors"`
}

// Counts returns task totals by status.
func (s *TaskStore) Counts() Counts {
	var c Counts
	for _, t := range s.List() {
		c.Total++
		switch t.Status {
		case StatusPending:
			c.Pending++
		case StatusProcessing:
			c.Processing++
		case StatusCompleted:
			c.Completed++
		case StatusError:
			c.Errored++
		}
	}
	return c
}
