package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
)

// Status shows what state an import run is in
type Status string

const (
	StatusPending    Status = "pending"    // queued
	StatusConverting Status = "converting" // extracting, parsing, converting
	StatusFiltering  Status = "filtering"  // applying the selection
	StatusMerging    Status = "merging"    // writing entities
	StatusCompleted  Status = "completed"  // done, may still carry warnings
	StatusFailed     Status = "failed"     // something went wrong
)

// Terminal is true for completed and failed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// next holds the only forward step allowed from each state
var next = map[Status]Status{
	StatusPending:    StatusConverting,
	StatusConverting: StatusFiltering,
	StatusFiltering:  StatusMerging,
	StatusMerging:    StatusCompleted,
}

const TypeImport = "cartridge_import"

// Task is one tracked import run
type Task struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	CourseID     string      `json:"course_id,omitempty"`
	Status       Status      `json:"status"`
	Progress     float32     `json:"progress"` // 0-100 percent done
	Message      string      `json:"message,omitempty"`
	Warnings     []string    `json:"warnings"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Result       interface{} `json:"result,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	StartedAt    time.Time   `json:"started_at,omitempty"`
	CompletedAt  time.Time   `json:"completed_at,omitempty"`
}

func (t *Task) clone() *Task {
	c := *t
	c.Warnings = append([]string{}, t.Warnings...)
	return &c
}

// Manager keeps track of all runs in memory
type Manager struct {
	tasks map[string]*Task
	mu    sync.RWMutex
	now   func() time.Time
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
}

// Create registers a pending task and returns its ID
func (m *Manager) Create(taskType, courseID string) string {
	id := uuid.New().String()
	t := &Task{
		ID:        id,
		Type:      taskType,
		CourseID:  courseID,
		Status:    StatusPending,
		Warnings:  []string{},
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.tasks[id] = t
	m.mu.Unlock()

	return id
}

// Get returns a snapshot of the task
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// List returns snapshots, newest first. An empty courseID lists everything.
func (m *Manager) List(courseID string) []*Task {
	m.mu.RLock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if courseID == "" || t.CourseID == courseID {
			out = append(out, t.clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Transition moves a task one step forward. Completing goes through Complete.
func (m *Manager) Transition(id string, to Status, progress float32, message string) error {
	if to == StatusCompleted || to == StatusFailed {
		return fmt.Errorf("%w: use Complete or Fail for %s", ErrInvalidTransition, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if next[t.Status] != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	t.Status = to
	t.Progress = progress
	t.Message = message
	if t.StartedAt.IsZero() {
		t.StartedAt = m.now()
	}
	return nil
}

// SetProgress updates progress inside the current state
func (m *Manager) SetProgress(id string, progress float32, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[id]; ok && !t.Status.Terminal() {
		t.Progress = progress
		t.Message = message
	}
}

// Complete finishes a merging task. Warnings never block completion.
func (m *Manager) Complete(id string, result interface{}, warnings []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != StatusMerging {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusCompleted)
	}

	t.Status = StatusCompleted
	t.Progress = 100
	t.Message = "Import completed"
	t.Result = result
	t.Warnings = append([]string{}, warnings...)
	t.CompletedAt = m.now()
	return nil
}

// Fail marks a task failed from any non terminal state
func (m *Manager) Fail(id, errorMessage string, warnings []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusFailed)
	}

	t.Status = StatusFailed
	t.ErrorMessage = errorMessage
	t.Warnings = append([]string{}, warnings...)
	t.CompletedAt = m.now()
	return nil
}

// CleanupOldTasks removes finished tasks older than maxAge
func (m *Manager) CleanupOldTasks(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	cleaned := 0
	for id, t := range m.tasks {
		// only finished ones, running imports stay no matter how old
		if t.Status.Terminal() && !t.CompletedAt.IsZero() && !t.CompletedAt.After(cutoff) {
			delete(m.tasks, id)
			cleaned++
		}
	}
	return cleaned
}

// CleanupRoutine runs cleanup on a schedule until ctx is done
func (m *Manager) CleanupRoutine(ctx context.Context, interval, maxAge time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cleaned := m.CleanupOldTasks(maxAge); cleaned > 0 && log != nil {
				log.Debug("cleaned up finished tasks", "count", cleaned)
			}
		}
	}
}
