// Package tasks owns the canonical quest collection and enforces the quest
// lifecycle: open -> assigned -> pending_verification -> completed, with
// rejection back to assigned and cancellation from any status.
//
// Every mutation is written through the Store first; the in-memory record is
// replaced only after the write succeeded, so a failed write leaves the
// collection untouched. The accepted, pending and completed views are derived
// from the canonical collection by status on read.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fetchquest/backend/internal/metrics"
	"github.com/fetchquest/backend/internal/models"
	"github.com/fetchquest/backend/internal/rewards"
)

// Store is the persistence collaborator for quest documents.
// Put must reject the write with ErrConflict when the stored version differs
// from expectedVersion; expectedVersion 0 means the document must not exist.
type Store interface {
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context) ([]*models.Task, error)
	Put(ctx context.Context, t *models.Task, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

// Manager is the quest lifecycle service. Construct one per process and pass
// it to the handlers that need it.
type Manager struct {
	store Store
	log   *slog.Logger
	now   func() time.Time

	// writeMu serialises mutations, including their store round trip.
	writeMu sync.Mutex
	// mu guards tasks; held only for the in-memory swap.
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

// NewManager returns an empty Manager. Call Load to warm it from the store.
func NewManager(store Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store: store,
		log:   log,
		now:   time.Now,
		tasks: make(map[string]*models.Task),
	}
}

// Load replaces the in-memory collection with the store's contents.
func (m *Manager) Load(ctx context.Context) error {
	list, err := m.store.List(ctx)
	if err != nil {
		return &PersistenceError{Op: "load tasks", Err: err}
	}
	loaded := make(map[string]*models.Task, len(list))
	for _, t := range list {
		loaded[t.ID] = t.Clone()
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	m.tasks = loaded
	m.mu.Unlock()
	m.log.Info("tasks loaded", "count", len(loaded))
	return nil
}

// Reload refreshes a single quest from the store. A quest the store no
// longer has is dropped from memory.
func (m *Manager) Reload(ctx context.Context, id string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	t, err := m.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		m.mu.Lock()
		delete(m.tasks, id)
		m.mu.Unlock()
		m.log.Info("task dropped on reload", "task_id", id)
		return nil
	case err != nil:
		return &PersistenceError{Op: "reload task", Err: err}
	}
	m.swap(t.Clone())
	m.log.Info("task reloaded", "task_id", id, "version", t.Version)
	return nil
}

// Create inserts a new open quest. Rarity and points are stamped from the
// quest's price, urgency, complexity and time required.
func (m *Manager) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := t.Clone()
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	if _, ok := m.lookup(next.ID); ok {
		metrics.TaskTransition(ctx, "create", ErrAlreadyExists)
		return nil, ErrAlreadyExists
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = m.now()
	}
	next.Status = models.TaskStatusOpen
	next.AssigneeID = nil
	next.CompletedAt = nil
	next.Feedback = nil
	next.SubmissionCount = 0
	next.Rarity = rewards.TaskRarity(next)
	next.Points = rewards.PointsForRarity(next.Rarity)
	next.Version = 1

	if err := m.store.Put(ctx, next, 0); err != nil {
		metrics.TaskTransition(ctx, "create", err)
		return nil, &PersistenceError{Op: "create task", Err: err}
	}
	m.swap(next)
	metrics.TaskTransition(ctx, "create", nil)
	m.log.Info("task created", "task_id", next.ID, "requester_id", next.RequesterID, "rarity", next.Rarity)
	return next.Clone(), nil
}

// Update merges patch into the quest. Status and subset membership are never
// changed here. Unknown ids are a no-op.
func (m *Manager) Update(ctx context.Context, id string, patch models.TaskPatch) error {
	_, err := m.mutate(ctx, "update", id, func(t *models.Task) error {
		applyPatch(t, patch)
		t.Rarity = rewards.TaskRarity(t)
		t.Points = rewards.PointsForRarity(t.Rarity)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Delete removes the quest from the canonical collection. Unknown ids are a no-op.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if _, ok := m.lookup(id); !ok {
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil {
		metrics.TaskTransition(ctx, "delete", err)
		return &PersistenceError{Op: "delete task", Err: err}
	}
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
	metrics.TaskTransition(ctx, "delete", nil)
	m.log.Info("task deleted", "task_id", id)
	return nil
}

// Accept assigns an open quest to userID.
func (m *Manager) Accept(ctx context.Context, id, userID string) (*models.Task, error) {
	return m.mutate(ctx, "accept", id, func(t *models.Task) error {
		if t.Status != models.TaskStatusOpen {
			return &InvalidStateError{Reason: ReasonNotAvailable}
		}
		t.Status = models.TaskStatusAssigned
		t.AssigneeID = &userID
		t.CompletedAt = nil
		return nil
	})
}

// SubmitCompletion moves an assigned quest to pending verification, appends
// the proof images and bumps SubmissionCount.
func (m *Manager) SubmitCompletion(ctx context.Context, id string, images []string) (*models.Task, error) {
	return m.mutate(ctx, "submit", id, func(t *models.Task) error {
		if t.Status != models.TaskStatusAssigned {
			return &InvalidStateError{Reason: ReasonNotInProgress}
		}
		now := m.now()
		t.Status = models.TaskStatusPendingVerification
		t.Images = append(t.Images, images...)
		t.CompletedAt = &now
		t.SubmissionCount++
		return nil
	})
}

// VerifyCompletion approves (completed) or rejects (back to assigned) a quest
// pending verification. A non-nil feedback is stored with the current time.
func (m *Manager) VerifyCompletion(ctx context.Context, id string, approved bool, feedback *string) (*models.Task, error) {
	return m.mutate(ctx, "verify", id, func(t *models.Task) error {
		if t.Status != models.TaskStatusPendingVerification {
			return &InvalidStateError{Reason: ReasonNotPendingVerification}
		}
		now := m.now()
		if approved {
			t.Status = models.TaskStatusCompleted
			t.CompletedAt = &now
		} else {
			t.Status = models.TaskStatusAssigned
			t.CompletedAt = nil
		}
		if feedback != nil {
			t.Feedback = &models.Feedback{Comment: *feedback, Timestamp: now}
		}
		return nil
	})
}

// Cancel cancels a quest in any status. Cancelling twice is not an error.
// The assignee is kept on the record.
func (m *Manager) Cancel(ctx context.Context, id string) (*models.Task, error) {
	return m.mutate(ctx, "cancel", id, func(t *models.Task) error {
		t.Status = models.TaskStatusCancelled
		t.CompletedAt = nil
		return nil
	})
}

// Get returns a copy of the quest.
func (m *Manager) Get(id string) (*models.Task, error) {
	t, ok := m.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// List returns copies of all quests, newest first.
func (m *Manager) List() []*models.Task {
	return m.filter(func(*models.Task) bool { return true })
}

// ListByStatus returns copies of the quests in the given status, newest first.
func (m *Manager) ListByStatus(status models.TaskStatus) []*models.Task {
	return m.filter(func(t *models.Task) bool { return t.Status == status })
}

// Accepted returns the quests currently assigned.
func (m *Manager) Accepted() []*models.Task {
	return m.ListByStatus(models.TaskStatusAssigned)
}

// PendingVerification returns the quests awaiting the requester's verdict.
func (m *Manager) PendingVerification() []*models.Task {
	return m.ListByStatus(models.TaskStatusPendingVerification)
}

// Completed returns the approved quests.
func (m *Manager) Completed() []*models.Task {
	return m.ListByStatus(models.TaskStatusCompleted)
}

func (m *Manager) mutate(ctx context.Context, op, id string, apply func(t *models.Task) error) (*models.Task, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur, ok := m.lookup(id)
	if !ok {
		metrics.TaskTransition(ctx, op, ErrNotFound)
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := apply(next); err != nil {
		metrics.TaskTransition(ctx, op, err)
		return nil, err
	}
	next.Version = cur.Version + 1

	if err := m.store.Put(ctx, next, cur.Version); err != nil {
		metrics.TaskTransition(ctx, op, err)
		m.log.Error("task write failed", "op", op, "task_id", id, "error", err)
		return nil, &PersistenceError{Op: op + " task", Err: err}
	}
	m.swap(next)
	metrics.TaskTransition(ctx, op, nil)
	m.log.Info("task updated", "op", op, "task_id", id, "status", next.Status)
	return next.Clone(), nil
}

func (m *Manager) lookup(id string) (*models.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

func (m *Manager) swap(t *models.Task) {
	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()
}

func (m *Manager) filter(keep func(*models.Task) bool) []*models.Task {
	m.mu.RLock()
	out := make([]*models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func applyPatch(t *models.Task, p models.TaskPatch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Price != nil {
		t.Price = *p.Price
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.Urgent != nil {
		t.Urgent = *p.Urgent
	}
	if p.Complexity != nil {
		t.Complexity = *p.Complexity
	}
	if p.TimeRequired != nil {
		t.TimeRequired = *p.TimeRequired
	}
	if p.Images != nil {
		t.Images = append([]string(nil), p.Images...)
	}
}
