// Copyright 2025 The ATP Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package taskstore implements the task manager: the sole owner of task state,
// enforcing the task lifecycle and serializing all mutations per task.
package taskstore

import (
	"context"
	"encoding/gob"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/atpproject/atp-go/atp"
	"github.com/atpproject/atp-go/internal/utils"
)

// DefaultListLimit is the page size used when a list request does not specify one.
const DefaultListLimit = 100

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(atp.Text(""))
	gob.Register(atp.File{})
	gob.Register(atp.Data{})
	gob.Register("")
	gob.Register(float64(0))
	gob.Register(0)
	gob.Register(false)
}

// Publisher receives exactly one event per successful task mutation, invoked
// while the task's entry lock is held so per-task event order matches mutation
// order. Implementations must not call back into the Manager.
type Publisher interface {
	// Publish delivers a mutation event to subscribers.
	Publish(ctx context.Context, event atp.Event)

	// Finish signals that the task reached a terminal state and no further
	// events will be published for it.
	Finish(ctx context.Context, taskID atp.TaskID)
}

// ManagerConfig is a configuration for [Manager].
type ManagerConfig struct {
	// Publisher is notified of every task mutation. Optional.
	Publisher Publisher

	// TimeProvider overrides the clock, used in tests. Optional.
	TimeProvider func() time.Time
}

// entry holds a stored task plus its per-task mutation lock. seq records
// creation order for stable listing.
type entry struct {
	mu   sync.Mutex
	task *atp.Task
	seq  uint64
}

// Manager stores tasks in memory and is the only component permitted to
// mutate them. All reads and writes go through deep-copied snapshots, so
// callers can never alias internal state.
//
// Retention is unbounded: tasks live until process shutdown. Eviction is an
// open extension point for deployments that need it.
type Manager struct {
	mu      sync.RWMutex
	tasks   map[atp.TaskID]*entry
	nextSeq uint64

	config ManagerConfig
}

// NewManager creates an empty task manager.
func NewManager(config *ManagerConfig) *Manager {
	m := &Manager{tasks: make(map[atp.TaskID]*entry)}
	if config != nil {
		m.config = *config
	}
	if m.config.TimeProvider == nil {
		m.config.TimeProvider = func() time.Time { return time.Now().UTC() }
	}
	return m
}

// Create allocates a new task in submitted state. A missing contextID is
// generated. The initial message, when provided, seeds the task history.
func (m *Manager) Create(ctx context.Context, contextID string, initialMessage *atp.Message, metadata map[string]any) (*atp.Task, error) {
	if initialMessage != nil {
		if err := validateMessage(initialMessage); err != nil {
			return nil, err
		}
	}

	task := atp.NewSubmittedTask(contextID, nil)
	now := m.config.TimeProvider()
	task.History = nil
	task.Status.Timestamp = now
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Metadata = metadata

	if initialMessage != nil {
		msg, err := utils.DeepCopy(initialMessage)
		if err != nil {
			return nil, err
		}
		msg.TaskID = task.ID
		msg.ContextID = task.ContextID
		task.History = []*atp.Message{msg}
	}

	e := &entry{task: task}
	e.mu.Lock()
	defer e.mu.Unlock()

	m.mu.Lock()
	e.seq = m.nextSeq
	m.nextSeq++
	m.tasks[task.ID] = e
	m.mu.Unlock()

	snapshot, err := utils.DeepCopy(task)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, snapshot)
	return snapshot, nil
}

// UpdateStatus validates and applies a status transition. The status timestamp
// is monotonically non-decreasing within a task.
func (m *Manager) UpdateStatus(ctx context.Context, taskID atp.TaskID, state atp.TaskState, message string) (*atp.Task, error) {
	var snapshot *atp.Task
	err := m.withEntry(taskID, func(e *entry) error {
		if err := validateTransition(e.task.Status.State, state); err != nil {
			return err
		}

		now := m.config.TimeProvider()
		if now.Before(e.task.Status.Timestamp) {
			now = e.task.Status.Timestamp
		}
		e.task.Status = atp.TaskStatus{State: state, Message: message, Timestamp: now}
		e.task.UpdatedAt = now

		copy, err := utils.DeepCopy(e.task)
		if err != nil {
			return err
		}
		snapshot = copy

		m.publish(ctx, atp.NewStatusUpdateEvent(snapshot, snapshot.Status))
		if state.Terminal() {
			m.finish(ctx, taskID)
		}
		return nil
	})
	return snapshot, err
}

// AppendMessage appends a message to the task history. Rejected on terminal tasks.
func (m *Manager) AppendMessage(ctx context.Context, taskID atp.TaskID, message *atp.Message) (*atp.Task, error) {
	if err := validateMessage(message); err != nil {
		return nil, err
	}

	var snapshot *atp.Task
	err := m.withEntry(taskID, func(e *entry) error {
		if e.task.Status.State.Terminal() {
			return fmt.Errorf("%w: task state is %s", atp.ErrTaskTerminal, e.task.Status.State)
		}

		msg, err := utils.DeepCopy(message)
		if err != nil {
			return err
		}
		msg.TaskID = e.task.ID
		msg.ContextID = e.task.ContextID

		e.task.History = append(e.task.History, msg)
		e.task.UpdatedAt = m.config.TimeProvider()

		snapshot, err = utils.DeepCopy(e.task)
		return err
	})
	return snapshot, err
}

// AppendArtifact appends an artifact to the task. Artifact order is append
// order. Rejected on terminal tasks.
func (m *Manager) AppendArtifact(ctx context.Context, taskID atp.TaskID, artifact *atp.Artifact) (*atp.Task, error) {
	if artifact == nil || len(artifact.Parts) == 0 {
		return nil, fmt.Errorf("%w: artifact must contain at least one part", atp.ErrMalformedMessage)
	}

	var snapshot *atp.Task
	err := m.withEntry(taskID, func(e *entry) error {
		if e.task.Status.State.Terminal() {
			return fmt.Errorf("%w: task state is %s", atp.ErrTaskTerminal, e.task.Status.State)
		}

		copy, err := utils.DeepCopy(artifact)
		if err != nil {
			return err
		}
		if copy.ID == "" {
			copy.ID = atp.NewArtifactID()
		}
		if copy.Timestamp.IsZero() {
			copy.Timestamp = m.config.TimeProvider()
		}

		e.task.Artifacts = append(e.task.Artifacts, copy)
		e.task.UpdatedAt = m.config.TimeProvider()

		snapshot, err = utils.DeepCopy(e.task)
		if err != nil {
			return err
		}
		m.publish(ctx, atp.NewArtifactEvent(snapshot, snapshot.Artifacts[len(snapshot.Artifacts)-1]))
		return nil
	})
	return snapshot, err
}

// Get returns a snapshot of the task. includeHistory=false omits the history
// field to bound response size.
func (m *Manager) Get(ctx context.Context, taskID atp.TaskID, includeHistory bool) (*atp.Task, error) {
	var snapshot *atp.Task
	err := m.withEntry(taskID, func(e *entry) error {
		copy, err := utils.DeepCopy(e.task)
		if err != nil {
			return err
		}
		snapshot = copy
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !includeHistory {
		snapshot.History = nil
	}
	return snapshot, nil
}

// List filters and paginates task snapshots, ordered by creation time
// ascending for reproducible pagination. History is omitted from list results.
func (m *Manager) List(ctx context.Context, req *atp.ListTasksRequest) (*atp.ListTasksResponse, error) {
	if req == nil {
		req = &atp.ListTasksRequest{}
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative, got %d", atp.ErrInvalidFilter, req.Limit)
	}
	if req.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative, got %d", atp.ErrInvalidFilter, req.Offset)
	}
	if req.Status != atp.TaskStateUnspecified && !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", atp.ErrInvalidFilter, req.Status)
	}

	limit := req.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	entries := make([]*entry, 0, len(m.tasks))
	for _, e := range m.tasks {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	slices.SortFunc(entries, func(a, b *entry) int {
		return int(a.seq) - int(b.seq)
	})

	var filtered []*atp.Task
	for _, e := range entries {
		e.mu.Lock()
		task := e.task
		match := (req.ContextID == "" || task.ContextID == req.ContextID) &&
			(req.Status == atp.TaskStateUnspecified || task.Status.State == req.Status)
		var copy *atp.Task
		var err error
		if match {
			copy, err = utils.DeepCopy(task)
		}
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if copy != nil {
			copy.History = nil
			filtered = append(filtered, copy)
		}
	}

	total := len(filtered)
	start := min(req.Offset, total)
	end := min(start+limit, total)

	return &atp.ListTasksResponse{
		Tasks:   filtered[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// Complete transitions the task to the completed state.
func (m *Manager) Complete(ctx context.Context, taskID atp.TaskID, message string) (*atp.Task, error) {
	return m.UpdateStatus(ctx, taskID, atp.TaskStateCompleted, message)
}

// Fail transitions the task to the failed state with the failure reason
// recorded in the status message.
func (m *Manager) Fail(ctx context.Context, taskID atp.TaskID, reason string) (*atp.Task, error) {
	return m.UpdateStatus(ctx, taskID, atp.TaskStateFailed, reason)
}

// Cancel transitions the task to the cancelled state.
func (m *Manager) Cancel(ctx context.Context, taskID atp.TaskID) (*atp.Task, error) {
	return m.UpdateStatus(ctx, taskID, atp.TaskStateCancelled, "")
}

func (m *Manager) withEntry(taskID atp.TaskID, fn func(*entry) error) error {
	m.mu.RLock()
	e, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", atp.ErrTaskNotFound, taskID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e)
}

func (m *Manager) publish(ctx context.Context, event atp.Event) {
	if m.config.Publisher != nil {
		m.config.Publisher.Publish(ctx, event)
	}
}

func (m *Manager) finish(ctx context.Context, taskID atp.TaskID) {
	if m.config.Publisher != nil {
		m.config.Publisher.Finish(ctx, taskID)
	}
}

func validateMessage(message *atp.Message) error {
	if message == nil {
		return fmt.Errorf("%w: message is required", atp.ErrMalformedMessage)
	}
	if len(message.Parts) == 0 {
		return fmt.Errorf("%w: message must contain at least one part", atp.ErrMalformedMessage)
	}
	if message.Role != atp.MessageRoleUser && message.Role != atp.MessageRoleAgent {
		return fmt.Errorf("%w: unknown role %q", atp.ErrMalformedMessage, message.Role)
	}
	return nil
}
