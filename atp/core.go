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

// Package atp defines the core data model of the Agent Task Protocol:
// messages, parts, tasks, artifacts and the events exchanged between an
// agent and its callers.
package atp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is a string constant which represents a version of the protocol.
type ProtocolVersion string

// Version is the protocol version this module implements.
const Version ProtocolVersion = "1.0"

// TaskInfo identifies the Task an event or message belongs to.
type TaskInfo struct {
	// TaskID is an id of the task.
	TaskID TaskID
	// ContextID is an id of the interaction group the task belongs to.
	ContextID string
}

// TaskInfoProvider provides information about the Task.
type TaskInfoProvider interface {
	// TaskInfo returns information about the task.
	TaskInfo() TaskInfo
}

// TaskInfo implements TaskInfoProvider so that the struct can be passed to
// core type constructor functions.
func (ti TaskInfo) TaskInfo() TaskInfo {
	return ti
}

// Event interface is used to represent types that can be sent over a streaming connection.
type Event interface {
	TaskInfoProvider

	// EventName returns the SSE event name used when framing the event on the wire.
	EventName() string

	isEvent()
}

func (*Task) isEvent()                    {}
func (*TaskStatusUpdateEvent) isEvent()   {}
func (*TaskArtifactUpdateEvent) isEvent() {}

// MessageRole identifies the message sender.
type MessageRole string

// MessageRole constants.
const (
	// MessageRoleUser is a message sent by the caller.
	MessageRoleUser MessageRole = "USER"
	// MessageRoleAgent is a message produced by the agent.
	MessageRoleAgent MessageRole = "AGENT"
)

// NewMessageID generates a new random message identifier.
func NewMessageID() string {
	return newUUIDString()
}

// Message represents a single message in the conversation between a user and an agent.
// A Message is immutable once created; the task manager only ever appends it to history.
type Message struct {
	// ID is a unique identifier for the message, generated by the sender.
	ID string `json:"messageId"`

	// Role identifies the sender of the message.
	Role MessageRole `json:"role"`

	// Parts is an array of content parts that form the message body.
	Parts []*Part `json:"parts"`

	// ContextID groups related interactions. Empty means no context reference.
	ContextID string `json:"contextId,omitempty"`

	// TaskID is the identifier of the task this message is part of. Can be
	// omitted for the first message of a new task.
	TaskID TaskID `json:"taskId,omitempty"`

	// Timestamp records when the message was created.
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// NewMessage creates a new message with a random identifier.
func NewMessage(role MessageRole, parts ...*Part) *Message {
	return &Message{
		ID:        NewMessageID(),
		Role:      role,
		Parts:     parts,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageForTask creates a new message with a random identifier that references the provided Task.
func NewMessageForTask(role MessageRole, infoProvider TaskInfoProvider, parts ...*Part) *Message {
	info := infoProvider.TaskInfo()
	msg := NewMessage(role, parts...)
	msg.TaskID = info.TaskID
	msg.ContextID = info.ContextID
	return msg
}

// TaskInfo implements TaskInfoProvider.
func (m *Message) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: m.TaskID, ContextID: m.ContextID}
}

// Text concatenates the content of all text parts of the message.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if t := p.Text(); t != "" {
			if out != "" {
				out += " "
			}
			out += t
		}
	}
	return out
}

// TaskID is a unique identifier for the task, generated by the server for a new task.
type TaskID string

// NewTaskID generates a new random task identifier.
func NewTaskID() TaskID {
	return TaskID(newUUIDString())
}

// NewContextID generates a new random context identifier.
func NewContextID() string {
	return newUUIDString()
}

// TaskState defines a set of possible task states.
type TaskState string

const (
	// TaskStateUnspecified represents a missing TaskState value.
	TaskStateUnspecified TaskState = ""
	// TaskStateSubmitted means the task has been accepted and is awaiting execution.
	// It is the only valid initial state.
	TaskStateSubmitted TaskState = "SUBMITTED"
	// TaskStateWorking means the agent is actively working on the task.
	TaskStateWorking TaskState = "WORKING"
	// TaskStateInputRequired means the task is paused and waiting for input from the caller.
	TaskStateInputRequired TaskState = "INPUT_REQUIRED"
	// TaskStateAuthRequired means the task requires authentication to proceed.
	TaskStateAuthRequired TaskState = "AUTH_REQUIRED"
	// TaskStateCompleted means the task has been successfully completed.
	TaskStateCompleted TaskState = "COMPLETED"
	// TaskStateFailed means the task failed due to an error during execution.
	TaskStateFailed TaskState = "FAILED"
	// TaskStateCancelled means the task has been cancelled by the caller.
	TaskStateCancelled TaskState = "CANCELLED"
	// TaskStateRejected means the task was rejected by the agent and was not started.
	TaskStateRejected TaskState = "REJECTED"
)

// Terminal returns true for states in which a Task becomes immutable, i.e. no
// further status transitions or content appends are permitted.
func (ts TaskState) Terminal() bool {
	return ts == TaskStateCompleted ||
		ts == TaskStateFailed ||
		ts == TaskStateCancelled ||
		ts == TaskStateRejected
}

// Valid reports whether the value is a known task state.
func (ts TaskState) Valid() bool {
	switch ts {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateAuthRequired, TaskStateCompleted, TaskStateFailed,
		TaskStateCancelled, TaskStateRejected:
		return true
	}
	return false
}

// TaskStatus represents the status of a task at a specific point in time.
type TaskStatus struct {
	// State is the current state of the task's lifecycle.
	State TaskState `json:"state"`

	// Message is an optional, human-readable message providing more details
	// about the current status.
	Message string `json:"message,omitempty"`

	// Timestamp is a datetime indicating when this status was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Task represents a single, stateful operation or conversation between a caller and an agent.
type Task struct {
	// ID is a unique identifier for the task, generated by the server for a new task.
	ID TaskID `json:"id"`

	// ContextID groups multiple related tasks or interactions. Required to be non-empty.
	ContextID string `json:"contextId"`

	// Status is the current status of the task.
	Status TaskStatus `json:"status"`

	// History is the chronological, append-only list of messages exchanged during the task.
	History []*Message `json:"history,omitempty"`

	// Artifacts is the chronological, append-only list of artifacts generated
	// by the agent during the execution of the task.
	Artifacts []*Artifact `json:"artifacts,omitempty"`

	// Metadata is optional task metadata.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt records when the task was created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt records when the task was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSubmittedTask creates a Task in submitted state from the initial Message.
// New values are generated for task and context id when they are missing.
func NewSubmittedTask(contextID string, initialMessage *Message) *Task {
	if contextID == "" {
		contextID = NewContextID()
	}
	now := time.Now().UTC()
	return &Task{
		ID:        NewTaskID(),
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStateSubmitted, Timestamp: now},
		History:   []*Message{initialMessage},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TaskInfo implements TaskInfoProvider.
func (t *Task) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: t.ID, ContextID: t.ContextID}
}

// EventName implements Event. A full Task snapshot is emitted as the first
// event of a stream.
func (t *Task) EventName() string {
	return "taskCreated"
}

// ArtifactID is a unique identifier for the artifact within the scope of the task.
type ArtifactID string

// NewArtifactID generates a new random artifact identifier.
func NewArtifactID() ArtifactID {
	return ArtifactID(newUUIDString())
}

// Artifact represents an output produced by the agent during task execution,
// distinct from conversational messages. Immutable once appended to a Task.
type Artifact struct {
	// ID is a unique identifier for the artifact within the scope of the task.
	ID ArtifactID `json:"artifactId"`

	// Parts is an array of content parts that make up the artifact.
	Parts []*Part `json:"parts"`

	// Metadata is optional artifact metadata.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Timestamp records when the artifact was produced.
	Timestamp time.Time `json:"timestamp"`
}

// NewArtifact creates an Artifact with a random ID from the provided parts.
func NewArtifact(parts ...*Part) *Artifact {
	return &Artifact{
		ID:        NewArtifactID(),
		Parts:     parts,
		Timestamp: time.Now().UTC(),
	}
}

// TaskStatusUpdateEvent is an event sent to notify subscribers of a change in
// a task's status.
type TaskStatusUpdateEvent struct {
	// TaskID is the ID of the task that was updated.
	TaskID TaskID `json:"taskId"`

	// ContextID is the context ID associated with the task.
	ContextID string `json:"contextId,omitempty"`

	// Status is the new status of the task.
	Status TaskStatus `json:"status"`
}

// NewStatusUpdateEvent creates a TaskStatusUpdateEvent that references the provided Task.
func NewStatusUpdateEvent(infoProvider TaskInfoProvider, status TaskStatus) *TaskStatusUpdateEvent {
	info := infoProvider.TaskInfo()
	return &TaskStatusUpdateEvent{
		TaskID:    info.TaskID,
		ContextID: info.ContextID,
		Status:    status,
	}
}

// TaskInfo implements TaskInfoProvider.
func (e *TaskStatusUpdateEvent) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: e.TaskID, ContextID: e.ContextID}
}

// EventName implements Event.
func (e *TaskStatusUpdateEvent) EventName() string {
	return "taskStatus"
}

// TaskArtifactUpdateEvent is an event sent to notify subscribers that an
// artifact has been appended to a task.
type TaskArtifactUpdateEvent struct {
	// TaskID is the ID of the task this artifact belongs to.
	TaskID TaskID `json:"taskId"`

	// ContextID is the context ID associated with the task.
	ContextID string `json:"contextId,omitempty"`

	// Artifact is the artifact that was appended.
	Artifact *Artifact `json:"artifact"`
}

// NewArtifactEvent creates a TaskArtifactUpdateEvent for the provided artifact.
func NewArtifactEvent(infoProvider TaskInfoProvider, artifact *Artifact) *TaskArtifactUpdateEvent {
	info := infoProvider.TaskInfo()
	return &TaskArtifactUpdateEvent{
		TaskID:    info.TaskID,
		ContextID: info.ContextID,
		Artifact:  artifact,
	}
}

// TaskInfo implements TaskInfoProvider.
func (e *TaskArtifactUpdateEvent) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: e.TaskID, ContextID: e.ContextID}
}

// EventName implements Event.
func (e *TaskArtifactUpdateEvent) EventName() string {
	return "taskArtifact"
}

// Part is a discriminated union representing a part of a message or artifact,
// which can be text, a file reference, or structured data.
type Part struct {
	// Types that are valid to be assigned to Content are [Text], [File], [Data].
	Content PartContent `json:"content"`

	// Metadata is the optional metadata associated with this part.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartContent is a sealed discriminated type union for supported part content
// types. It exists to specify which types can be assigned to [Part.Content].
type PartContent interface {
	isPartContent()
}

func (Text) isPartContent() {}
func (File) isPartContent() {}
func (Data) isPartContent() {}

// Text represents content of a Part carrying text.
type Text string

// File represents content of a Part referencing a file by URI.
type File struct {
	// URI locates the file content.
	URI string `json:"uri"`
	// MIMEType is the media type of the file (e.g. "image/png").
	MIMEType string `json:"mimeType,omitempty"`
	// Name is an optional file name (e.g. "report.pdf").
	Name string `json:"name,omitempty"`
}

// Data represents content of a Part carrying structured data.
type Data struct {
	Value any
}

// NewTextPart creates a Part that contains text.
func NewTextPart(text string) *Part {
	return &Part{Content: Text(text)}
}

// NewFilePart creates a Part that references a file by URI.
func NewFilePart(uri, mimeType string) *Part {
	return &Part{Content: File{URI: uri, MIMEType: mimeType}}
}

// NewDataPart creates a Part that contains structured data.
func NewDataPart(data any) *Part {
	return &Part{Content: Data{Value: data}}
}

// Text is a helper that returns the text content of the part if it is a text part.
func (p *Part) Text() string {
	if v, ok := p.Content.(Text); ok {
		return string(v)
	}
	return ""
}

// File is a helper that returns the file content of the part if it is a file part.
func (p *Part) File() (File, bool) {
	v, ok := p.Content.(File)
	return v, ok
}

// Data is a helper that returns the data content of the part if it is a data part.
func (p *Part) Data() any {
	if v, ok := p.Content.(Data); ok {
		return v.Value
	}
	return nil
}

// Part type discriminator values used on the wire.
const (
	partTypeText = "text"
	partTypeFile = "file"
	partTypeData = "data"
)

// MarshalJSON flattens Content into the Part object with a "type" discriminator.
func (p Part) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)

	switch v := p.Content.(type) {
	case Text:
		m["type"] = partTypeText
		m["text"] = string(v)
	case File:
		m["type"] = partTypeFile
		m["uri"] = v.URI
		if v.MIMEType != "" {
			m["mimeType"] = v.MIMEType
		}
		if v.Name != "" {
			m["name"] = v.Name
		}
	case Data:
		m["type"] = partTypeData
		m["data"] = v.Value
	default:
		return nil, fmt.Errorf("unknown part content type: %T", v)
	}

	if p.Metadata != nil {
		m["metadata"] = p.Metadata
	}

	return json.Marshal(m)
}

// UnmarshalJSON hydrates Content from the "type" discriminator. An unknown
// part type is an error so that no content is ever silently dropped.
func (p *Part) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type     string          `json:"type"`
		Text     *string         `json:"text"`
		URI      string          `json:"uri"`
		MIMEType string          `json:"mimeType"`
		Name     string          `json:"name"`
		Data     json.RawMessage `json:"data"`
		Metadata map[string]any  `json:"metadata"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	switch raw.Type {
	case partTypeText:
		if raw.Text == nil {
			return fmt.Errorf("text part missing text field")
		}
		p.Content = Text(*raw.Text)
	case partTypeFile:
		if raw.URI == "" {
			return fmt.Errorf("file part missing uri field")
		}
		p.Content = File{URI: raw.URI, MIMEType: raw.MIMEType, Name: raw.Name}
	case partTypeData:
		if raw.Data == nil {
			return fmt.Errorf("data part missing data field")
		}
		var value any
		if err := json.Unmarshal(raw.Data, &value); err != nil {
			return err
		}
		p.Content = Data{Value: value}
	default:
		return fmt.Errorf("unknown part type %q", raw.Type)
	}

	p.Metadata = raw.Metadata
	return nil
}

// SendMessageRequest defines the request to send a message to an agent. This
// can be used to create a new task or continue an existing one.
type SendMessageRequest struct {
	// Message is the message object being sent to the agent.
	Message *Message `json:"message"`

	// ContextID optionally groups the resulting task with related interactions.
	ContextID string `json:"contextId,omitempty"`
}

// SendMessageResponse defines the response for a message send request.
type SendMessageResponse struct {
	// Task is the task created or advanced by the message.
	Task *Task `json:"task"`
}

// GetTaskRequest defines the request to fetch a task snapshot.
type GetTaskRequest struct {
	// ID is the id of the task to fetch.
	ID TaskID `json:"id"`

	// IncludeHistory controls whether the message history is returned.
	// Omitting it bounds response size.
	IncludeHistory bool `json:"includeHistory,omitempty"`
}

// GetTaskResponse defines the response for a task fetch request.
type GetTaskResponse struct {
	// Task is a snapshot of the requested task.
	Task *Task `json:"task"`
}

// CancelTaskRequest defines the request to cancel a task.
type CancelTaskRequest struct {
	// ID is the id of the task to cancel.
	ID TaskID `json:"id"`
}

// SubscribeToTaskRequest defines the request to attach to a task's event stream.
type SubscribeToTaskRequest struct {
	// ID is the id of the task to subscribe to.
	ID TaskID `json:"id"`
}

// ListTasksRequest defines the parameters for a request to list tasks.
type ListTasksRequest struct {
	// ContextID filters tasks to the provided context. Empty matches all.
	ContextID string `json:"contextId,omitempty"`

	// Status filters tasks by their current state. Empty matches all.
	Status TaskState `json:"status,omitempty"`

	// Limit is the maximum number of tasks to return. Defaults to 100.
	Limit int `json:"limit,omitempty"`

	// Offset is the number of tasks to skip.
	Offset int `json:"offset,omitempty"`
}

// ListTasksResponse defines the response for a request to list tasks.
type ListTasksResponse struct {
	// Tasks is the page of tasks matching the specified criteria, ordered by
	// creation time ascending.
	Tasks []*Task `json:"tasks"`

	// Total is the total number of tasks matching the filter before pagination.
	Total int `json:"total"`

	// HasMore indicates whether more tasks are available past the returned page.
	HasMore bool `json:"hasMore"`
}

// Time-based UUID keeps identifiers sortable by creation time.
func newUUIDString() string {
	return uuid.Must(uuid.NewV7()).String()
}
