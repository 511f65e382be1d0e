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

package atp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPartJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		part *Part
		want string
	}{
		{
			name: "text",
			part: NewTextPart("hello"),
			want: `{"text":"hello","type":"text"}`,
		},
		{
			name: "file",
			part: NewFilePart("https://example.com/report.pdf", "application/pdf"),
			want: `{"mimeType":"application/pdf","type":"file","uri":"https://example.com/report.pdf"}`,
		},
		{
			name: "data",
			part: NewDataPart(map[string]any{"a": "b"}),
			want: `{"data":{"a":"b"},"type":"data"}`,
		},
		{
			name: "metadata",
			part: &Part{Content: Text("x"), Metadata: map[string]any{"k": "v"}},
			want: `{"metadata":{"k":"v"},"text":"x","type":"text"}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.part)
			if err != nil {
				t.Fatalf("Marshal() failed: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("Marshal() = %s, want %s", got, tc.want)
			}

			decoded := &Part{}
			if err := json.Unmarshal(got, decoded); err != nil {
				t.Fatalf("Unmarshal(%s) failed: %v", got, err)
			}
			if diff := cmp.Diff(tc.part, decoded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPartUnmarshalRejectsUnknownType(t *testing.T) {
	p := &Part{}
	err := json.Unmarshal([]byte(`{"type":"video","uri":"x"}`), p)
	if err == nil {
		t.Fatal("Unmarshal() succeeded, want error for unknown part type")
	}
	if !strings.Contains(err.Error(), "video") {
		t.Errorf("Unmarshal() error = %v, want mention of the unknown type", err)
	}
}

func TestPartUnmarshalRejectsMissingContent(t *testing.T) {
	for _, raw := range []string{
		`{"type":"text"}`,
		`{"type":"file"}`,
		`{"type":"data"}`,
	} {
		if err := json.Unmarshal([]byte(raw), &Part{}); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", raw)
		}
	}
}

func TestNewSubmittedTask(t *testing.T) {
	msg := NewMessage(MessageRoleUser, NewTextPart("do the thing"))
	task := NewSubmittedTask("", msg)

	if task.ID == "" {
		t.Error("NewSubmittedTask() produced empty task id")
	}
	if task.ContextID == "" {
		t.Error("NewSubmittedTask() produced empty context id")
	}
	if got := task.Status.State; got != TaskStateSubmitted {
		t.Errorf("Status.State = %q, want %q", got, TaskStateSubmitted)
	}
	if task.Status.Timestamp.IsZero() {
		t.Error("Status.Timestamp is zero")
	}
	if !task.CreatedAt.Equal(task.UpdatedAt) {
		t.Errorf("CreatedAt = %v, UpdatedAt = %v, want equal at creation", task.CreatedAt, task.UpdatedAt)
	}
	if diff := cmp.Diff([]*Message{msg}, task.History); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}
}

func TestNewSubmittedTaskKeepsContextID(t *testing.T) {
	task := NewSubmittedTask("ctx-1", NewMessage(MessageRoleUser))
	if task.ContextID != "ctx-1" {
		t.Errorf("ContextID = %q, want %q", task.ContextID, "ctx-1")
	}
}

func TestTaskStateTerminal(t *testing.T) {
	terminal := []TaskState{TaskStateCompleted, TaskStateFailed, TaskStateCancelled, TaskStateRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%q.Terminal() = false, want true", s)
		}
	}
	active := []TaskState{TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired, TaskStateAuthRequired}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%q.Terminal() = true, want false", s)
		}
	}
}

func TestEventNames(t *testing.T) {
	task := NewSubmittedTask("", NewMessage(MessageRoleUser))
	tests := []struct {
		event Event
		want  string
	}{
		{task, "taskCreated"},
		{NewStatusUpdateEvent(task, task.Status), "taskStatus"},
		{NewArtifactEvent(task, NewArtifact(NewTextPart("out"))), "taskArtifact"},
	}
	for _, tc := range tests {
		if got := tc.event.EventName(); got != tc.want {
			t.Errorf("EventName() = %q, want %q", got, tc.want)
		}
	}
}

func TestMessageText(t *testing.T) {
	msg := NewMessage(MessageRoleUser,
		NewTextPart("first"),
		NewDataPart(map[string]any{"k": 1}),
		NewTextPart("second"),
	)
	if got, want := msg.Text(), "first second"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestNewMessageForTask(t *testing.T) {
	task := NewSubmittedTask("ctx-7", NewMessage(MessageRoleUser))
	msg := NewMessageForTask(MessageRoleAgent, task, NewTextPart("done"))
	if msg.TaskID != task.ID {
		t.Errorf("TaskID = %q, want %q", msg.TaskID, task.ID)
	}
	if msg.ContextID != task.ContextID {
		t.Errorf("ContextID = %q, want %q", msg.ContextID, task.ContextID)
	}
	if msg.Role != MessageRoleAgent {
		t.Errorf("Role = %q, want %q", msg.Role, MessageRoleAgent)
	}
}
