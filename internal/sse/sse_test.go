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

package sse

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteEventFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	writer.WriteHeaders()
	if err := writer.WriteEvent(context.Background(), "taskStatus", []byte(`{"state":"WORKING"}`)); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != ContentEventStream {
		t.Errorf("Content-Type = %q, want %q", got, ContentEventStream)
	}
	want := "event: taskStatus\ndata: {\"state\":\"WORKING\"}\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("frame = %q, want %q", got, want)
	}
}

func TestParseEventStreamRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	ctx := context.Background()
	if err := writer.WriteEvent(ctx, "taskCreated", []byte(`{"id":"t1"}`)); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := writer.WriteKeepAlive(ctx); err != nil {
		t.Fatalf("WriteKeepAlive: %v", err)
	}
	if err := writer.WriteEvent(ctx, "taskStatus", []byte(`{"state":"COMPLETED"}`)); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	var names []string
	var payloads []string
	for event, err := range ParseEventStream(rec.Body) {
		if err != nil {
			t.Fatalf("ParseEventStream: %v", err)
		}
		names = append(names, event.Name)
		payloads = append(payloads, string(event.Data))
	}

	// The keep-alive comment must not surface as an event.
	if diff := cmp.Diff([]string{"taskCreated", "taskStatus"}, names); diff != "" {
		t.Errorf("event names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{`{"id":"t1"}`, `{"state":"COMPLETED"}`}, payloads); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEventStreamUnnamedData(t *testing.T) {
	body := strings.NewReader("data: {\"a\":1}\n\n")

	var events []StreamEvent
	for event, err := range ParseEventStream(body) {
		if err != nil {
			t.Fatalf("ParseEventStream: %v", err)
		}
		events = append(events, event)
	}

	if len(events) != 1 || events[0].Name != "" || string(events[0].Data) != `{"a":1}` {
		t.Errorf("events = %+v, want single unnamed data event", events)
	}
}
