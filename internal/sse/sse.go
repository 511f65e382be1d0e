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

// Package sse implements Server-Sent Events framing for task event streams.
package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

const (
	// ContentEventStream is the MIME type for Server-Sent Events.
	ContentEventStream = "text/event-stream"

	sseEventPrefix = "event:"
	sseDataPrefix  = "data:"

	// MaxSSETokenSize is the maximum size for SSE data lines (10MB).
	// The default bufio.Scanner buffer of 64KB is insufficient for large payloads.
	MaxSSETokenSize = 10 * 1024 * 1024
)

// Writer wraps http.ResponseWriter to provide SSE writing capabilities.
type Writer struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewWriter creates a new [Writer]. Fails if the underlying ResponseWriter
// does not support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &Writer{writer: w, flusher: flusher}, nil
}

// WriteHeaders writes the standard SSE headers.
func (w *Writer) WriteHeaders() {
	header := w.writer.Header()
	header.Set("Content-Type", ContentEventStream)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.writer.WriteHeader(http.StatusOK)
}

// WriteKeepAlive writes an SSE comment to keep the connection alive.
func (w *Writer) WriteKeepAlive(ctx context.Context) error {
	if _, err := w.writer.Write([]byte(": keep-alive\n\n")); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// WriteEvent writes a named event block and flushes it to the client.
func (w *Writer) WriteEvent(ctx context.Context, name string, data []byte) error {
	if _, err := fmt.Fprintf(w.writer, "%s %s\n", sseEventPrefix, name); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.writer, "%s %s\n\n", sseDataPrefix, data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// StreamEvent is a single parsed event from an SSE stream.
type StreamEvent struct {
	// Name is the event name, empty for unnamed data-only events.
	Name string
	// Data is the raw payload of the event's data line.
	Data []byte
}

// ParseEventStream returns an iterator over the events in an SSE stream.
// Comments and unknown fields are skipped.
func ParseEventStream(body io.Reader) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		scanner := bufio.NewScanner(body)
		buf := make([]byte, 0, bufio.MaxScanTokenSize)
		scanner.Buffer(buf, MaxSSETokenSize)

		var current StreamEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, sseEventPrefix):
				current.Name = strings.TrimSpace(line[len(sseEventPrefix):])
			case strings.HasPrefix(line, sseDataPrefix):
				data := line[len(sseDataPrefix):]
				if len(data) > 0 && data[0] == ' ' {
					data = data[1:]
				}
				current.Data = []byte(data)
			case line == "":
				if current.Data != nil || current.Name != "" {
					if !yield(current, nil) {
						return
					}
					current = StreamEvent{}
				}
			}
		}
		if current.Data != nil || current.Name != "" {
			if !yield(current, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(StreamEvent{}, fmt.Errorf("SSE stream error: %w", err))
		}
	}
}
