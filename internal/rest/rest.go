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

// Package rest maps protocol errors onto RFC 7807 problem documents.
package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/atpproject/atp-go/atp"
)

// ContentProblemJSON is the MIME type for RFC 7807 problem documents.
const ContentProblemJSON = "application/problem+json"

// Error represents a problem detail as defined in RFC 7807.
type Error struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	TaskID    string `json:"taskId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type errorDetails struct {
	status int
	uri    string
	title  string
}

var errToDetails = map[error]errorDetails{
	atp.ErrTaskNotFound: {
		status: http.StatusNotFound,
		uri:    "https://atp-protocol.dev/errors/task-not-found",
		title:  "Task Not Found",
	},
	atp.ErrInvalidTransition: {
		status: http.StatusConflict,
		uri:    "https://atp-protocol.dev/errors/invalid-transition",
		title:  "Invalid Task State Transition",
	},
	atp.ErrTaskTerminal: {
		status: http.StatusConflict,
		uri:    "https://atp-protocol.dev/errors/task-terminal",
		title:  "Task Already Finished",
	},
	atp.ErrMalformedMessage: {
		status: http.StatusBadRequest,
		uri:    "https://atp-protocol.dev/errors/malformed-message",
		title:  "Malformed Message",
	},
	atp.ErrInvalidFilter: {
		status: http.StatusBadRequest,
		uri:    "https://atp-protocol.dev/errors/invalid-filter",
		title:  "Invalid List Filter",
	},
	atp.ErrUnsupportedOperation: {
		status: http.StatusBadRequest,
		uri:    "https://atp-protocol.dev/errors/unsupported-operation",
		title:  "Unsupported Operation",
	},
}

// ToRESTError converts an error and an [atp.TaskID] to a REST [Error].
// Unrecognized errors map to Internal Server Error.
func ToRESTError(err error, taskID atp.TaskID) *Error {
	e := &Error{
		Type:      "https://atp-protocol.dev/errors/internal-error",
		Title:     "Internal Server Error",
		Status:    http.StatusInternalServerError,
		Detail:    err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TaskID:    string(taskID),
	}

	for sentinel, details := range errToDetails {
		if errors.Is(err, sentinel) {
			e.Type = details.uri
			e.Title = details.title
			e.Status = details.status
			break
		}
	}

	return e
}
