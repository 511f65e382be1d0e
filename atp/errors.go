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

import "errors"

// Protocol errors. Transports map these onto their own error surface, e.g.
// the REST binding renders them as RFC 7807 problem documents.
var (
	// ErrTaskNotFound indicates the referenced task id does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition indicates the requested status change is not
	// permitted by the task lifecycle.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrTaskTerminal indicates a mutation was attempted on a task that has
	// reached a terminal state.
	ErrTaskTerminal = errors.New("task is in a terminal state")

	// ErrMalformedMessage indicates the incoming message failed validation.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidFilter indicates a task list request carried an invalid
	// filter or pagination parameter.
	ErrInvalidFilter = errors.New("invalid list filter")

	// ErrUnsupportedOperation indicates the operation is not supported by this agent.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInternal indicates an unexpected server-side failure.
	ErrInternal = errors.New("internal error")
)
