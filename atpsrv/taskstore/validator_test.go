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

package taskstore

import (
	"errors"
	"testing"

	"github.com/atpproject/atp-go/atp"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to atp.TaskState
		wantErr  error
	}{
		{atp.TaskStateSubmitted, atp.TaskStateWorking, nil},
		{atp.TaskStateSubmitted, atp.TaskStateRejected, nil},
		{atp.TaskStateSubmitted, atp.TaskStateCancelled, nil},
		{atp.TaskStateSubmitted, atp.TaskStateCompleted, atp.ErrInvalidTransition},
		{atp.TaskStateSubmitted, atp.TaskStateInputRequired, atp.ErrInvalidTransition},
		{atp.TaskStateWorking, atp.TaskStateCompleted, nil},
		{atp.TaskStateWorking, atp.TaskStateInputRequired, nil},
		{atp.TaskStateWorking, atp.TaskStateAuthRequired, nil},
		{atp.TaskStateWorking, atp.TaskStateFailed, nil},
		{atp.TaskStateWorking, atp.TaskStateSubmitted, atp.ErrInvalidTransition},
		{atp.TaskStateWorking, atp.TaskStateRejected, atp.ErrInvalidTransition},
		{atp.TaskStateInputRequired, atp.TaskStateWorking, nil},
		{atp.TaskStateInputRequired, atp.TaskStateCompleted, atp.ErrInvalidTransition},
		{atp.TaskStateAuthRequired, atp.TaskStateWorking, nil},
		{atp.TaskStateAuthRequired, atp.TaskStateCancelled, nil},
		{atp.TaskStateCompleted, atp.TaskStateWorking, atp.ErrTaskTerminal},
		{atp.TaskStateFailed, atp.TaskStateWorking, atp.ErrTaskTerminal},
		{atp.TaskStateCancelled, atp.TaskStateCancelled, atp.ErrTaskTerminal},
		{atp.TaskStateRejected, atp.TaskStateWorking, atp.ErrTaskTerminal},
		{atp.TaskStateWorking, "PAUSED", atp.ErrInvalidTransition},
	}
	for _, tc := range tests {
		err := validateTransition(tc.from, tc.to)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("validateTransition(%s, %s) = %v, want %v", tc.from, tc.to, err, tc.wantErr)
		}
	}
}
