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
	"fmt"

	"github.com/atpproject/atp-go/atp"
)

// transitions is the task lifecycle table. A state maps to the set of states
// reachable from it. Terminal states have no entries.
var transitions = map[atp.TaskState]map[atp.TaskState]bool{
	atp.TaskStateSubmitted: {
		atp.TaskStateWorking:   true,
		atp.TaskStateCancelled: true,
		atp.TaskStateFailed:    true,
		atp.TaskStateRejected:  true,
	},
	atp.TaskStateWorking: {
		atp.TaskStateCompleted:     true,
		atp.TaskStateInputRequired: true,
		atp.TaskStateAuthRequired:  true,
		atp.TaskStateCancelled:     true,
		atp.TaskStateFailed:        true,
	},
	atp.TaskStateInputRequired: {
		atp.TaskStateWorking:   true,
		atp.TaskStateCancelled: true,
		atp.TaskStateFailed:    true,
	},
	atp.TaskStateAuthRequired: {
		atp.TaskStateWorking:   true,
		atp.TaskStateCancelled: true,
		atp.TaskStateFailed:    true,
	},
}

// validateTransition checks that moving from the current state to the target
// state is permitted. Mutations of terminal tasks fail with ErrTaskTerminal,
// unreachable targets with ErrInvalidTransition.
func validateTransition(from, to atp.TaskState) error {
	if from.Terminal() {
		return fmt.Errorf("%w: task state is %s", atp.ErrTaskTerminal, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: unknown state %q", atp.ErrInvalidTransition, to)
	}
	if !transitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", atp.ErrInvalidTransition, from, to)
	}
	return nil
}
