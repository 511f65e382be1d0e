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

// Package utils holds small internal helpers shared across server packages.
package utils

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// DeepCopy returns a deep copy of the provided value using gob round-tripping.
// Concrete types stored behind interface fields must be gob-registered by the
// owning package.
func DeepCopy[T any](src *T) (*T, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(src); err != nil {
		return nil, fmt.Errorf("deep copy encode failed: %w", err)
	}
	dst := new(T)
	if err := gob.NewDecoder(&buf).Decode(dst); err != nil {
		return nil, fmt.Errorf("deep copy decode failed: %w", err)
	}
	return dst, nil
}
