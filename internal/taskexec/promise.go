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

package taskexec

import (
	"context"
	"sync"

	"github.com/atpproject/atp-go/atp"
)

// promise is a single-assignment result container. The producer sets a value
// or an error exactly once; waiters block until then.
type promise struct {
	once sync.Once
	done chan struct{}

	value *atp.Task
	err   error
}

func newPromise() *promise {
	return &promise{done: make(chan struct{})}
}

func (p *promise) setValue(task *atp.Task) {
	p.once.Do(func() {
		p.value = task
		close(p.done)
	})
}

func (p *promise) setError(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// wait blocks until the promise resolves or the context is done.
func (p *promise) wait(ctx context.Context) (*atp.Task, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.value, p.err
	}
}
