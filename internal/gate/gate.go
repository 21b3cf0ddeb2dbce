// Copyright 2025 The Kubepipe Authors
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

// Package gate provides a one-shot latch that callers block on until an
// asynchronous event has happened.
package gate

import (
	"context"
	"sync"
)

// Gate is released at most once and never un-releases. The zero value is not
// usable; create one with New.
type Gate struct {
	once sync.Once
	done chan struct{}
}

// New returns an unreleased gate.
func New() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Release opens the gate. It reports true only for the call that actually
// released it.
func (g *Gate) Release() bool {
	released := false
	g.once.Do(func() {
		close(g.done)
		released = true
	})
	return released
}

// Done returns a channel that is closed once the gate is released.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Released reports whether the gate has been released.
func (g *Gate) Released() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate is released or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
