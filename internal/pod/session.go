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

package pod

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/gate"
)

// State is the phase of a pod as seen through its watch.
type State string

const (
	StatePending   State = "Pending"
	StateRunning   State = "Running"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
	// StateDeleted means the pod was deleted while being watched.
	StateDeleted State = "Deleted"
	// StateWatchClosed means the watch ended before the pod finished.
	StateWatchClosed State = "WatchClosed"
)

// Terminal reports whether no further transition is expected.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateDeleted, StateWatchClosed:
		return true
	}
	return false
}

// Session is a created pod together with its liveness flag, the gates
// released when it starts and finishes, and the streams opened against it.
type Session struct {
	Name      string
	Namespace string

	// Started is released once the pod runs, or when watching it ends.
	Started *gate.Gate
	// Finished is released once the pod terminated, was deleted or its
	// watch ended.
	Finished *gate.Gate

	alive      atomic.Bool
	state      atomic.Value
	onComplete func()
	completed  atomic.Bool
	resources  *Resources
}

func newSession(name, namespace string) *Session {
	s := &Session{
		Name:      name,
		Namespace: namespace,
		Started:   gate.New(),
		Finished:  gate.New(),
		resources: &Resources{},
	}
	s.state.Store(StatePending)
	return s
}

// Alive reports whether the pod is running.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// State returns the last observed state.
func (s *Session) State() State {
	return s.state.Load().(State)
}

// Track registers c to be closed with the session. When the session is
// already closed c is closed right away and Track returns false.
func (s *Session) Track(c io.Closer) bool {
	return s.resources.Add(c)
}

// complete runs the completion callback at most once. A panicking callback
// is logged.
func (s *Session) complete(ctx context.Context) {
	if s.onComplete == nil || !s.completed.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.FromContext(ctx).Info("pod completion callback panicked", "pod", s.Name, "panic", r)
		}
	}()
	s.onComplete()
}

// Resources are the closeable streams of a session. They are closed together
// exactly once.
type Resources struct {
	mu      sync.Mutex
	closers []io.Closer
	drained bool
}

// Add tracks c. After Drain it closes c immediately and returns false.
func (r *Resources) Add(c io.Closer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drained {
		_ = c.Close()
		return false
	}
	r.closers = append(r.closers, c)
	return true
}

// Drain closes every tracked closer. Only the first call does anything; it
// reports whether it was that call.
func (r *Resources) Drain(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drained {
		return false
	}
	r.drained = true
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			log.FromContext(ctx).V(1).Info("failed to close pod stream", "error", err.Error())
		}
	}
	r.closers = nil
	return true
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
