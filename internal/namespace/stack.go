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

package namespace

import "sync"

// Stack tracks the namespaces of enclosing steps so that nested steps can
// find the current namespace without naming it again. The host owns the
// stack; kubepipe only pushes and pops.
type Stack interface {
	Push(name string)
	Pop() (string, bool)
	Current() (string, bool)
}

// BuildStack is an in-memory Stack for one build.
type BuildStack struct {
	mu    sync.Mutex
	names []string
}

// NewBuildStack returns an empty stack.
func NewBuildStack() *BuildStack {
	return &BuildStack{}
}

func (s *BuildStack) Push(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
}

func (s *BuildStack) Pop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.names) == 0 {
		return "", false
	}
	last := s.names[len(s.names)-1]
	s.names = s.names[:len(s.names)-1]
	return last, true
}

func (s *BuildStack) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.names) == 0 {
		return "", false
	}
	return s.names[len(s.names)-1], true
}
