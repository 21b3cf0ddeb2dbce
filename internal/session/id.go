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

package session

import (
	"strings"
	"time"

	utilrand "k8s.io/apimachinery/pkg/util/rand"

	"github.com/mikelane/kubepipe/internal/namespace"
)

const (
	idCharacters = "bcdfghjklmnpqrstvwxz0123456789"
	idLength     = 5

	// DefaultPrefix names generated namespaces when neither a name nor a
	// prefix is given and no enclosing step set one.
	DefaultPrefix = "temp"
)

// Session identifies one run of a step.
type Session struct {
	ID        string
	Namespace string
	CreatedAt time.Time
}

// GenerateID returns a random session id.
func GenerateID() string {
	var b strings.Builder
	b.Grow(idLength)
	for range idLength {
		b.WriteByte(idCharacters[utilrand.Intn(len(idCharacters))])
	}
	return b.String()
}

// NamespaceFor picks the session namespace: the explicit name, else
// prefix-id, else the namespace of the enclosing step, else temp-id.
func NamespaceFor(name, prefix, id string, stack namespace.Stack) string {
	switch {
	case name != "":
		return name
	case prefix != "":
		return prefix + "-" + id
	}
	if stack != nil {
		if current, ok := stack.Current(); ok && current != "" {
			return current
		}
	}
	return DefaultPrefix + "-" + id
}

// namespaceProvided reports whether the namespace was chosen by the user or
// an enclosing step rather than generated.
func namespaceProvided(name string, stack namespace.Stack) bool {
	if name != "" {
		return true
	}
	if stack == nil {
		return false
	}
	current, ok := stack.Current()
	return ok && current != ""
}
