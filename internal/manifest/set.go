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

package manifest

import (
	"cmp"
	"slices"
)

// kindPriority orders kinds that others depend on first. Unlisted kinds share
// the default priority.
var kindPriority = map[string]int{
	"SecurityContextConstraints": 0,
	"Namespace":                  1,
	"Project":                    1,
	"ProjectRequest":             1,
	"Secret":                     2,
	"ServiceAccount":             3,
	"PersistentVolume":           4,
	"PersistentVolumeClaim":      5,
	"ConfigMap":                  6,
	"Service":                    7,
	"Route":                      8,
}

const defaultKindPriority = 100

func priority(kind string) int {
	if p, ok := kindPriority[kind]; ok {
		return p
	}
	return defaultKindPriority
}

// Compare orders entities by kind priority, kind, namespace and name. Two
// entities comparing equal describe the same resource.
func Compare(a, b Entity) int {
	ka, kb := a.KindName(), b.KindName()
	return cmp.Or(
		cmp.Compare(priority(ka), priority(kb)),
		cmp.Compare(ka, kb),
		cmp.Compare(a.Namespace(), b.Namespace()),
		cmp.Compare(a.Name(), b.Name()),
	)
}

// Set keeps entities in Compare order. The first entity added for a resource
// wins; later duplicates are dropped.
type Set struct {
	items []Entity
}

// NewSet returns a set holding entities.
func NewSet(entities ...Entity) *Set {
	s := &Set{}
	for _, e := range entities {
		s.Add(e)
	}
	return s
}

// Add inserts e and reports whether it was new.
func (s *Set) Add(e Entity) bool {
	i, found := slices.BinarySearchFunc(s.items, e, Compare)
	if found {
		return false
	}
	s.items = slices.Insert(s.items, i, e)
	return true
}

// Items returns the entities in order. The slice is a copy; the objects are not.
func (s *Set) Items() []Entity {
	return slices.Clone(s.items)
}

// Len returns the number of entities
func (s *Set) Len() int {
	return len(s.items)
}
