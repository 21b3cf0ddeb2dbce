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

// Package manifest turns JSON or YAML manifests into an ordered set of
// typed cluster resources.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

// ParseError reports a manifest that is empty, null or cannot be decoded.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot load manifest: %s: %v", e.Reason, e.Err)
	}
	return "cannot load manifest: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load decodes every resource in data. Text starting with '{' is read as one
// JSON document, anything else as a stream of YAML documents. List kinds are
// flattened into their items.
func Load(data []byte) ([]*unstructured.Unstructured, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Reason: "manifest is empty"}
	}

	var docs [][]byte
	if trimmed[0] == '{' {
		docs = [][]byte{trimmed}
	} else {
		var err error
		if docs, err = splitYAML(trimmed); err != nil {
			return nil, err
		}
	}

	var out []*unstructured.Unstructured
	for i, doc := range docs {
		objs, err := decode(doc)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("document %d", i+1), Err: err}
		}
		out = append(out, objs...)
	}
	if len(out) == 0 {
		return nil, &ParseError{Reason: "manifest has no resources"}
	}
	return out, nil
}

// Parse loads data and returns its resources as an ordered Set.
func Parse(data []byte) (*Set, error) {
	objs, err := Load(data)
	if err != nil {
		return nil, err
	}
	set := NewSet()
	for _, u := range objs {
		e, err := FromUnstructured(u)
		if err != nil {
			return nil, &ParseError{Reason: "invalid resource", Err: err}
		}
		set.Add(e)
	}
	return set, nil
}

// splitYAML converts each YAML document to JSON, dropping documents that are
// empty or null.
func splitYAML(data []byte) ([][]byte, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))
	var docs [][]byte
	for {
		raw, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Reason: "invalid YAML", Err: err}
		}
		js, err := yaml.YAMLToJSON(raw)
		if err != nil {
			return nil, &ParseError{Reason: "invalid YAML", Err: err}
		}
		if t := bytes.TrimSpace(js); len(t) == 0 || bytes.Equal(t, []byte("null")) {
			continue
		}
		docs = append(docs, js)
	}
	if len(docs) == 0 {
		return nil, &ParseError{Reason: "manifest root document is null"}
	}
	return docs, nil
}

func decode(doc []byte) ([]*unstructured.Unstructured, error) {
	obj, err := runtime.Decode(unstructured.UnstructuredJSONScheme, doc)
	if err != nil {
		return nil, err
	}
	switch o := obj.(type) {
	case *unstructured.Unstructured:
		return []*unstructured.Unstructured{o}, nil
	case *unstructured.UnstructuredList:
		var out []*unstructured.Unstructured
		for i := range o.Items {
			item := &o.Items[i]
			if item.IsList() {
				nested, err := decodeNested(item)
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
				continue
			}
			out = append(out, item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected object %T", obj)
	}
}

func decodeNested(item *unstructured.Unstructured) ([]*unstructured.Unstructured, error) {
	js, err := item.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return decode(js)
}
