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

package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed stepoptions.schema.json
var stepOptionsSchema string

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("stepoptions.schema.json", stepOptionsSchema)
})

// LoadStepOptions reads step options from a YAML or JSON file.
func LoadStepOptions(path string) (StepOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StepOptions{}, fmt.Errorf("failed to read step options %s: %w", path, err)
	}
	opts, err := ParseStepOptions(data)
	if err != nil {
		return StepOptions{}, fmt.Errorf("invalid step options %s: %w", path, err)
	}
	return opts, nil
}

// ParseStepOptions validates data against the step options schema and
// decodes it. An empty document yields zero options.
func ParseStepOptions(data []byte) (StepOptions, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return StepOptions{}, fmt.Errorf("failed to parse: %w", err)
	}
	if doc == nil {
		return StepOptions{}, nil
	}

	// The validator expects JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return StepOptions{}, fmt.Errorf("failed to convert to JSON: %w", err)
	}
	var value interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return StepOptions{}, err
	}

	schema, err := compileSchema()
	if err != nil {
		return StepOptions{}, fmt.Errorf("failed to compile step options schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return StepOptions{}, err
	}

	var opts StepOptions
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return StepOptions{}, fmt.Errorf("failed to decode: %w", err)
	}
	return opts, nil
}
