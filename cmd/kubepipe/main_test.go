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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikelane/kubepipe/internal/apply"
)

func TestSortedRows(t *testing.T) {
	rows := sortedRows(map[string]string{"web": "http://web", "api": "http://api"})
	if len(rows) != 2 || rows[0][0] != "api" || rows[1][0] != "web" {
		t.Errorf("sortedRows() = %v, want api before web", rows)
	}
}

func TestEmitResult(t *testing.T) {
	var buf bytes.Buffer
	outputWriter = &buf
	defer func() { outputWriter = os.Stdout }()

	emitResult(&apply.Result{Applied: []apply.AppliedResource{
		{Kind: "Service", Name: "web", Namespace: "ci", Action: apply.ActionCreated},
		{Kind: "Deployment", Name: "web", Namespace: "ci", Action: apply.ActionUnchanged},
	}})

	out := buf.String()
	for _, want := range []string{"KIND", "ACTION", "Service", "Created", "Unchanged"} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
}

func TestSessionOptions_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "step.yml")
	content := "name: from-file\nprefix: it\nwaitForServices: [db]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	sessionOptionsFile = path
	defer func() { sessionOptionsFile = "" }()

	if err := sessionCmd.Flags().Set("name", "from-flag"); err != nil {
		t.Fatal(err)
	}
	if err := sessionCmd.Flags().Set("destroy", "true"); err != nil {
		t.Fatal(err)
	}

	opts, err := sessionOptions(sessionCmd)
	if err != nil {
		t.Fatalf("sessionOptions() error = %v", err)
	}
	if opts.Name != "from-flag" {
		t.Errorf("Name = %q, want from-flag", opts.Name)
	}
	if opts.Prefix != "it" || len(opts.WaitForServices) != 1 {
		t.Errorf("file values lost: %+v", opts)
	}
	if opts.Destroy == nil || !*opts.Destroy {
		t.Errorf("Destroy = %v, want true", opts.Destroy)
	}
	if opts.Cleanup != nil {
		t.Errorf("Cleanup = %v, want unset", *opts.Cleanup)
	}
}
