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
	"context"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"sort"
)

// ScriptRunner runs environment setup and teardown scripts.
type ScriptRunner interface {
	Run(ctx context.Context, script []byte, env map[string]string) error
}

// ShellRunner runs scripts with a local shell.
type ShellRunner struct {
	// Shell defaults to /bin/sh.
	Shell  string
	Output io.Writer
}

func (r ShellRunner) Run(ctx context.Context, script []byte, env map[string]string) error {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := osexec.CommandContext(ctx, shell, "-c", string(script))

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cmd.Env = os.Environ()
	for _, k := range keys {
		cmd.Env = append(cmd.Env, k+"="+env[k])
	}

	out := r.Output
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout, cmd.Stderr = out, out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("script failed: %w", err)
	}
	return nil
}
