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
	"context"
	"os"
	osexec "os/exec"

	"github.com/spf13/cobra"
	"k8s.io/utils/ptr"

	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/session"
)

var (
	sessionOptionsFile string
	sessionStepName    string
	sessionOpts        config.StepOptions
	sessionDestroy     bool
	sessionCleanup     bool
)

var sessionCmd = &cobra.Command{
	Use:   "session [flags] -- COMMAND [ARGS...]",
	Short: "Run a local command inside a session namespace",
	Long: `Run a local command inside a session.

The session namespace is created, the environment manifests are applied
and the command runs with KUBERNETES_NAMESPACE, KUBERNETES_MASTER and
KUBEPIPE_SESSION_ID set. Afterwards the teardown script runs and the
namespace is deleted if it was generated.

Step options can be read from a YAML file:

  name: ci-payments
  environmentConfigUrl: https://ci.example.com/env.yml
  environmentDependencies: [s3://envs/postgres.yml]
  waitForServices: [postgres]
  waitTimeout: 120000

Examples:
  kubepipe session -- mvn verify
  kubepipe session --options step.yml --step namespace -- ./integration-tests.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSession,
}

func init() {
	f := sessionCmd.Flags()
	f.StringVar(&sessionOptionsFile, "options", "", "YAML or JSON file with step options; flags override it")
	f.StringVar(&sessionStepName, "step", "session", "Step kind: session, createEnvironment or namespace")
	f.StringVar(&sessionOpts.Name, "name", "", "Namespace name")
	f.StringVar(&sessionOpts.Prefix, "prefix", "", "Prefix of the generated namespace name")
	f.StringVar(&sessionOpts.EnvironmentConfigURL, "environment", "", "URL of the environment manifest")
	f.StringSliceVar(&sessionOpts.EnvironmentDependencies, "dependency", nil, "URL of a manifest applied before the environment (repeatable)")
	f.StringVar(&sessionOpts.SetupScriptURL, "setup-script", "", "URL of a script run before the environment is applied")
	f.StringVar(&sessionOpts.TeardownScriptURL, "teardown-script", "", "URL of a script run when the session stops")
	f.StringSliceVar(&sessionOpts.WaitForServices, "wait-for", nil, "Service to wait for (repeatable)")
	f.Int64Var(&sessionOpts.WaitTimeoutMillis, "wait-timeout-ms", 0, "Timeout of the service wait in milliseconds")
	f.BoolVar(&sessionDestroy, "destroy", false, "Delete the namespace when the session stops")
	f.BoolVar(&sessionCleanup, "cleanup", false, "Delete the applied resources when the session stops")
	f.StringToStringVar(&sessionOpts.Labels, "label", nil, "Label of the created namespace (key=value, repeatable)")
	f.SetInterspersed(false)
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts, err := sessionOptions(cmd)
	if err != nil {
		return err
	}
	step, err := session.NewStep(sessionStepName, nil)
	if err != nil {
		return err
	}

	conn, deps, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeConnection(ctx, conn)

	return session.Run(ctx, deps, opts, step, func(ctx context.Context, scope *session.Scope) error {
		c := osexec.CommandContext(ctx, args[0], args[1:]...)
		c.Env = os.Environ()
		for k, v := range scope.Env {
			c.Env = append(c.Env, k+"="+v)
		}
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		return c.Run()
	})
}

// sessionOptions merges the options file with the flags that were set.
func sessionOptions(cmd *cobra.Command) (config.StepOptions, error) {
	opts := config.StepOptions{}
	if sessionOptionsFile != "" {
		var err error
		if opts, err = config.LoadStepOptions(sessionOptionsFile); err != nil {
			return opts, err
		}
	}

	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("name", func() { opts.Name = sessionOpts.Name })
	set("prefix", func() { opts.Prefix = sessionOpts.Prefix })
	set("environment", func() { opts.EnvironmentConfigURL = sessionOpts.EnvironmentConfigURL })
	set("dependency", func() { opts.EnvironmentDependencies = sessionOpts.EnvironmentDependencies })
	set("setup-script", func() { opts.SetupScriptURL = sessionOpts.SetupScriptURL })
	set("teardown-script", func() { opts.TeardownScriptURL = sessionOpts.TeardownScriptURL })
	set("wait-for", func() { opts.WaitForServices = sessionOpts.WaitForServices })
	set("wait-timeout-ms", func() { opts.WaitTimeoutMillis = sessionOpts.WaitTimeoutMillis })
	set("label", func() { opts.Labels = sessionOpts.Labels })
	set("destroy", func() { opts.Destroy = ptr.To(sessionDestroy) })
	set("cleanup", func() { opts.Cleanup = ptr.To(sessionCleanup) })
	return opts, nil
}
