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

	"github.com/spf13/cobra"

	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/pod"
	"github.com/mikelane/kubepipe/internal/session"
)

var (
	podNamespace  string
	podFollowLogs bool
	podSpec       pod.Spec
	podSecrets    map[string]string
	podHostPaths  map[string]string
	podEmptyDirs  []string
)

var podExecCmd = &cobra.Command{
	Use:   "pod-exec --image IMAGE [flags] -- COMMAND [ARGS...]",
	Short: "Run a command inside a worker pod",
	Long: `Start a worker pod, wait until it runs, execute the command in its
container and delete the pod afterwards.

The remote exit code is not reported as a status; the command fails when
the exec stream cannot be opened, breaks or ends with an error, which is how
a shell that exited non-zero is reported.

Examples:
  kubepipe pod-exec --image maven:3-jdk-8 -- mvn -B verify
  kubepipe pod-exec --image docker:dind --privileged --host-path /var/run/docker.sock=/var/run/docker.sock -- docker info`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPodExec,
}

func init() {
	f := podExecCmd.Flags()
	f.StringVarP(&podNamespace, "namespace", "n", "", "Namespace of the pod (generated when empty)")
	f.StringVar(&podSpec.Name, "name", "kubepipe", "Base name of the pod")
	f.StringVar(&podSpec.Image, "image", "", "Image of the worker container")
	f.StringVar(&podSpec.ServiceAccount, "service-account", "", "Service account of the pod")
	f.BoolVar(&podSpec.Privileged, "privileged", false, "Run the container privileged")
	f.StringVar(&podSpec.Workspace, "workspace", "", "Workspace path, also the working directory (defaults to the current directory)")
	f.StringVar(&podSpec.JobName, "job", os.Getenv("JOB_NAME"), "Job name selecting the workspace claim")
	f.StringToStringVar(&podSpec.Env, "env", nil, "Environment of the container (KEY=VALUE, repeatable)")
	f.StringToStringVar(&podSecrets, "secret", nil, "Secret to mount (SECRET=PATH, repeatable)")
	f.StringToStringVar(&podHostPaths, "host-path", nil, "Host path to mount (HOSTPATH=PATH, repeatable)")
	f.StringSliceVar(&podEmptyDirs, "empty-dir", nil, "Path of an empty dir to mount (repeatable)")
	f.BoolVar(&podFollowLogs, "follow-logs", false, "Copy the pod logs to stdout")
	f.SetInterspersed(false)
}

func runPodExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := required("image", podSpec.Image); err != nil {
		return err
	}

	spec := podSpec
	if spec.Workspace == "" {
		if wd, err := os.Getwd(); err == nil {
			spec.Workspace = wd
		}
	}
	for secret, path := range podSecrets {
		spec.Volumes = append(spec.Volumes, pod.Volume{Type: pod.VolumeSecret, Source: secret, MountPath: path})
	}
	for hostPath, path := range podHostPaths {
		spec.Volumes = append(spec.Volumes, pod.Volume{Type: pod.VolumeHostPath, Source: hostPath, MountPath: path})
	}
	for _, path := range podEmptyDirs {
		spec.Volumes = append(spec.Volumes, pod.Volume{Type: pod.VolumeEmptyDir, MountPath: path})
	}

	conn, deps, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeConnection(ctx, conn)

	step := &session.PodStep{Spec: spec, FollowLogs: podFollowLogs}
	opts := config.StepOptions{Name: podNamespace}
	return session.Run(ctx, deps, opts, step, execBody(args))
}

// execBody launches args in the step pod. The command fails when Join
// reports a channel error; the Join status itself is always 1 and ignored.
func execBody(args []string) session.Body {
	return func(ctx context.Context, scope *session.Scope) error {
		p, err := scope.Launcher.Launch(ctx, args)
		if err != nil {
			return err
		}
		if _, err := p.Join(ctx); err != nil {
			return err
		}
		return nil
	}
}
