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

package exec

import (
	"context"
	"io"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/pod"
)

// PodDeleter deletes step pods.
type PodDeleter interface {
	Delete(ctx context.Context, name string) (bool, error)
}

// Launcher runs commands inside the container of a step pod.
type Launcher struct {
	Channel *Channel
	Pods    PodDeleter
	Session *pod.Session
	// Container defaults to the step container.
	Container string
	Output    io.Writer
}

// NormalizeCommand drops a leading nohup and turns "$$" back into "$".
func NormalizeCommand(cmds []string) []string {
	out := make([]string, 0, len(cmds))
	for i, cmd := range cmds {
		if i == 0 && cmd == "nohup" {
			continue
		}
		out = append(out, strings.ReplaceAll(cmd, "$$", "$"))
	}
	return out
}

// Launch execs cmds in the step container. The process is closed with the
// pod session.
func (l *Launcher) Launch(ctx context.Context, cmds []string) (*Process, error) {
	container := l.Container
	if container == "" {
		container = pod.ContainerName
	}
	p, err := l.Channel.Exec(ctx, Request{
		Namespace:  l.Session.Namespace,
		Pod:        l.Session.Name,
		Container:  container,
		Statements: NormalizeCommand(cmds),
		Output:     l.Output,
	})
	if err != nil {
		return nil, err
	}
	l.Session.Track(p)
	return p, nil
}

// Kill deletes the step pod, which ends every process running in it.
func (l *Launcher) Kill(ctx context.Context) error {
	deleted, err := l.Pods.Delete(ctx, l.Session.Name)
	if err != nil {
		return err
	}
	if !deleted {
		log.FromContext(ctx).Info("pod already gone", "pod", l.Session.Name)
	}
	return nil
}
