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
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/exec"
	"github.com/mikelane/kubepipe/internal/namespace"
	"github.com/mikelane/kubepipe/internal/pod"
)

// Scope is what a step hands to its body.
type Scope struct {
	Namespace string
	Env       map[string]string
	// Launcher is set by PodStep.
	Launcher *exec.Launcher
}

// Body is the work run inside a step.
type Body func(ctx context.Context, scope *Scope) error

// Step is the start and stop behavior of one kind of step. OnStop is called
// on every path once OnStart was called; cause is the start or body failure,
// nil on success.
type Step interface {
	OnStart(ctx context.Context, m *Manager) (*Scope, error)
	OnStop(ctx context.Context, m *Manager, cause error) error
}

// Run resolves the session of a step, starts the step, runs body in its scope
// and stops the step. The stop runs even when ctx was canceled.
func Run(ctx context.Context, deps Deps, opts config.StepOptions, step Step, body Body) error {
	s := Session{ID: GenerateID(), CreatedAt: time.Now()}
	s.Namespace = NamespaceFor(opts.Name, opts.Prefix, s.ID, deps.Stack)
	if opts.MasterURL == "" {
		opts.MasterURL = deps.MasterURL
	}
	cfg, err := opts.Resolve(s.Namespace, namespaceProvided(opts.Name, deps.Stack))
	if err != nil {
		return err
	}

	logger := log.FromContext(ctx).WithValues("session", s.ID, "namespace", s.Namespace)
	ctx = log.IntoContext(ctx, logger)
	m := NewManager(deps, s, cfg)

	scope, cause := step.OnStart(ctx, m)
	if cause == nil && body != nil {
		cause = body(ctx, scope)
	}
	if cause == nil {
		cause = ctx.Err()
	}
	if cause != nil {
		logger.Info("step failed", "error", cause.Error())
	}
	return errors.Join(cause, step.OnStop(context.WithoutCancel(ctx), m, cause))
}

func newScope(m *Manager) *Scope {
	return &Scope{Namespace: m.Session.Namespace, Env: m.Env()}
}

// SessionStep creates the namespace and the environment before the body and
// stops the session after it.
type SessionStep struct{}

func (SessionStep) OnStart(ctx context.Context, m *Manager) (*Scope, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	return newScope(m), nil
}

func (SessionStep) OnStop(ctx context.Context, m *Manager, _ error) error {
	return m.Stop(ctx)
}

// CreateEnvironmentStep creates the environment and leaves it running. It is
// only stopped when the step fails.
type CreateEnvironmentStep struct{}

func (CreateEnvironmentStep) OnStart(ctx context.Context, m *Manager) (*Scope, error) {
	if err := m.EnsureNamespace(ctx); err != nil {
		return nil, err
	}
	if err := m.CreateEnvironment(ctx); err != nil {
		return nil, err
	}
	return newScope(m), nil
}

func (CreateEnvironmentStep) OnStop(ctx context.Context, m *Manager, cause error) error {
	if cause == nil {
		return nil
	}
	return m.Stop(ctx)
}

// NamespaceStep makes its namespace the current one of the build while the
// body runs. A step that failed to ensure its namespace neither pops the
// stack nor destroys anything. Use a new step for every run.
type NamespaceStep struct {
	pushed bool
}

func (n *NamespaceStep) OnStart(ctx context.Context, m *Manager) (*Scope, error) {
	if err := m.EnsureNamespace(ctx); err != nil {
		return nil, err
	}
	if m.deps.Stack != nil {
		m.deps.Stack.Push(m.Session.Namespace)
	}
	n.pushed = true
	return newScope(m), nil
}

func (n *NamespaceStep) OnStop(ctx context.Context, m *Manager, _ error) error {
	if !n.pushed {
		return nil
	}
	n.pushed = false
	if m.Config().NamespaceDestroyEnabled() {
		m.DestroyNamespace(ctx)
	}
	if m.deps.Stack != nil {
		m.deps.Stack.Pop()
	}
	return nil
}

// CurrentNamespace returns the namespace of the innermost enclosing
// NamespaceStep, or fallback outside of one.
func CurrentNamespace(stack namespace.Stack, fallback string) string {
	if stack != nil {
		if ns, ok := stack.Current(); ok && ns != "" {
			return ns
		}
	}
	return fallback
}

// PodStep runs the body against a worker pod. Commands reach the pod through
// the scope launcher.
type PodStep struct {
	Spec pod.Spec
	// FollowLogs copies the pod logs to the session output.
	FollowLogs bool

	controller *pod.Controller
	session    *pod.Session
}

func (p *PodStep) OnStart(ctx context.Context, m *Manager) (*Scope, error) {
	if err := m.EnsureNamespace(ctx); err != nil {
		return nil, err
	}

	spec := p.Spec
	if spec.Hostname == "" {
		spec.Hostname = m.deps.Settings.Hostname
	}
	spec.Env = maps.Clone(spec.Env)
	if spec.Env == nil {
		spec.Env = map[string]string{}
	}
	for k, v := range m.Env() {
		if _, ok := spec.Env[k]; !ok {
			spec.Env[k] = v
		}
	}

	p.controller = pod.NewController(m.deps.Clientset, m.Session.Namespace)
	s, err := p.controller.Create(ctx, spec)
	if err != nil {
		return nil, err
	}
	p.session = s
	if err := p.controller.Watch(ctx, s, true); err != nil {
		return nil, err
	}

	select {
	case <-s.Started.Done():
	case <-s.Finished.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if !s.Alive() {
		return nil, fmt.Errorf("pod %s in namespace %s ended before it was running (%s)", s.Name, s.Namespace, s.State())
	}

	if p.FollowLogs && m.deps.Output != nil {
		if _, err := p.controller.WatchLogs(ctx, s, m.deps.Output); err != nil {
			log.FromContext(ctx).Error(err, "failed to follow pod logs", "pod", s.Name)
		}
	}

	scope := newScope(m)
	scope.Launcher = &exec.Launcher{
		Channel: m.deps.Exec,
		Pods:    p.controller,
		Session: s,
		Output:  m.deps.Output,
	}
	return scope, nil
}

func (p *PodStep) OnStop(ctx context.Context, m *Manager, _ error) error {
	var err error
	if p.session != nil {
		_, err = p.controller.Delete(ctx, p.session.Name)
	}
	if p.controller != nil {
		p.controller.Close(ctx)
	}
	if m.Config().NamespaceDestroyEnabled() {
		m.DestroyNamespace(ctx)
	}
	return err
}

// Factory builds a step from string parameters.
type Factory func(params map[string]string) (Step, error)

// Factories are the steps that can be looked up by name.
var Factories = map[string]Factory{
	"session": func(map[string]string) (Step, error) {
		return SessionStep{}, nil
	},
	"createEnvironment": func(map[string]string) (Step, error) {
		return CreateEnvironmentStep{}, nil
	},
	"namespace": func(map[string]string) (Step, error) {
		return &NamespaceStep{}, nil
	},
	"pod": newPodStep,
}

// NewStep builds the step registered under name.
func NewStep(name string, params map[string]string) (Step, error) {
	factory, ok := Factories[name]
	if !ok {
		known := make([]string, 0, len(Factories))
		for k := range Factories {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown step %q, expected one of %s", name, strings.Join(known, ", "))
	}
	return factory(params)
}

func newPodStep(params map[string]string) (Step, error) {
	image := params["image"]
	if image == "" {
		return nil, errors.New("pod step requires an image")
	}
	spec := pod.Spec{
		Name:           params["name"],
		Image:          image,
		Command:        params["command"],
		ServiceAccount: params["serviceAccount"],
		Workspace:      params["workspace"],
		JobName:        params["jobName"],
	}
	if spec.Name == "" {
		spec.Name = "kubepipe"
	}
	if raw, ok := params["privileged"]; ok {
		privileged, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid privileged value %q: %w", raw, err)
		}
		spec.Privileged = privileged
	}
	step := &PodStep{Spec: spec}
	if raw, ok := params["followLogs"]; ok {
		follow, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid followLogs value %q: %w", raw, err)
		}
		step.FollowLogs = follow
	}
	return step, nil
}
