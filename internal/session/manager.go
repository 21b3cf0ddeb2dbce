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
	"io"
	"net/url"
	"sync"

	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/apply"
	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/exec"
	"github.com/mikelane/kubepipe/internal/namespace"
)

// Env names exported to scripts and step bodies.
const (
	EnvNamespace = "KUBERNETES_NAMESPACE"
	EnvMaster    = "KUBERNETES_MASTER"
	EnvSessionID = "KUBEPIPE_SESSION_ID"
)

// Deps are the shared clients and host inputs of every step.
type Deps struct {
	Client    client.Client
	Clientset kubernetes.Interface
	// Exec opens exec streams into step pods.
	Exec      *exec.Channel
	OpenShift bool
	// MasterURL is used when the step options do not name one.
	MasterURL string
	// Stack holds the namespaces of enclosing steps.
	Stack    namespace.Stack
	Settings config.Settings
	Fetcher  Fetcher
	Scripts  ScriptRunner
	// Annotator and Events are passed on to the applier.
	Annotator *apply.Annotator
	Events    apply.EventSink
	Lookup    config.LookupFunc
	Output    io.Writer
}

// Manager drives the namespace and environment of one session.
type Manager struct {
	Session Session

	deps       Deps
	config     config.Configuration
	namespaces *namespace.Manager
	applier    *apply.Applier

	mu      sync.Mutex
	results []*apply.Result

	stopOnce sync.Once
	stopErr  error
}

// NewManager returns the manager of session s configured by cfg.
func NewManager(deps Deps, s Session, cfg config.Configuration) *Manager {
	if deps.Fetcher == nil {
		deps.Fetcher = URLFetcher{}
	}
	if deps.Scripts == nil {
		deps.Scripts = ShellRunner{Output: deps.Output}
	}
	namespaces := namespace.NewManager(namespace.NewService(deps.Client, deps.OpenShift))
	applier := apply.NewApplier(deps.Client, namespaces, apply.Options{
		Registry:         deps.Settings.Registry(),
		Domain:           deps.Settings.Domain,
		OpenShift:        deps.OpenShift,
		ServicePatch:     deps.Settings.ServicePatch,
		RequireNamespace: !cfg.NamespaceLazyCreateEnabled(),
		ReadinessTimeout: deps.Settings.ReadinessTimeout,
		Environment:      s.Namespace,
		Annotator:        deps.Annotator,
		Events:           deps.Events,
		Lookup:           deps.Lookup,
	})
	return &Manager{
		Session:    s,
		deps:       deps,
		config:     cfg,
		namespaces: namespaces,
		applier:    applier,
	}
}

// Config returns the resolved configuration of the session.
func (m *Manager) Config() config.Configuration {
	return m.config
}

// Applier returns the applier installing into the session namespace.
func (m *Manager) Applier() *apply.Applier {
	return m.applier
}

// Results returns the applies done so far.
func (m *Manager) Results() []*apply.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*apply.Result(nil), m.results...)
}

// Env is exported to scripts and step bodies.
func (m *Manager) Env() map[string]string {
	return map[string]string{
		EnvNamespace: m.Session.Namespace,
		EnvMaster:    m.config.MasterURL(),
		EnvSessionID: m.Session.ID,
	}
}

// EnsureNamespace creates the session namespace if it is missing and lazy
// creation is enabled.
func (m *Manager) EnsureNamespace(ctx context.Context) error {
	return m.namespaces.Ensure(ctx, m.Session.Namespace, m.config.NamespaceLazyCreateEnabled(), namespace.Metadata{
		Session:     m.Session.ID,
		Labels:      m.config.Labels(),
		Annotations: m.config.Annotations(),
	})
}

// DestroyNamespace deletes the session namespace. Failures are logged.
func (m *Manager) DestroyNamespace(ctx context.Context) bool {
	return m.namespaces.Destroy(ctx, m.Session.Namespace)
}

// Start prepares the namespace and creates the environment in it.
func (m *Manager) Start(ctx context.Context) error {
	log.FromContext(ctx).Info("starting session", "session", m.Session.ID, "namespace", m.Session.Namespace)
	if err := m.EnsureNamespace(ctx); err != nil {
		return err
	}
	return m.CreateEnvironment(ctx)
}

// CreateEnvironment runs the setup script, applies the dependency manifests
// and then the environment manifest, and waits for the configured services.
func (m *Manager) CreateEnvironment(ctx context.Context) error {
	logger := log.FromContext(ctx).WithValues("session", m.Session.ID, "namespace", m.Session.Namespace)

	if u := m.config.EnvironmentSetupScriptURL(); u != nil {
		logger.Info("running environment setup script", "url", u.String())
		if err := m.runScript(ctx, u); err != nil {
			return fmt.Errorf("environment setup failed: %w", err)
		}
	}

	urls := m.config.EnvironmentDependencies()
	if u := m.config.EnvironmentConfigURL(); u != nil {
		urls = append(urls, u)
	}
	for _, u := range urls {
		logger.Info("applying environment manifest", "url", u.String())
		data, err := m.deps.Fetcher.Fetch(ctx, u)
		if err != nil {
			return err
		}
		result, err := m.applier.Apply(ctx, data, m.Session.Namespace)
		if result != nil {
			m.mu.Lock()
			m.results = append(m.results, result)
			m.mu.Unlock()
		}
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", u, err)
		}
	}

	return m.applier.WaitForServices(ctx, m.Session.Namespace, m.config.WaitForServices(), m.config.WaitTimeout())
}

// Stop runs the teardown script, removes the applied resources when cleanup
// is enabled and destroys the namespace when destroy is enabled. Only the
// first call does anything.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.stopErr = m.stop(ctx)
	})
	return m.stopErr
}

func (m *Manager) stop(ctx context.Context) error {
	logger := log.FromContext(ctx).WithValues("session", m.Session.ID, "namespace", m.Session.Namespace)
	logger.Info("stopping session")

	var errs []error
	if u := m.config.EnvironmentTeardownScriptURL(); u != nil {
		logger.Info("running environment teardown script", "url", u.String())
		if err := m.runScript(ctx, u); err != nil {
			errs = append(errs, fmt.Errorf("environment teardown failed: %w", err))
		}
	}

	if m.config.NamespaceCleanupEnabled() {
		results := m.Results()
		for i := len(results) - 1; i >= 0; i-- {
			if err := m.applier.Delete(ctx, results[i]); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if m.config.NamespaceDestroyEnabled() {
		m.DestroyNamespace(ctx)
	}
	return errors.Join(errs...)
}

func (m *Manager) runScript(ctx context.Context, u *url.URL) error {
	script, err := m.deps.Fetcher.Fetch(ctx, u)
	if err != nil {
		return err
	}
	return m.deps.Scripts.Run(ctx, script, m.Env())
}
