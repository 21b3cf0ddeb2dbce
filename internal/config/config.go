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

// Package config holds the immutable per-step configuration of a kubepipe
// session and the settings read from the host environment.
package config

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"time"
)

// Configuration is built once per step invocation and never mutated afterwards.
// Accessors return copies of slices and maps.
type Configuration struct {
	masterURL                    string
	namespace                    string
	namespaceLazyCreateEnabled   bool
	namespaceDestroyEnabled      bool
	namespaceCleanupEnabled      bool
	environmentDependencies      []*url.URL
	environmentConfigURL         *url.URL
	environmentSetupScriptURL    *url.URL
	environmentTeardownScriptURL *url.URL
	waitTimeout                  time.Duration
	waitForServices              []string
	labels                       map[string]string
	annotations                  map[string]string
}

// MasterURL returns the API server URL, empty when the kubeconfig decides.
func (c Configuration) MasterURL() string { return c.masterURL }

// Namespace returns the session namespace.
func (c Configuration) Namespace() string { return c.namespace }

// NamespaceLazyCreateEnabled reports whether a missing namespace is created.
func (c Configuration) NamespaceLazyCreateEnabled() bool { return c.namespaceLazyCreateEnabled }

// NamespaceDestroyEnabled reports whether the namespace is deleted when the session stops.
func (c Configuration) NamespaceDestroyEnabled() bool { return c.namespaceDestroyEnabled }

// NamespaceCleanupEnabled reports whether applied resources are deleted when the session stops.
func (c Configuration) NamespaceCleanupEnabled() bool { return c.namespaceCleanupEnabled }

// EnvironmentDependencies returns the manifests applied before the environment config.
func (c Configuration) EnvironmentDependencies() []*url.URL {
	return slices.Clone(c.environmentDependencies)
}

// EnvironmentConfigURL returns the environment manifest location, or nil.
func (c Configuration) EnvironmentConfigURL() *url.URL { return cloneURL(c.environmentConfigURL) }

// EnvironmentSetupScriptURL returns the setup script location, or nil.
func (c Configuration) EnvironmentSetupScriptURL() *url.URL {
	return cloneURL(c.environmentSetupScriptURL)
}

// EnvironmentTeardownScriptURL returns the teardown script location, or nil.
func (c Configuration) EnvironmentTeardownScriptURL() *url.URL {
	return cloneURL(c.environmentTeardownScriptURL)
}

// WaitTimeout bounds the wait for services; zero means do not wait.
func (c Configuration) WaitTimeout() time.Duration { return c.waitTimeout }

// WaitForServices returns the services that must have ready endpoints.
func (c Configuration) WaitForServices() []string { return slices.Clone(c.waitForServices) }

// Labels returns the labels put on a created namespace.
func (c Configuration) Labels() map[string]string { return maps.Clone(c.labels) }

// Annotations returns the annotations put on a created namespace.
func (c Configuration) Annotations() map[string]string { return maps.Clone(c.annotations) }

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	out := *u
	return &out
}

// Builder assembles a Configuration. URL parse failures are collected and
// reported by Build.
type Builder struct {
	cfg  Configuration
	errs []error
}

// NewBuilder returns a builder with lazy creation enabled.
func NewBuilder() *Builder {
	return &Builder{cfg: Configuration{namespaceLazyCreateEnabled: true}}
}

func (b *Builder) WithMasterURL(masterURL string) *Builder {
	b.cfg.masterURL = masterURL
	return b
}

func (b *Builder) WithNamespace(namespace string) *Builder {
	b.cfg.namespace = namespace
	return b
}

func (b *Builder) WithNamespaceLazyCreateEnabled(enabled bool) *Builder {
	b.cfg.namespaceLazyCreateEnabled = enabled
	return b
}

func (b *Builder) WithNamespaceDestroyEnabled(enabled bool) *Builder {
	b.cfg.namespaceDestroyEnabled = enabled
	return b
}

func (b *Builder) WithNamespaceCleanupEnabled(enabled bool) *Builder {
	b.cfg.namespaceCleanupEnabled = enabled
	return b
}

// WithEnvironmentDependencies appends dependency manifest locations.
func (b *Builder) WithEnvironmentDependencies(raw ...string) *Builder {
	for _, r := range raw {
		if u := b.parse("environment dependency", r); u != nil {
			b.cfg.environmentDependencies = append(b.cfg.environmentDependencies, u)
		}
	}
	return b
}

func (b *Builder) WithEnvironmentConfigURL(raw string) *Builder {
	b.cfg.environmentConfigURL = b.parse("environment config", raw)
	return b
}

func (b *Builder) WithEnvironmentSetupScriptURL(raw string) *Builder {
	b.cfg.environmentSetupScriptURL = b.parse("setup script", raw)
	return b
}

func (b *Builder) WithEnvironmentTeardownScriptURL(raw string) *Builder {
	b.cfg.environmentTeardownScriptURL = b.parse("teardown script", raw)
	return b
}

func (b *Builder) WithWaitTimeout(timeout time.Duration) *Builder {
	b.cfg.waitTimeout = timeout
	return b
}

func (b *Builder) WithWaitForServices(names ...string) *Builder {
	b.cfg.waitForServices = append(b.cfg.waitForServices, names...)
	return b
}

func (b *Builder) WithLabels(labels map[string]string) *Builder {
	b.cfg.labels = maps.Clone(labels)
	return b
}

func (b *Builder) WithAnnotations(annotations map[string]string) *Builder {
	b.cfg.annotations = maps.Clone(annotations)
	return b
}

// Build returns the configuration, or the joined URL errors.
func (b *Builder) Build() (Configuration, error) {
	if len(b.errs) > 0 {
		return Configuration{}, errors.Join(b.errs...)
	}
	cfg := b.cfg
	cfg.environmentDependencies = slices.Clone(b.cfg.environmentDependencies)
	cfg.waitForServices = slices.Clone(b.cfg.waitForServices)
	cfg.labels = maps.Clone(b.cfg.labels)
	cfg.annotations = maps.Clone(b.cfg.annotations)
	return cfg, nil
}

func (b *Builder) parse(what, raw string) *url.URL {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("invalid %s URL %q: %w", what, raw, err))
		return nil
	}
	return u
}
