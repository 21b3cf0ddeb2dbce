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
	"time"

	"k8s.io/utils/ptr"
)

// StepOptions are the user inputs of a single session step. Nil flags take the
// defaults applied by Resolve.
type StepOptions struct {
	MasterURL string `yaml:"masterUrl,omitempty"`
	// Name is the explicit namespace name.
	Name string `yaml:"name,omitempty"`
	// Prefix is prepended to the session id when no name is given.
	Prefix string `yaml:"prefix,omitempty"`

	LazyCreate *bool `yaml:"namespaceLazyCreate,omitempty"`
	Destroy    *bool `yaml:"namespaceDestroy,omitempty"`
	Cleanup    *bool `yaml:"namespaceCleanup,omitempty"`

	EnvironmentConfigURL    string   `yaml:"environmentConfigUrl,omitempty"`
	EnvironmentDependencies []string `yaml:"environmentDependencies,omitempty"`
	SetupScriptURL          string   `yaml:"environmentSetupScriptUrl,omitempty"`
	TeardownScriptURL       string   `yaml:"environmentTeardownScriptUrl,omitempty"`

	// WaitTimeoutMillis bounds the wait for WaitForServices.
	WaitTimeoutMillis int64    `yaml:"waitTimeout,omitempty"`
	WaitForServices   []string `yaml:"waitForServices,omitempty"`

	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

// Resolve builds the configuration for namespace. provided is true when the
// caller named the namespace explicitly or it came from an enclosing step.
//
// Lazy creation defaults to on, cleanup to off, and destroy to !provided so
// that only generated namespaces are deleted unless asked otherwise.
func (o StepOptions) Resolve(namespace string, provided bool) (Configuration, error) {
	return NewBuilder().
		WithMasterURL(o.MasterURL).
		WithNamespace(namespace).
		WithNamespaceLazyCreateEnabled(ptr.Deref(o.LazyCreate, true)).
		WithNamespaceDestroyEnabled(ptr.Deref(o.Destroy, !provided)).
		WithNamespaceCleanupEnabled(ptr.Deref(o.Cleanup, false)).
		WithEnvironmentConfigURL(o.EnvironmentConfigURL).
		WithEnvironmentDependencies(o.EnvironmentDependencies...).
		WithEnvironmentSetupScriptURL(o.SetupScriptURL).
		WithEnvironmentTeardownScriptURL(o.TeardownScriptURL).
		WithWaitTimeout(time.Duration(o.WaitTimeoutMillis) * time.Millisecond).
		WithWaitForServices(o.WaitForServices...).
		WithLabels(o.Labels).
		WithAnnotations(o.Annotations).
		Build()
}
