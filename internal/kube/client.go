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

// Package kube owns the process-wide connection to the cluster.
package kube

import (
	"fmt"
	"net/http"
	"sync"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mikelane/kubepipe/internal/openshift"
)

// NewScheme returns a scheme with the client-go and OpenShift types registered.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(openshift.AddToScheme(scheme))
	return scheme
}

// Connection is the shared cluster handle. Every client it hands out uses the
// same HTTP transport, which Close releases.
type Connection struct {
	config     *rest.Config
	httpClient *http.Client
	scheme     *runtime.Scheme
	client     client.Client
	clientset  kubernetes.Interface

	closeOnce sync.Once
}

// Connect loads kubeconfig (or the in-cluster config when empty), optionally
// switching to kubeContext, and opens the connection.
func Connect(kubeconfig, kubeContext, masterURL string) (*Connection, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}
	if masterURL != "" {
		overrides.ClusterInfo.Server = masterURL
	}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}
	return NewConnection(config)
}

// NewConnection opens a connection for config.
func NewConnection(config *rest.Config) (*Connection, error) {
	httpClient, err := rest.HTTPClientFor(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	scheme := NewScheme()
	c, err := client.New(config, client.Options{HTTPClient: httpClient, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	clientset, err := kubernetes.NewForConfigAndClient(config, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &Connection{
		config:     config,
		httpClient: httpClient,
		scheme:     scheme,
		client:     c,
		clientset:  clientset,
	}, nil
}

// RESTConfig returns the REST config for the connection
func (c *Connection) RESTConfig() *rest.Config {
	return c.config
}

// Client returns the controller-runtime client
func (c *Connection) Client() client.Client {
	return c.client
}

// Clientset returns the client-go clientset, used for watches, logs and exec
func (c *Connection) Clientset() kubernetes.Interface {
	return c.clientset
}

// Scheme returns the scheme the client was built with
func (c *Connection) Scheme() *runtime.Scheme {
	return c.scheme
}

// IsOpenShift reports whether the server serves the OpenShift project API.
func (c *Connection) IsOpenShift() (bool, error) {
	return IsOpenShift(c.clientset)
}

// Close releases idle connections. Calls after the first are no-ops.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.httpClient.CloseIdleConnections()
	})
	return nil
}
