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

// Package namespace creates, checks and destroys the namespace a kubepipe
// session runs in.
package namespace

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/openshift"
)

const (
	// ManagedByLabel marks namespaces created by kubepipe
	ManagedByLabel = "kubepipe.io/managed-by"
	// ManagedByValue is the value of ManagedByLabel
	ManagedByValue = "kubepipe"
	// SessionLabel records the session that created the namespace
	SessionLabel = "kubepipe.io/session"
	// KeepLabel set to "true" protects a namespace from the stale namespace reaper
	KeepLabel = "kubepipe.io/keep"
	// CreatedAtAnnotation holds the RFC3339 creation time of the namespace
	CreatedAtAnnotation = "kubepipe.io/created-at"
)

// NotFoundError is returned by Ensure when the namespace is absent and lazy
// creation is disabled.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("namespace %q does not exist and lazy creation is disabled", e.Name)
}

// Metadata is put on namespaces kubepipe creates.
type Metadata struct {
	Session     string
	Labels      map[string]string
	Annotations map[string]string
}

// Service is the cluster flavour specific namespace API.
type Service interface {
	// Exists looks the namespace up by name.
	Exists(ctx context.Context, name string) (bool, error)
	// Create creates the namespace with meta applied.
	Create(ctx context.Context, name string, meta Metadata) error
	// Destroy deletes the namespace. A missing namespace is reported as a NotFound API error.
	Destroy(ctx context.Context, name string) error
}

// NewService returns the Projects service on OpenShift and the Namespaces service otherwise.
func NewService(c client.Client, openShift bool) Service {
	if openShift {
		return NewProjects(c)
	}
	return NewNamespaces(c)
}

// Manager applies the session policy on top of a Service.
type Manager struct {
	service Service
}

// NewManager creates a new namespace manager
func NewManager(service Service) *Manager {
	return &Manager{service: service}
}

// Exists reports whether the namespace exists.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	exists, err := m.service.Exists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to check namespace %q: %w", name, err)
	}
	return exists, nil
}

// Ensure makes sure the namespace exists. An existing namespace is left
// untouched. A missing one is created when lazyCreate is set, otherwise a
// *NotFoundError is returned.
func (m *Manager) Ensure(ctx context.Context, name string, lazyCreate bool, meta Metadata) error {
	logger := log.FromContext(ctx).WithValues("namespace", name)

	exists, err := m.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		logger.V(1).Info("using existing namespace")
		return nil
	}
	if !lazyCreate {
		return &NotFoundError{Name: name}
	}

	if err := m.service.Create(ctx, name, meta); err != nil {
		return fmt.Errorf("failed to create namespace %q: %w", name, err)
	}
	logger.Info("created namespace")
	return nil
}

// Destroy deletes the namespace. Failures, including an already missing
// namespace, are logged and swallowed. It reports whether a delete was issued.
func (m *Manager) Destroy(ctx context.Context, name string) bool {
	logger := log.FromContext(ctx).WithValues("namespace", name)

	if err := m.service.Destroy(ctx, name); err != nil {
		if errors.IsNotFound(err) {
			logger.Info("namespace already deleted")
		} else {
			logger.Error(err, "failed to delete namespace")
		}
		return false
	}
	logger.Info("deleted namespace")
	return true
}

// Namespaces manages core Namespace objects.
type Namespaces struct {
	client client.Client
	now    func() time.Time
}

// NewNamespaces returns a Service backed by core Namespaces.
func NewNamespaces(c client.Client) *Namespaces {
	return &Namespaces{client: c, now: time.Now}
}

func (n *Namespaces) Exists(ctx context.Context, name string) (bool, error) {
	return exists(ctx, n.client, name, &corev1.Namespace{})
}

// Create creates or updates the namespace with the session labels. Existing
// labels and annotations set by others are preserved.
func (n *Namespaces) Create(ctx context.Context, name string, meta Metadata) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
		},
	}

	_, err := controllerutil.CreateOrUpdate(ctx, n.client, ns, func() error {
		applyMetadata(&ns.ObjectMeta, meta, n.now())
		return nil
	})
	return err
}

func (n *Namespaces) Destroy(ctx context.Context, name string) error {
	return n.client.Delete(ctx, &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}})
}

// Projects manages OpenShift projects. Creation goes through a ProjectRequest
// since most users may not create Project objects directly.
type Projects struct {
	client client.Client
	now    func() time.Time
}

// NewProjects returns a Service backed by OpenShift projects.
func NewProjects(c client.Client) *Projects {
	return &Projects{client: c, now: time.Now}
}

func (p *Projects) Exists(ctx context.Context, name string) (bool, error) {
	return exists(ctx, p.client, name, &openshift.Project{})
}

// Create requests the project and then labels its namespace. Labelling is
// best effort; some users may request projects but not edit namespaces.
func (p *Projects) Create(ctx context.Context, name string, meta Metadata) error {
	req := &openshift.ProjectRequest{
		ObjectMeta:  metav1.ObjectMeta{Name: name},
		DisplayName: name,
	}
	if err := p.client.Create(ctx, req); err != nil && !errors.IsAlreadyExists(err) {
		return err
	}

	ns := &corev1.Namespace{}
	if err := p.client.Get(ctx, types.NamespacedName{Name: name}, ns); err != nil {
		log.FromContext(ctx).Error(err, "failed to label project namespace", "namespace", name)
		return nil
	}
	patch := client.MergeFrom(ns.DeepCopy())
	applyMetadata(&ns.ObjectMeta, meta, p.now())
	if err := p.client.Patch(ctx, ns, patch); err != nil {
		log.FromContext(ctx).Error(err, "failed to label project namespace", "namespace", name)
	}
	return nil
}

func (p *Projects) Destroy(ctx context.Context, name string) error {
	return p.client.Delete(ctx, &openshift.Project{ObjectMeta: metav1.ObjectMeta{Name: name}})
}

// exists does a direct get by name.
func exists(ctx context.Context, c client.Client, name string, obj client.Object) (bool, error) {
	err := c.Get(ctx, types.NamespacedName{Name: name}, obj)
	if err == nil {
		return true, nil
	}
	if errors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func applyMetadata(om *metav1.ObjectMeta, meta Metadata, now time.Time) {
	if om.Labels == nil {
		om.Labels = make(map[string]string)
	}
	for k, v := range meta.Labels {
		om.Labels[k] = v
	}
	om.Labels[ManagedByLabel] = ManagedByValue
	if meta.Session != "" {
		om.Labels[SessionLabel] = meta.Session
	}

	if om.Annotations == nil {
		om.Annotations = make(map[string]string)
	}
	for k, v := range meta.Annotations {
		om.Annotations[k] = v
	}
	if _, ok := om.Annotations[CreatedAtAnnotation]; !ok {
		om.Annotations[CreatedAtAnnotation] = now.UTC().Format(time.RFC3339)
	}
}
