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

//go:build integration
// +build integration

package namespace

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

// TestIntegration_SessionWorkflow walks a namespace through a nested session
func TestIntegration_SessionWorkflow(t *testing.T) {
	c := fake.NewClientBuilder().
		WithScheme(newScheme()).
		WithRESTMapper(newRESTMapper()).
		Build()

	manager := NewManager(NewService(c, false))
	stack := NewBuildStack()
	ctx := context.Background()

	// Outer step creates its namespace
	if err := manager.Ensure(ctx, "temp-k2m9q", true, Metadata{Session: "k2m9q"}); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	stack.Push("temp-k2m9q")

	// Nested step resolves the same namespace and must not create anything
	current, ok := stack.Current()
	if !ok || current != "temp-k2m9q" {
		t.Fatalf("Current() = %q, %v", current, ok)
	}
	if err := manager.Ensure(ctx, current, false, Metadata{}); err != nil {
		t.Fatalf("nested Ensure() error = %v", err)
	}

	ns := &corev1.Namespace{}
	if err := c.Get(ctx, types.NamespacedName{Name: "temp-k2m9q"}, ns); err != nil {
		t.Fatalf("namespace should exist: %v", err)
	}
	if ns.Labels[SessionLabel] != "k2m9q" {
		t.Errorf("nested Ensure() should not relabel, got %v", ns.Labels)
	}

	// Outer step leaves and destroys its generated namespace
	stack.Pop()
	if !manager.Destroy(ctx, "temp-k2m9q") {
		t.Error("Destroy() should delete the namespace")
	}
	if manager.Destroy(ctx, "temp-k2m9q") {
		t.Error("second Destroy() should be a no-op")
	}
}
