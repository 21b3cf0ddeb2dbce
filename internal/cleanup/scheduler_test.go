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

package cleanup

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/mikelane/kubepipe/internal/namespace"
)

var now = time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)

func managedNamespace(name string, age time.Duration, labels map[string]string) *corev1.Namespace {
	l := map[string]string{namespace.ManagedByLabel: namespace.ManagedByValue}
	for k, v := range labels {
		l[k] = v
	}
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: l,
			Annotations: map[string]string{
				namespace.CreatedAtAnnotation: now.Add(-age).Format(time.RFC3339),
			},
		},
	}
}

func newClient(objs ...client.Object) client.Client {
	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)
	return fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
}

// failingDestroyer refuses to delete the named namespaces.
type failingDestroyer struct {
	next   namespace.Service
	refuse map[string]bool
}

func (d failingDestroyer) Destroy(ctx context.Context, name string) error {
	if d.refuse[name] {
		return errors.New("forbidden")
	}
	return d.next.Destroy(ctx, name)
}

func TestScheduler_Start_runs_periodically_and_stops_gracefully(t *testing.T) {
	c := newClient()
	scheduler := NewScheduler(c, namespace.NewNamespaces(c), 50*time.Millisecond, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- scheduler.Start(ctx)
	}()

	<-ctx.Done()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned unexpected error: %v", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Start() did not return after context cancellation")
	}
}

func TestScheduler_Reap(t *testing.T) {
	unmanaged := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{
		Name:        "kube-system",
		Annotations: map[string]string{namespace.CreatedAtAnnotation: "2020-01-01T00:00:00Z"},
	}}
	garbled := managedNamespace("temp-garbl", 0, nil)
	garbled.Annotations[namespace.CreatedAtAnnotation] = "yesterday"
	unstamped := managedNamespace("temp-nostp", 0, nil)
	delete(unstamped.Annotations, namespace.CreatedAtAnnotation)

	tests := []struct {
		name       string
		objs       []client.Object
		refuse     map[string]bool
		wantReaped []string
		wantKept   []string
		wantErr    bool
	}{
		{
			name: "deletes only stale managed namespaces",
			objs: []client.Object{
				managedNamespace("temp-old00", 25*time.Hour, nil),
				managedNamespace("temp-new00", time.Hour, nil),
				unmanaged,
			},
			wantReaped: []string{"temp-old00"},
			wantKept:   []string{"temp-new00", "kube-system"},
		},
		{
			name: "keep label protects a namespace",
			objs: []client.Object{
				managedNamespace("temp-kept0", 48*time.Hour, map[string]string{namespace.KeepLabel: "true"}),
			},
			wantKept: []string{"temp-kept0"},
		},
		{
			name:     "namespaces without a valid creation time are skipped",
			objs:     []client.Object{garbled, unstamped},
			wantKept: []string{"temp-garbl", "temp-nostp"},
		},
		{
			name: "a failed deletion does not stop the pass",
			objs: []client.Object{
				managedNamespace("temp-lockd", 30*time.Hour, nil),
				managedNamespace("temp-old11", 30*time.Hour, nil),
			},
			refuse:     map[string]bool{"temp-lockd": true},
			wantReaped: []string{"temp-old11"},
			wantKept:   []string{"temp-lockd"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(tt.objs...)
			destroyer := failingDestroyer{next: namespace.NewNamespaces(c), refuse: tt.refuse}
			scheduler := NewScheduler(c, destroyer, time.Minute, 24*time.Hour)
			scheduler.now = func() time.Time { return now }

			reaped, err := scheduler.Reap(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reap() error = %v, wantErr %v", err, tt.wantErr)
			}
			sort.Strings(reaped)
			if len(reaped) != len(tt.wantReaped) {
				t.Fatalf("Reap() = %v, want %v", reaped, tt.wantReaped)
			}
			for i := range reaped {
				if reaped[i] != tt.wantReaped[i] {
					t.Errorf("Reap() = %v, want %v", reaped, tt.wantReaped)
				}
			}

			for _, name := range tt.wantKept {
				if err := c.Get(context.Background(), client.ObjectKey{Name: name}, &corev1.Namespace{}); err != nil {
					t.Errorf("expected namespace %s to still exist, got %v", name, err)
				}
			}
		})
	}
}
