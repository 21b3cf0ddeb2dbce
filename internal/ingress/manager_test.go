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

package ingress

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

// setupTestClient creates a fake Kubernetes client with necessary schemes
func setupTestClient(t *testing.T, namespace string) client.Client {
	t.Helper()
	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)
	_ = networkingv1.AddToScheme(scheme)

	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: namespace}}
	return fake.NewClientBuilder().WithScheme(scheme).WithObjects(ns).Build()
}

func svc(name string, ports ...corev1.ServicePort) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec:       corev1.ServiceSpec{Ports: ports},
	}
}

func TestExposable(t *testing.T) {
	tests := []struct {
		name string
		svc  *corev1.Service
		want bool
	}{
		{"single port", svc("web", corev1.ServicePort{Port: 80}), true},
		{"no ports", svc("headless"), false},
		{"two ports", svc("multi", corev1.ServicePort{Port: 80}, corev1.ServicePort{Port: 443}), false},
		{"api server", svc("kubernetes", corev1.ServicePort{Port: 443}), false},
		{"legacy read only api server", svc("kubernetes-ro", corev1.ServicePort{Port: 80}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Exposable(tt.svc); got != tt.want {
				t.Errorf("Exposable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHostFor(t *testing.T) {
	tests := []struct {
		service, namespace, domain, want string
	}{
		{"web-service", "temp-abcde", "apps.example.com", "web.temp-abcde.apps.example.com"},
		{"api", "ci", ".example.com", "api.ci.example.com"},
		{"api", "ci", "", ""},
	}
	for _, tt := range tests {
		if got := HostFor(tt.service, tt.namespace, tt.domain); got != tt.want {
			t.Errorf("HostFor(%q, %q, %q) = %q, want %q", tt.service, tt.namespace, tt.domain, got, tt.want)
		}
	}
}

func TestManager_EnsureIngress(t *testing.T) {
	tests := []struct {
		name       string
		certIssuer string
		services   []*corev1.Service
		wantHosts  map[string]string
		validateFn func(t *testing.T, ing *networkingv1.Ingress)
	}{
		{
			name:       "routes every exposable service with TLS",
			certIssuer: "letsencrypt-prod",
			services: []*corev1.Service{
				svc("web-service", corev1.ServicePort{Name: "http", Port: 80}),
				svc("api", corev1.ServicePort{Port: 8080}),
				svc("multi", corev1.ServicePort{Port: 80}, corev1.ServicePort{Port: 81}),
			},
			wantHosts: map[string]string{
				"web-service": "web.ci.example.com",
				"api":         "api.ci.example.com",
			},
			validateFn: func(t *testing.T, ing *networkingv1.Ingress) {
				if len(ing.Spec.Rules) != 2 {
					t.Fatalf("expected 2 rules, got %d", len(ing.Spec.Rules))
				}
				// rules are sorted by service name
				api := ing.Spec.Rules[0].HTTP.Paths[0].Backend.Service
				if api.Name != "api" || api.Port.Number != 8080 {
					t.Errorf("unexpected api backend %+v", api)
				}
				web := ing.Spec.Rules[1].HTTP.Paths[0].Backend.Service
				if web.Name != "web-service" || web.Port.Name != "http" {
					t.Errorf("unexpected web backend %+v", web)
				}
				if ing.Annotations[CertManagerIssuerAnnotation] != "letsencrypt-prod" {
					t.Errorf("expected cert-manager annotation, got %v", ing.Annotations)
				}
				if len(ing.Spec.TLS) != 1 || len(ing.Spec.TLS[0].Hosts) != 2 {
					t.Errorf("expected TLS for both hosts, got %+v", ing.Spec.TLS)
				}
				if ing.Labels[managedByLabel] != managedByValue {
					t.Errorf("expected managed-by label, got %v", ing.Labels)
				}
			},
		},
		{
			name:     "no TLS without issuer",
			services: []*corev1.Service{svc("api", corev1.ServicePort{Port: 8080})},
			wantHosts: map[string]string{
				"api": "api.ci.example.com",
			},
			validateFn: func(t *testing.T, ing *networkingv1.Ingress) {
				if ing.Spec.TLS != nil {
					t.Errorf("expected no TLS, got %+v", ing.Spec.TLS)
				}
				if _, ok := ing.Annotations[CertManagerIssuerAnnotation]; ok {
					t.Error("unexpected cert-manager annotation")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setupTestClient(t, "ci")
			m := NewManager(c, "example.com", tt.certIssuer)

			hosts, err := m.EnsureIngress(context.Background(), "ci", tt.services)
			if err != nil {
				t.Fatalf("EnsureIngress() error = %v", err)
			}
			if len(hosts) != len(tt.wantHosts) {
				t.Fatalf("hosts = %v, want %v", hosts, tt.wantHosts)
			}
			for name, host := range tt.wantHosts {
				if hosts[name] != host {
					t.Errorf("host for %s = %q, want %q", name, hosts[name], host)
				}
			}

			ing := &networkingv1.Ingress{}
			if err := c.Get(context.Background(), types.NamespacedName{Name: IngressName, Namespace: "ci"}, ing); err != nil {
				t.Fatalf("failed to get ingress: %v", err)
			}
			tt.validateFn(t, ing)
		})
	}
}

func TestManager_EnsureIngress_NothingToRoute(t *testing.T) {
	c := setupTestClient(t, "ci")
	m := NewManager(c, "", "")

	hosts, err := m.EnsureIngress(context.Background(), "ci", []*corev1.Service{svc("api", corev1.ServicePort{Port: 80})})
	if err != nil {
		t.Fatalf("EnsureIngress() error = %v", err)
	}
	if len(hosts) != 0 {
		t.Errorf("expected no hosts without a domain, got %v", hosts)
	}

	err = c.Get(context.Background(), types.NamespacedName{Name: IngressName, Namespace: "ci"}, &networkingv1.Ingress{})
	if err == nil {
		t.Error("no ingress should be created without hosts")
	}
}
