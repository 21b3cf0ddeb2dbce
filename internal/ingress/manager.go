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

// Package ingress exposes the single-port Services of a session namespace
// through one Ingress, the plain Kubernetes counterpart of OpenShift routes.
package ingress

import (
	"context"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
)

const (
	// IngressName is the name of the Ingress resource
	IngressName = "kubepipe-ingress"

	// CertManagerIssuerAnnotation is the annotation key for cert-manager cluster issuer
	CertManagerIssuerAnnotation = "cert-manager.io/cluster-issuer"

	// ExternalDNSHostnameAnnotation is the annotation key for external-dns hostname
	ExternalDNSHostnameAnnotation = "external-dns.alpha.kubernetes.io/hostname"

	// SSLRedirectAnnotation is the annotation key for nginx SSL redirect
	SSLRedirectAnnotation = "nginx.ingress.kubernetes.io/ssl-redirect"

	managedByLabel = "kubepipe.io/managed-by"
	managedByValue = "kubepipe"
)

// Exposable reports whether a route or ingress rule should be generated for
// svc. The API server services and services with more or fewer than one
// port are skipped.
func Exposable(svc *corev1.Service) bool {
	if svc.Name == "" || svc.Name == "kubernetes" || svc.Name == "kubernetes-ro" {
		return false
	}
	return len(svc.Spec.Ports) == 1
}

// HostFor returns the generated host of a service: its name without a
// "-service" suffix, then the namespace and domain. It is empty without a
// domain.
func HostFor(serviceName, namespace, domain string) string {
	domain = strings.TrimPrefix(domain, ".")
	if domain == "" {
		return ""
	}
	host := strings.TrimSuffix(strings.TrimSuffix(serviceName, "-service"), ".")
	return host + "." + namespace + "." + domain
}

// Manager handles the session Ingress
type Manager struct {
	client     client.Client
	domain     string
	certIssuer string
}

// NewManager creates a new Ingress manager. certIssuer may be empty, in which
// case no TLS section is generated.
func NewManager(c client.Client, domain, certIssuer string) *Manager {
	return &Manager{
		client:     c,
		domain:     domain,
		certIssuer: certIssuer,
	}
}

// EnsureIngress creates or updates the Ingress routing a host per exposable
// service. It returns the generated host of every service it routes.
func (m *Manager) EnsureIngress(ctx context.Context, namespace string, services []*corev1.Service) (map[string]string, error) {
	hosts := map[string]string{}
	for _, svc := range services {
		if !Exposable(svc) {
			continue
		}
		if host := HostFor(svc.Name, namespace, m.domain); host != "" {
			hosts[svc.Name] = host
		}
	}
	if len(hosts) == 0 {
		return hosts, nil
	}

	names := make([]string, 0, len(hosts))
	for name := range hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	ports := map[string]corev1.ServicePort{}
	for _, svc := range services {
		if _, ok := hosts[svc.Name]; ok {
			ports[svc.Name] = svc.Spec.Ports[0]
		}
	}

	ingress := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      IngressName,
			Namespace: namespace,
		},
	}

	_, err := controllerutil.CreateOrUpdate(ctx, m.client, ingress, func() error {
		// Set labels
		if ingress.Labels == nil {
			ingress.Labels = make(map[string]string)
		}
		ingress.Labels[managedByLabel] = managedByValue

		allHosts := make([]string, 0, len(names))
		for _, name := range names {
			allHosts = append(allHosts, hosts[name])
		}

		// Set annotations for external-dns, and cert-manager when configured
		if ingress.Annotations == nil {
			ingress.Annotations = make(map[string]string)
		}
		ingress.Annotations[ExternalDNSHostnameAnnotation] = strings.Join(allHosts, ",")
		if m.certIssuer != "" {
			ingress.Annotations[CertManagerIssuerAnnotation] = m.certIssuer
			ingress.Annotations[SSLRedirectAnnotation] = "true"
			ingress.Spec.TLS = []networkingv1.IngressTLS{
				{
					Hosts:      allHosts,
					SecretName: IngressName + "-tls",
				},
			}
		} else {
			ingress.Spec.TLS = nil
		}

		// One host based rule per service
		pathType := networkingv1.PathTypePrefix
		rules := make([]networkingv1.IngressRule, 0, len(names))
		for _, name := range names {
			rules = append(rules, networkingv1.IngressRule{
				Host: hosts[name],
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{
							{
								Path:     "/",
								PathType: &pathType,
								Backend: networkingv1.IngressBackend{
									Service: &networkingv1.IngressServiceBackend{
										Name: name,
										Port: backendPort(ports[name]),
									},
								},
							},
						},
					},
				},
			})
		}
		ingress.Spec.Rules = rules

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to ensure ingress in namespace %q: %w", namespace, err)
	}

	return hosts, nil
}

// backendPort refers to the service port by name when it has one
func backendPort(p corev1.ServicePort) networkingv1.ServiceBackendPort {
	if p.Name != "" {
		return networkingv1.ServiceBackendPort{Name: p.Name}
	}
	return networkingv1.ServiceBackendPort{Number: p.Port}
}
