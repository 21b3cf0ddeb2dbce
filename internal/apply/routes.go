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

package apply

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/ingress"
	"github.com/mikelane/kubepipe/internal/manifest"
	"github.com/mikelane/kubepipe/internal/openshift"
)

// addRoutes adds a Route for every exposable Service in set. A manifest Route
// with the same name wins over the generated one. When the route API cannot
// be listed nothing is generated.
func (a *Applier) addRoutes(ctx context.Context, set *manifest.Set, namespace string) {
	logger := log.FromContext(ctx).WithValues("namespace", namespace)

	if err := a.client.List(ctx, &openshift.RouteList{}, client.InNamespace(namespace)); err != nil {
		logger.Error(err, "cannot list routes, not generating any; maybe not connected to an OpenShift cluster")
		return
	}

	for _, e := range set.Items() {
		svc, ok := e.Object.(*corev1.Service)
		if !ok {
			continue
		}
		if !ingress.Exposable(svc) {
			logger.V(1).Info("not generating route, only single port services are supported",
				"service", svc.Name, "ports", len(svc.Spec.Ports))
			continue
		}
		if set.Add(manifest.Entity{Object: routeFor(svc, namespace, a.opts.Domain)}) {
			logger.V(1).Info("generated route", "service", svc.Name)
		}
	}
}

func routeFor(svc *corev1.Service, namespace, domain string) *openshift.Route {
	ns := svc.Namespace
	if ns == "" {
		ns = namespace
	}
	return &openshift.Route{
		TypeMeta: metav1.TypeMeta{
			APIVersion: openshift.RouteGroupVersion.String(),
			Kind:       "Route",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      svc.Name,
			Namespace: ns,
		},
		Spec: openshift.RouteSpec{
			Host: ingress.HostFor(svc.Name, ns, domain),
			To: openshift.RouteTargetReference{
				Kind: "Service",
				Name: svc.Name,
			},
		},
	}
}
