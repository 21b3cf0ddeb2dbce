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

// Package ingress exposes session services over HTTP on plain Kubernetes.
//
// On OpenShift the applier generates a Route per single-port Service. Plain
// Kubernetes has no routes, so when a domain is configured the same services
// are routed through one Ingress named kubepipe-ingress. Each service gets a
// host rule:
//
//	<service name without "-service">.<namespace>.<domain>
//
// The Ingress carries the external-dns hostname annotation listing every
// host. When a cert-manager cluster issuer is configured it also requests a
// certificate and turns on the nginx SSL redirect.
//
// # Usage
//
//	mgr := ingress.NewManager(k8sClient, "apps.example.com", "letsencrypt-prod")
//	hosts, err := mgr.EnsureIngress(ctx, "temp-b4x9z", services)
//	if err != nil {
//	    return err
//	}
//	url := "https://" + hosts["web"]
package ingress
