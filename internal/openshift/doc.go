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

// Package openshift holds the typed OpenShift objects kubepipe reads and writes.
//
// Only the fields kubepipe touches are modelled. Nested structures it never
// inspects (route TLS, deployment triggers and strategy parameters) are kept
// verbatim as raw JSON so that a manifest round-trips through the typed form
// without losing data.
//
// Older manifests declare these kinds with the legacy "v1" apiVersion. Use
// Normalize to move such an object onto its API group before it reaches the
// scheme.
package openshift
