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

// Package namespace manages the namespace a kubepipe session runs in.
//
// The Manager applies the session policy on top of a cluster specific
// Service:
//
//   - Ensure looks the namespace up by name and creates it only when it is
//     missing and lazy creation is enabled. Otherwise it fails with a
//     *NotFoundError.
//   - Destroy deletes the namespace. Errors are logged and swallowed so that a
//     namespace someone else already removed never fails a pipeline.
//
// Two services are provided. Namespaces works on core Namespace objects;
// Projects works on OpenShift, where a project is requested through a
// ProjectRequest and deleted through its Project.
//
// # Labels
//
// Namespaces created by kubepipe carry:
//
//	kubepipe.io/managed-by=kubepipe
//	kubepipe.io/session=<session id>
//	kubepipe.io/created-at=<RFC3339 time>   (annotation)
//
// The stale namespace reaper in the cleanup package relies on these.
//
// # Nesting
//
// Steps that open a namespace push it on a Stack so that nested steps can
// resolve the current namespace without naming it again. The stack belongs to
// the build; BuildStack is an in-memory implementation.
package namespace
