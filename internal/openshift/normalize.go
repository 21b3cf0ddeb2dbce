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

package openshift

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// legacyKinds maps kinds served by the pre-group OpenShift API to their group version.
var legacyKinds = map[string]schema.GroupVersion{
	"Route":            RouteGroupVersion,
	"DeploymentConfig": AppsGroupVersion,
	"Project":          ProjectGroupVersion,
	"ProjectRequest":   ProjectGroupVersion,
}

// Normalize rewrites a legacy "v1" apiVersion on an OpenShift kind to its API
// group. It reports whether the object was changed.
func Normalize(obj *unstructured.Unstructured) bool {
	if obj.GetAPIVersion() != "v1" {
		return false
	}
	gv, ok := legacyKinds[obj.GetKind()]
	if !ok {
		return false
	}
	obj.SetAPIVersion(gv.String())
	return true
}

// IsOpenShiftKind reports whether kind is one of the OpenShift kinds in this package.
func IsOpenShiftKind(kind string) bool {
	_, ok := legacyKinds[kind]
	return ok
}
