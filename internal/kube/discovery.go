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

package kube

import (
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"

	"github.com/mikelane/kubepipe/internal/openshift"
)

// IsOpenShift reports whether the server behind clientset serves project.openshift.io/v1.
func IsOpenShift(clientset kubernetes.Interface) (bool, error) {
	_, err := clientset.Discovery().ServerResourcesForGroupVersion(openshift.ProjectGroupVersion.String())
	if err == nil {
		return true, nil
	}
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to discover %s: %w", openshift.ProjectGroupVersion, err)
}
