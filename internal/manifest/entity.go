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

package manifest

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mikelane/kubepipe/internal/openshift"
)

// Kind identifies the variant held by an Entity.
type Kind string

const (
	KindPod                   Kind = "Pod"
	KindService               Kind = "Service"
	KindReplicationController Kind = "ReplicationController"
	KindReplicaSet            Kind = "ReplicaSet"
	KindDeployment            Kind = "Deployment"
	KindDeploymentConfig      Kind = "DeploymentConfig"
	KindRoute                 Kind = "Route"
	// KindGeneric is any other kind, held as unstructured content.
	KindGeneric Kind = "Generic"
)

// typedKinds are the group version kinds decoded into typed objects.
var typedKinds = map[schema.GroupVersionKind]func() client.Object{
	corev1.SchemeGroupVersion.WithKind("Pod"):                   func() client.Object { return &corev1.Pod{} },
	corev1.SchemeGroupVersion.WithKind("Service"):               func() client.Object { return &corev1.Service{} },
	corev1.SchemeGroupVersion.WithKind("ReplicationController"): func() client.Object { return &corev1.ReplicationController{} },
	appsv1.SchemeGroupVersion.WithKind("ReplicaSet"):            func() client.Object { return &appsv1.ReplicaSet{} },
	appsv1.SchemeGroupVersion.WithKind("Deployment"):            func() client.Object { return &appsv1.Deployment{} },
	openshift.AppsGroupVersion.WithKind("DeploymentConfig"):     func() client.Object { return &openshift.DeploymentConfig{} },
	openshift.RouteGroupVersion.WithKind("Route"):               func() client.Object { return &openshift.Route{} },
}

// Entity is one resource of a manifest. Object is one of *corev1.Pod,
// *corev1.Service, *corev1.ReplicationController, *appsv1.ReplicaSet,
// *appsv1.Deployment, *openshift.DeploymentConfig, *openshift.Route or, for
// every other kind, *unstructured.Unstructured.
type Entity struct {
	Object client.Object
}

// FromUnstructured converts u into the typed variant for its kind.
func FromUnstructured(u *unstructured.Unstructured) (Entity, error) {
	openshift.Normalize(u)
	newObj, ok := typedKinds[u.GroupVersionKind()]
	if !ok {
		return Entity{Object: u}, nil
	}
	obj := newObj()
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, obj); err != nil {
		return Entity{}, fmt.Errorf("cannot decode %s %q: %w", u.GetKind(), u.GetName(), err)
	}
	return Entity{Object: obj}, nil
}

// Kind returns the variant of the entity.
func (e Entity) Kind() Kind {
	switch e.Object.(type) {
	case *corev1.Pod:
		return KindPod
	case *corev1.Service:
		return KindService
	case *corev1.ReplicationController:
		return KindReplicationController
	case *appsv1.ReplicaSet:
		return KindReplicaSet
	case *appsv1.Deployment:
		return KindDeployment
	case *openshift.DeploymentConfig:
		return KindDeploymentConfig
	case *openshift.Route:
		return KindRoute
	default:
		return KindGeneric
	}
}

// KindName is the resource kind as written in the manifest.
func (e Entity) KindName() string {
	if k := e.Kind(); k != KindGeneric {
		return string(k)
	}
	return e.Object.GetObjectKind().GroupVersionKind().Kind
}

// Name returns the name of the resource
func (e Entity) Name() string {
	return e.Object.GetName()
}

// Namespace returns the namespace of the resource
func (e Entity) Namespace() string {
	return e.Object.GetNamespace()
}

// String formats the entity as Kind/namespace/name for logs and errors.
func (e Entity) String() string {
	if ns := e.Namespace(); ns != "" {
		return e.KindName() + "/" + ns + "/" + e.Name()
	}
	return e.KindName() + "/" + e.Name()
}

// IsWorkload reports whether the entity runs containers.
func (e Entity) IsWorkload() bool {
	switch e.Kind() {
	case KindPod, KindReplicationController, KindReplicaSet, KindDeployment, KindDeploymentConfig:
		return true
	}
	return false
}

// PodSpec returns the pod spec of a workload, or nil for other kinds and
// workloads without a template. Changes through the pointer modify the entity.
func (e Entity) PodSpec() *corev1.PodSpec {
	switch o := e.Object.(type) {
	case *corev1.Pod:
		return &o.Spec
	case *corev1.ReplicationController:
		if o.Spec.Template == nil {
			return nil
		}
		return &o.Spec.Template.Spec
	case *appsv1.ReplicaSet:
		return &o.Spec.Template.Spec
	case *appsv1.Deployment:
		return &o.Spec.Template.Spec
	case *openshift.DeploymentConfig:
		if o.Spec.Template == nil {
			return nil
		}
		return &o.Spec.Template.Spec
	}
	return nil
}

// Containers returns pointers to every init and app container of a workload.
func (e Entity) Containers() []*corev1.Container {
	spec := e.PodSpec()
	if spec == nil {
		return nil
	}
	out := make([]*corev1.Container, 0, len(spec.InitContainers)+len(spec.Containers))
	for i := range spec.InitContainers {
		out = append(out, &spec.InitContainers[i])
	}
	for i := range spec.Containers {
		out = append(out, &spec.Containers[i])
	}
	return out
}
