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

// Struct field order follows the OpenShift API for JSON serialization compatibility.
//
//nolint:govet // fieldalignment warnings ignored - field order matches the OpenShift API
package openshift

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/intstr"
)

var (
	// RouteGroupVersion is the group version of Route objects
	RouteGroupVersion = schema.GroupVersion{Group: "route.openshift.io", Version: "v1"}
	// AppsGroupVersion is the group version of DeploymentConfig objects
	AppsGroupVersion = schema.GroupVersion{Group: "apps.openshift.io", Version: "v1"}
	// ProjectGroupVersion is the group version of Project and ProjectRequest objects
	ProjectGroupVersion = schema.GroupVersion{Group: "project.openshift.io", Version: "v1"}
)

// SchemeBuilder is used to add go types to the GroupVersionKind scheme
var SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)

// AddToScheme adds the OpenShift types to the given scheme.
var AddToScheme = SchemeBuilder.AddToScheme

func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(RouteGroupVersion,
		&Route{},
		&RouteList{},
	)
	metav1.AddToGroupVersion(scheme, RouteGroupVersion)

	scheme.AddKnownTypes(AppsGroupVersion,
		&DeploymentConfig{},
		&DeploymentConfigList{},
	)
	metav1.AddToGroupVersion(scheme, AppsGroupVersion)

	scheme.AddKnownTypes(ProjectGroupVersion,
		&Project{},
		&ProjectList{},
		&ProjectRequest{},
	)
	metav1.AddToGroupVersion(scheme, ProjectGroupVersion)
	return nil
}

// Route exposes a service at a host name
// +kubebuilder:object:root=true
type Route struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              RouteSpec   `json:"spec"`
	Status            RouteStatus `json:"status,omitempty"`
}

// DeepCopyObject returns a deep copy of the Route
func (in *Route) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(Route)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *Route) DeepCopyInto(out *Route) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopy returns a deep copy of the Route
func (in *Route) DeepCopy() *Route {
	if in == nil {
		return nil
	}
	out := new(Route)
	in.DeepCopyInto(out)
	return out
}

// RouteList is a list of Route resources
type RouteList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Route `json:"items"`
}

// DeepCopyObject returns a deep copy of the RouteList
func (in *RouteList) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(RouteList)
	*out = *in
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Route, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
	return out
}

// RouteSpec describes the host and the service a Route points at
type RouteSpec struct {
	// Host is an alias/DNS that points to the service
	Host string `json:"host,omitempty"`
	// Path that the router watches for
	Path string `json:"path,omitempty"`
	// To is the object this route points to
	To RouteTargetReference `json:"to"`
	// Port is the target port on the pods selected by the service
	Port *RoutePort `json:"port,omitempty"`
	// TLS configuration, kept verbatim
	TLS *runtime.RawExtension `json:"tls,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *RouteSpec) DeepCopyInto(out *RouteSpec) {
	*out = *in
	in.To.DeepCopyInto(&out.To)
	if in.Port != nil {
		out.Port = new(RoutePort)
		*out.Port = *in.Port
	}
	if in.TLS != nil {
		out.TLS = in.TLS.DeepCopy()
	}
}

// RouteTargetReference names the object a Route points at
type RouteTargetReference struct {
	// Kind of the referent, normally Service
	Kind string `json:"kind"`
	// Name of the referent
	Name string `json:"name"`
	// Weight of the backend
	Weight *int32 `json:"weight,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *RouteTargetReference) DeepCopyInto(out *RouteTargetReference) {
	*out = *in
	if in.Weight != nil {
		w := *in.Weight
		out.Weight = &w
	}
}

// RoutePort selects the service port a Route targets
type RoutePort struct {
	TargetPort intstr.IntOrString `json:"targetPort"`
}

// RouteStatus is the observed state of a Route
type RouteStatus struct {
	Ingress []RouteIngress `json:"ingress,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *RouteStatus) DeepCopyInto(out *RouteStatus) {
	*out = *in
	if in.Ingress != nil {
		out.Ingress = make([]RouteIngress, len(in.Ingress))
		for i := range in.Ingress {
			out.Ingress[i] = in.Ingress[i]
			if in.Ingress[i].Conditions != nil {
				out.Ingress[i].Conditions = make([]RouteIngressCondition, len(in.Ingress[i].Conditions))
				copy(out.Ingress[i].Conditions, in.Ingress[i].Conditions)
			}
		}
	}
}

// RouteIngress is the status of a Route on one router
type RouteIngress struct {
	Host       string                  `json:"host,omitempty"`
	RouterName string                  `json:"routerName,omitempty"`
	Conditions []RouteIngressCondition `json:"conditions,omitempty"`
}

// RouteIngressCondition reports whether a router admitted the Route
type RouteIngressCondition struct {
	Type    string                 `json:"type"`
	Status  corev1.ConditionStatus `json:"status"`
	Reason  string                 `json:"reason,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// DeploymentConfig is the OpenShift workload controller
// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
type DeploymentConfig struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              DeploymentConfigSpec   `json:"spec"`
	Status            DeploymentConfigStatus `json:"status,omitempty"`
}

// DeepCopyObject returns a deep copy of the DeploymentConfig
func (in *DeploymentConfig) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(DeploymentConfig)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *DeploymentConfig) DeepCopyInto(out *DeploymentConfig) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	out.Status = in.Status
}

// DeepCopy returns a deep copy of the DeploymentConfig
func (in *DeploymentConfig) DeepCopy() *DeploymentConfig {
	if in == nil {
		return nil
	}
	out := new(DeploymentConfig)
	in.DeepCopyInto(out)
	return out
}

// DeploymentConfigList is a list of DeploymentConfig resources
type DeploymentConfigList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []DeploymentConfig `json:"items"`
}

// DeepCopyObject returns a deep copy of the DeploymentConfigList
func (in *DeploymentConfigList) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(DeploymentConfigList)
	*out = *in
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]DeploymentConfig, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
	return out
}

// DeploymentConfigSpec is the desired state of a DeploymentConfig
type DeploymentConfigSpec struct {
	// Strategy describes how a deployment is executed
	Strategy DeploymentStrategy `json:"strategy,omitempty"`
	// MinReadySeconds before a new pod counts as available
	MinReadySeconds int32 `json:"minReadySeconds,omitempty"`
	// Triggers drive new deployments, kept verbatim
	Triggers []runtime.RawExtension `json:"triggers,omitempty"`
	// Replicas is the desired number of pods
	Replicas int32 `json:"replicas"`
	// RevisionHistoryLimit is the number of old controllers to retain
	RevisionHistoryLimit *int32 `json:"revisionHistoryLimit,omitempty"`
	// Test ensures the config only runs while a deployment is in progress
	Test bool `json:"test,omitempty"`
	// Paused stops triggers from creating deployments
	Paused bool `json:"paused,omitempty"`
	// Selector is a label query over pods
	Selector map[string]string `json:"selector,omitempty"`
	// Template describes the pods that will be created
	Template *corev1.PodTemplateSpec `json:"template,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *DeploymentConfigSpec) DeepCopyInto(out *DeploymentConfigSpec) {
	*out = *in
	in.Strategy.DeepCopyInto(&out.Strategy)
	if in.Triggers != nil {
		out.Triggers = make([]runtime.RawExtension, len(in.Triggers))
		for i := range in.Triggers {
			in.Triggers[i].DeepCopyInto(&out.Triggers[i])
		}
	}
	if in.RevisionHistoryLimit != nil {
		v := *in.RevisionHistoryLimit
		out.RevisionHistoryLimit = &v
	}
	if in.Selector != nil {
		out.Selector = make(map[string]string, len(in.Selector))
		for key, val := range in.Selector {
			out.Selector[key] = val
		}
	}
	if in.Template != nil {
		out.Template = in.Template.DeepCopy()
	}
}

// DeploymentStrategy describes how to perform a deployment
type DeploymentStrategy struct {
	Type                  string                `json:"type,omitempty"`
	CustomParams          *runtime.RawExtension `json:"customParams,omitempty"`
	RecreateParams        *runtime.RawExtension `json:"recreateParams,omitempty"`
	RollingParams         *runtime.RawExtension `json:"rollingParams,omitempty"`
	ActiveDeadlineSeconds *int64                `json:"activeDeadlineSeconds,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *DeploymentStrategy) DeepCopyInto(out *DeploymentStrategy) {
	*out = *in
	if in.CustomParams != nil {
		out.CustomParams = in.CustomParams.DeepCopy()
	}
	if in.RecreateParams != nil {
		out.RecreateParams = in.RecreateParams.DeepCopy()
	}
	if in.RollingParams != nil {
		out.RollingParams = in.RollingParams.DeepCopy()
	}
	if in.ActiveDeadlineSeconds != nil {
		v := *in.ActiveDeadlineSeconds
		out.ActiveDeadlineSeconds = &v
	}
}

// DeploymentConfigStatus is the observed state of a DeploymentConfig
type DeploymentConfigStatus struct {
	LatestVersion       int64 `json:"latestVersion,omitempty"`
	ObservedGeneration  int64 `json:"observedGeneration,omitempty"`
	Replicas            int32 `json:"replicas,omitempty"`
	UpdatedReplicas     int32 `json:"updatedReplicas,omitempty"`
	AvailableReplicas   int32 `json:"availableReplicas,omitempty"`
	UnavailableReplicas int32 `json:"unavailableReplicas,omitempty"`
	ReadyReplicas       int32 `json:"readyReplicas,omitempty"`
}

// Project is the OpenShift view of a namespace
// +kubebuilder:object:root=true
type Project struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              ProjectSpec   `json:"spec,omitempty"`
	Status            ProjectStatus `json:"status,omitempty"`
}

// DeepCopyObject returns a deep copy of the Project
func (in *Project) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(Project)
	*out = *in
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	if in.Spec.Finalizers != nil {
		out.Spec.Finalizers = make([]corev1.FinalizerName, len(in.Spec.Finalizers))
		copy(out.Spec.Finalizers, in.Spec.Finalizers)
	}
	return out
}

// ProjectSpec describes the attributes of a Project
type ProjectSpec struct {
	Finalizers []corev1.FinalizerName `json:"finalizers,omitempty"`
}

// ProjectStatus is the observed state of a Project
type ProjectStatus struct {
	Phase corev1.NamespacePhase `json:"phase,omitempty"`
}

// ProjectList is a list of Project resources
type ProjectList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Project `json:"items"`
}

// DeepCopyObject returns a deep copy of the ProjectList
func (in *ProjectList) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(ProjectList)
	*out = *in
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Project, len(in.Items))
		for i := range in.Items {
			out.Items[i] = *in.Items[i].DeepCopyObject().(*Project)
		}
	}
	return out
}

// ProjectRequest asks the server to provision a new Project
// +kubebuilder:object:root=true
type ProjectRequest struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	Description       string `json:"description,omitempty"`
}

// DeepCopyObject returns a deep copy of the ProjectRequest
func (in *ProjectRequest) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(ProjectRequest)
	*out = *in
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	return out
}
