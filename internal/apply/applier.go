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

// Package apply applies manifests to a namespace: it orders the resources,
// rewrites images to the target registry, records environment annotations,
// exposes services and optionally waits until everything is ready.
package apply

import (
	"context"
	"fmt"
	"maps"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/ingress"
	"github.com/mikelane/kubepipe/internal/manifest"
	"github.com/mikelane/kubepipe/internal/namespace"
	"github.com/mikelane/kubepipe/internal/openshift"
	"github.com/mikelane/kubepipe/internal/sanitize"
)

// DefaultPollInterval is how often readiness is checked.
const DefaultPollInterval = 2 * time.Second

// Action is what apply did to a resource.
type Action string

const (
	ActionCreated   Action = "Created"
	ActionUpdated   Action = "Updated"
	ActionUnchanged Action = "Unchanged"
	ActionRecreated Action = "Recreated"
)

// AppliedResource is one applied resource and the object as sent to the cluster.
type AppliedResource struct {
	Kind      string
	Name      string
	Namespace string
	Action    Action
	Object    client.Object
}

func (r AppliedResource) String() string {
	if r.Namespace == "" {
		return r.Kind + "/" + r.Name
	}
	return r.Kind + "/" + r.Namespace + "/" + r.Name
}

// Result is the outcome of an apply. The maps are filled during apply and
// only read afterwards.
type Result struct {
	Applied            []AppliedResource
	serviceURLs        map[string]string
	deploymentVersions map[string]string
}

func newResult() *Result {
	return &Result{serviceURLs: map[string]string{}, deploymentVersions: map[string]string{}}
}

// ServiceURLs maps service names to the URL they are reachable at.
func (r *Result) ServiceURLs() map[string]string {
	return maps.Clone(r.serviceURLs)
}

// DeploymentVersions maps workload names to the version they run.
func (r *Result) DeploymentVersions() map[string]string {
	return maps.Clone(r.deploymentVersions)
}

// Options configure an Applier. The zero value applies manifests unchanged
// and does not wait.
type Options struct {
	// Registry is prefixed to images without a registry.
	Registry string
	// Domain is the host suffix of generated routes and ingress rules.
	Domain string
	// CertIssuer is the cert-manager cluster issuer for the generated ingress.
	CertIssuer string
	// OpenShift generates Routes instead of an Ingress.
	OpenShift bool
	// ServicePatch renames services with invalid DNS names.
	ServicePatch bool
	// RequireNamespace fails with a *namespace.NotFoundError instead of
	// creating a missing namespace.
	RequireNamespace bool
	// DeletePodsOnReplicationControllerUpdate deletes the pods of an updated
	// replication controller so they pick up the new template.
	DeletePodsOnReplicationControllerUpdate bool
	// ReadinessTimeout bounds the readiness wait. Zero does not wait.
	ReadinessTimeout time.Duration
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// Environment is the display name put on deployment events.
	Environment string
	// Annotator records environment annotations when set.
	Annotator *Annotator
	// Events receives deployment events when set.
	Events EventSink
	// Lookup reads JOB_NAME and VERSION for events. Nil means the process
	// environment.
	Lookup config.LookupFunc
}

// Applier applies manifests to a cluster.
type Applier struct {
	client     client.Client
	namespaces *namespace.Manager
	ingress    *ingress.Manager
	opts       Options
}

// NewApplier creates an applier. namespaces checks and creates the target namespace.
func NewApplier(c client.Client, namespaces *namespace.Manager, opts Options) *Applier {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Applier{
		client:     c,
		namespaces: namespaces,
		ingress:    ingress.NewManager(c, opts.Domain, opts.CertIssuer),
		opts:       opts,
	}
}

// Apply parses data and applies its resources to targetNamespace. When the
// readiness wait times out the result is returned together with a
// *ReadinessTimeoutError.
func (a *Applier) Apply(ctx context.Context, data []byte, targetNamespace string) (*Result, error) {
	set, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}
	return a.ApplySet(ctx, set, targetNamespace)
}

// ApplySet applies already parsed resources. The entities are modified.
func (a *Applier) ApplySet(ctx context.Context, set *manifest.Set, targetNamespace string) (*Result, error) {
	logger := log.FromContext(ctx).WithValues("namespace", targetNamespace)
	ctx = log.IntoContext(ctx, logger)

	if err := a.namespaces.Ensure(ctx, targetNamespace, !a.opts.RequireNamespace, namespace.Metadata{}); err != nil {
		return nil, err
	}

	set = a.assignNamespace(ctx, set, targetNamespace)
	set = sanitize.Patcher{Enabled: a.opts.ServicePatch}.Patch(ctx, set)
	if a.opts.OpenShift {
		a.addRoutes(ctx, set, targetNamespace)
	}
	if a.opts.Annotator != nil {
		for _, e := range set.Items() {
			a.opts.Annotator.Annotate(ctx, e)
		}
	}
	if a.opts.Registry != "" {
		logger.Info("adapting resources to pull images from registry", "registry", a.opts.Registry)
		if err := rewriteImages(set, a.opts.Registry); err != nil {
			return nil, err
		}
	}

	result := newResult()
	var services []*corev1.Service
	for _, e := range set.Items() {
		applied, err := a.applyEntity(ctx, e)
		if err != nil {
			return result, fmt.Errorf("failed to apply %s: %w", e, err)
		}
		logger.Info("applied resource", "resource", applied.String(), "action", applied.Action)
		result.Applied = append(result.Applied, applied)

		switch o := e.Object.(type) {
		case *corev1.Service:
			services = append(services, o)
		case *openshift.Route:
			if o.Spec.To.Kind == "Service" && o.Spec.Host != "" {
				result.serviceURLs[o.Spec.To.Name] = "http://" + o.Spec.Host
			}
		}
		if e.IsWorkload() {
			if v := versionOf(e); v != "" {
				result.deploymentVersions[e.Name()] = v
			}
			a.notify(ctx, e, targetNamespace)
		}
	}

	if !a.opts.OpenShift && a.opts.Domain != "" {
		hosts, err := a.ingress.EnsureIngress(ctx, targetNamespace, services)
		if err != nil {
			return result, err
		}
		for name, host := range hosts {
			result.serviceURLs[name] = "http://" + host
		}
	}
	for _, svc := range services {
		if _, ok := result.serviceURLs[svc.Name]; !ok && len(svc.Spec.Ports) > 0 {
			result.serviceURLs[svc.Name] = fmt.Sprintf("http://%s.%s.svc:%d", svc.Name, svc.Namespace, svc.Spec.Ports[0].Port)
		}
	}

	if err := a.waitReady(ctx, result.Applied); err != nil {
		return result, err
	}
	return result, nil
}

// assignNamespace puts namespaced resources without a namespace into
// targetNamespace. Cluster scoped resources keep their empty namespace.
func (a *Applier) assignNamespace(ctx context.Context, set *manifest.Set, targetNamespace string) *manifest.Set {
	items := set.Items()
	for _, e := range items {
		if e.Namespace() != "" {
			continue
		}
		namespaced, err := a.client.IsObjectNamespaced(e.Object)
		if err != nil {
			log.FromContext(ctx).V(1).Info("cannot tell whether resource is namespaced, assuming it is",
				"resource", e.String(), "error", err.Error())
			namespaced = true
		}
		if namespaced {
			e.Object.SetNamespace(targetNamespace)
		}
	}
	return manifest.NewSet(items...)
}

// applyEntity routes e to the apply operation of its kind.
func (a *Applier) applyEntity(ctx context.Context, e manifest.Entity) (AppliedResource, error) {
	var (
		action Action
		err    error
	)
	switch o := e.Object.(type) {
	case *corev1.Pod:
		action, err = a.applyPod(ctx, o)
	case *corev1.Service:
		action, err = a.applyService(ctx, o)
	case *corev1.ReplicationController:
		action, err = a.applyReplicationController(ctx, o)
	default:
		action, err = a.applyGeneric(ctx, e.Object)
	}
	return AppliedResource{
		Kind:      e.KindName(),
		Name:      e.Name(),
		Namespace: e.Namespace(),
		Action:    action,
		Object:    e.Object,
	}, err
}

// applyPod creates the pod. Pods are immutable, so a pod whose containers
// changed is deleted and created again.
func (a *Applier) applyPod(ctx context.Context, desired *corev1.Pod) (Action, error) {
	live := &corev1.Pod{}
	err := a.client.Get(ctx, client.ObjectKeyFromObject(desired), live)
	if apierrors.IsNotFound(err) {
		return ActionCreated, a.client.Create(ctx, desired.DeepCopy())
	}
	if err != nil {
		return "", err
	}
	if !podChanged(desired, live) {
		return ActionUnchanged, nil
	}

	log.FromContext(ctx).Info("pod changed, recreating", "pod", desired.Name)
	if err := a.client.Delete(ctx, live); client.IgnoreNotFound(err) != nil {
		return "", err
	}
	err = wait.PollUntilContextTimeout(ctx, a.opts.PollInterval, podDeleteTimeout, true, func(ctx context.Context) (bool, error) {
		err := a.client.Get(ctx, client.ObjectKeyFromObject(desired), &corev1.Pod{})
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, err
	})
	if err != nil {
		return "", fmt.Errorf("waiting for old pod to go away: %w", err)
	}
	return ActionRecreated, a.client.Create(ctx, desired.DeepCopy())
}

const podDeleteTimeout = 2 * time.Minute

// podChanged compares what the manifest controls about the containers.
func podChanged(desired, live *corev1.Pod) bool {
	type view struct {
		Name    string
		Image   string
		Command []string
		Args    []string
		Env     []corev1.EnvVar
	}
	project := func(cs []corev1.Container) []view {
		out := make([]view, 0, len(cs))
		for _, c := range cs {
			out = append(out, view{c.Name, c.Image, c.Command, c.Args, c.Env})
		}
		return out
	}
	return !equality.Semantic.DeepEqual(project(desired.Spec.Containers), project(live.Spec.Containers)) ||
		!equality.Semantic.DeepEqual(project(desired.Spec.InitContainers), project(live.Spec.InitContainers))
}

// applyService creates or updates the service, keeping the cluster IPs the
// server assigned.
func (a *Applier) applyService(ctx context.Context, desired *corev1.Service) (Action, error) {
	live := &corev1.Service{}
	live.Name, live.Namespace = desired.Name, desired.Namespace

	op, err := controllerutil.CreateOrUpdate(ctx, a.client, live, func() error {
		clusterIP, clusterIPs := live.Spec.ClusterIP, live.Spec.ClusterIPs
		mergeMetadata(live, desired)
		live.Spec = *desired.Spec.DeepCopy()
		if clusterIP != "" {
			live.Spec.ClusterIP = clusterIP
			live.Spec.ClusterIPs = clusterIPs
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	desired.Spec.ClusterIP, desired.Spec.ClusterIPs = live.Spec.ClusterIP, live.Spec.ClusterIPs
	return actionFor(op), nil
}

// applyReplicationController creates or updates the controller and, when
// configured, deletes its pods after an update.
func (a *Applier) applyReplicationController(ctx context.Context, desired *corev1.ReplicationController) (Action, error) {
	live := &corev1.ReplicationController{}
	live.Name, live.Namespace = desired.Name, desired.Namespace

	op, err := controllerutil.CreateOrUpdate(ctx, a.client, live, func() error {
		mergeMetadata(live, desired)
		live.Spec = *desired.Spec.DeepCopy()
		return nil
	})
	if err != nil {
		return "", err
	}

	if op == controllerutil.OperationResultUpdated && a.opts.DeletePodsOnReplicationControllerUpdate && len(desired.Spec.Selector) > 0 {
		log.FromContext(ctx).Info("deleting pods of updated replication controller", "replicationController", desired.Name)
		err := a.client.DeleteAllOf(ctx, &corev1.Pod{},
			client.InNamespace(desired.Namespace),
			client.MatchingLabels(desired.Spec.Selector))
		if err != nil {
			return "", fmt.Errorf("failed to delete pods: %w", err)
		}
	}
	return actionFor(op), nil
}

// applyGeneric creates or overwrites any other resource.
func (a *Applier) applyGeneric(ctx context.Context, desired client.Object) (Action, error) {
	live, ok := desired.DeepCopyObject().(client.Object)
	if !ok {
		return "", fmt.Errorf("unexpected object %T", desired)
	}
	op, err := controllerutil.CreateOrUpdate(ctx, a.client, live, func() error {
		return overwrite(live, desired)
	})
	if err != nil {
		return "", err
	}
	return actionFor(op), nil
}

func actionFor(op controllerutil.OperationResult) Action {
	switch op {
	case controllerutil.OperationResultCreated:
		return ActionCreated
	case controllerutil.OperationResultNone:
		return ActionUnchanged
	default:
		return ActionUpdated
	}
}

// mergeMetadata copies the labels and annotations of desired onto live.
func mergeMetadata(live, desired client.Object) {
	live.SetLabels(mergeMaps(live.GetLabels(), desired.GetLabels()))
	live.SetAnnotations(mergeMaps(live.GetAnnotations(), desired.GetAnnotations()))
}

func mergeMaps(base, overlay map[string]string) map[string]string {
	if len(overlay) == 0 {
		return base
	}
	out := maps.Clone(base)
	if out == nil {
		out = map[string]string{}
	}
	maps.Copy(out, overlay)
	return out
}

// versionOf returns the "version" label of a workload or its pod template,
// falling back to the tag of its first container image.
func versionOf(e manifest.Entity) string {
	if v := e.Object.GetLabels()["version"]; v != "" {
		return v
	}
	switch o := e.Object.(type) {
	case *corev1.ReplicationController:
		if o.Spec.Template != nil && o.Spec.Template.Labels["version"] != "" {
			return o.Spec.Template.Labels["version"]
		}
	case *appsv1.ReplicaSet:
		if v := o.Spec.Template.Labels["version"]; v != "" {
			return v
		}
	case *appsv1.Deployment:
		if v := o.Spec.Template.Labels["version"]; v != "" {
			return v
		}
	case *openshift.DeploymentConfig:
		if o.Spec.Template != nil && o.Spec.Template.Labels["version"] != "" {
			return o.Spec.Template.Labels["version"]
		}
	}
	if spec := e.PodSpec(); spec != nil && len(spec.Containers) > 0 {
		if m := imageName.FindStringSubmatch(spec.Containers[0].Image); m != nil {
			return m[2]
		}
	}
	return ""
}
