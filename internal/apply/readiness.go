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
	"errors"
	"fmt"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	discoveryv1 "k8s.io/api/discovery/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/openshift"
)

// ReadinessTimeoutError is returned when resources are not ready in time.
type ReadinessTimeoutError struct {
	Timeout time.Duration
	Ready   []string
	Pending []string
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("gave up waiting after %s: %d ready, still pending: %s",
		e.Timeout, len(e.Ready), strings.Join(e.Pending, ", "))
}

// waitReady polls the applied workloads until they are all ready.
func (a *Applier) waitReady(ctx context.Context, applied []AppliedResource) error {
	timeout := a.opts.ReadinessTimeout
	if timeout <= 0 {
		return nil
	}
	logger := log.FromContext(ctx)
	logger.Info("waiting for resources to become ready", "timeout", timeout.String())

	var ready, pending []string
	err := wait.PollUntilContextTimeout(ctx, a.opts.PollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		ready, pending = ready[:0], pending[:0]
		for _, r := range applied {
			ok, err := a.isReady(ctx, r.Object)
			if err != nil {
				logger.V(1).Info("readiness check failed", "resource", r.String(), "error", err.Error())
			}
			if ok {
				ready = append(ready, r.String())
			} else {
				pending = append(pending, r.String())
			}
		}
		return len(pending) == 0, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ReadinessTimeoutError{Timeout: timeout, Ready: ready, Pending: pending}
	}
	logger.Info("all resources ready", "count", len(ready))
	return nil
}

// isReady fetches the live state of obj and reports whether it is ready.
// Only workloads are checked, everything else is ready once applied.
func (a *Applier) isReady(ctx context.Context, obj client.Object) (bool, error) {
	switch obj.(type) {
	case *corev1.Pod, *corev1.ReplicationController, *appsv1.ReplicaSet, *appsv1.Deployment, *openshift.DeploymentConfig:
	default:
		return true, nil
	}
	live, ok := obj.DeepCopyObject().(client.Object)
	if !ok {
		return true, nil
	}
	if err := a.client.Get(ctx, client.ObjectKeyFromObject(obj), live); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return Ready(live), nil
}

// Ready reports whether a workload has reached its desired state. Objects of
// other kinds are always ready.
func Ready(obj client.Object) bool {
	switch o := obj.(type) {
	case *corev1.Pod:
		return podReady(o)
	case *appsv1.Deployment:
		want := replicas(o.Spec.Replicas)
		return o.Status.ObservedGeneration >= o.Generation &&
			o.Status.UpdatedReplicas >= want &&
			o.Status.AvailableReplicas >= want
	case *appsv1.ReplicaSet:
		return o.Status.ReadyReplicas >= replicas(o.Spec.Replicas)
	case *corev1.ReplicationController:
		return o.Status.ReadyReplicas >= replicas(o.Spec.Replicas)
	case *openshift.DeploymentConfig:
		return o.Status.ReadyReplicas >= o.Spec.Replicas
	}
	return true
}

func podReady(pod *corev1.Pod) bool {
	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return true
	case corev1.PodRunning:
		for _, c := range pod.Status.Conditions {
			if c.Type == corev1.PodReady {
				return c.Status == corev1.ConditionTrue
			}
		}
	}
	return false
}

func replicas(r *int32) int32 {
	if r == nil {
		return 1
	}
	return *r
}

// WaitForServices waits until every named service in namespace has a ready
// endpoint. A timeout of zero returns immediately.
func (a *Applier) WaitForServices(ctx context.Context, namespace string, names []string, timeout time.Duration) error {
	if timeout <= 0 || len(names) == 0 {
		return nil
	}
	logger := log.FromContext(ctx).WithValues("namespace", namespace)
	logger.Info("waiting for services", "services", names, "timeout", timeout.String())

	var ready, pending []string
	err := wait.PollUntilContextTimeout(ctx, a.opts.PollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		ready, pending = ready[:0], pending[:0]
		for _, name := range names {
			ok, err := a.serviceReady(ctx, namespace, name)
			if err != nil {
				logger.V(1).Info("endpoint check failed", "service", name, "error", err.Error())
			}
			if ok {
				ready = append(ready, name)
			} else {
				pending = append(pending, name)
			}
		}
		return len(pending) == 0, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ReadinessTimeoutError{Timeout: timeout, Ready: ready, Pending: pending}
	}
	return nil
}

func (a *Applier) serviceReady(ctx context.Context, namespace, name string) (bool, error) {
	var slices discoveryv1.EndpointSliceList
	err := a.client.List(ctx, &slices,
		client.InNamespace(namespace),
		client.MatchingLabels{discoveryv1.LabelServiceName: name})
	if err != nil {
		return false, err
	}
	for _, slice := range slices.Items {
		for _, ep := range slice.Endpoints {
			if ep.Conditions.Ready == nil || *ep.Conditions.Ready {
				return true, nil
			}
		}
	}
	return false, nil
}

// Delete removes the resources of an apply in reverse order. Resources that
// are already gone are skipped.
func (a *Applier) Delete(ctx context.Context, result *Result) error {
	if result == nil {
		return nil
	}
	logger := log.FromContext(ctx)
	var errs []error
	for i := len(result.Applied) - 1; i >= 0; i-- {
		r := result.Applied[i]
		err := a.client.Delete(ctx, r.Object, client.PropagationPolicy(metav1.DeletePropagationBackground))
		if client.IgnoreNotFound(err) != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", r, err))
			continue
		}
		logger.Info("deleted resource", "resource", r.String())
	}
	return errors.Join(errs...)
}
