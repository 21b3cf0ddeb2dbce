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

package pod

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/namespace"
)

const (
	// ContainerName is the name of the single container of a step pod.
	ContainerName = "podstep"
	// DefaultCommand keeps the container alive until commands are exec'ed into it.
	DefaultCommand = "cat"

	// SharedWorkspaceClaim is mounted at SharedWorkspacePath when no claim
	// exists for the job.
	SharedWorkspaceClaim = "jenkins-workspace"
	SharedWorkspacePath  = "/home/jenkins/workspace"
	jobClaimPrefix       = "jenkins-workspace-"

	// NameLabel carries the pod name.
	NameLabel = "kubepipe.io/pod"

	hostnameLabel = "kubernetes.io/hostname"
)

// VolumeType selects the source of a configured volume.
type VolumeType string

const (
	VolumeSecret   VolumeType = "Secret"
	VolumeHostPath VolumeType = "HostPath"
	VolumeEmptyDir VolumeType = "EmptyDir"
	VolumeClaim    VolumeType = "Claim"
)

// Volume is a volume mounted into the step container. Source is the secret
// name, host path or claim name; it is unused for empty dirs.
type Volume struct {
	Type      VolumeType
	Source    string
	MountPath string
	// Memory backs an empty dir with memory.
	Memory bool
}

// Spec describes a step pod.
type Spec struct {
	// Name is the base name; a unique suffix is added.
	Name           string
	Image          string
	Command        string
	Env            map[string]string
	Privileged     bool
	ServiceAccount string
	// Workspace is the build workspace, used as working directory.
	Workspace string
	// JobName selects the per job workspace claim.
	JobName string
	// Hostname is the name of the pod running the pipeline. The step pod is
	// scheduled on the same node when it can be found.
	Hostname string
	Volumes  []Volume
	Labels   map[string]string
}

// Controller creates and follows step pods in one namespace.
type Controller struct {
	clientset kubernetes.Interface
	namespace string
	newSuffix func() string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewController returns a controller for pods in namespace.
func NewController(clientset kubernetes.Interface, namespace string) *Controller {
	return &Controller{
		clientset: clientset,
		namespace: namespace,
		newSuffix: uuid.NewString,
		sessions:  map[string]*Session{},
	}
}

// Namespace returns the namespace the controller works in.
func (c *Controller) Namespace() string {
	return c.namespace
}

// Create builds the pod for spec, submits it and returns its session.
func (c *Controller) Create(ctx context.Context, spec Spec) (*Session, error) {
	name := spec.Name + "-" + c.newSuffix()
	logger := log.FromContext(ctx).WithValues("pod", name, "namespace", c.namespace)
	logger.Info("creating pod")

	pod := c.BuildPod(ctx, name, spec)
	if _, err := c.clientset.CoreV1().Pods(c.namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return nil, fmt.Errorf("failed to create pod %s in namespace %s: %w", name, c.namespace, err)
	}

	s := newSession(name, c.namespace)
	c.mu.Lock()
	c.sessions[name] = s
	c.mu.Unlock()
	return s, nil
}

// BuildPod assembles the pod object without creating it. It looks up the
// workspace claims and the node of spec.Hostname.
func (c *Controller) BuildPod(ctx context.Context, name string, spec Spec) *corev1.Pod {
	volumes, mounts := c.volumes(ctx, spec)

	command := spec.Command
	if command == "" {
		command = DefaultCommand
	}

	env := make([]corev1.EnvVar, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}
	sort.Slice(env, func(i, j int) bool { return env[i].Name < env[j].Name })

	labels := map[string]string{}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[namespace.ManagedByLabel] = namespace.ManagedByValue
	labels[NameLabel] = name

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: c.namespace,
			Labels:    labels,
		},
		Spec: corev1.PodSpec{
			NodeSelector:       c.nodeSelector(ctx, spec.Hostname),
			Volumes:            volumes,
			RestartPolicy:      corev1.RestartPolicyNever,
			ServiceAccountName: spec.ServiceAccount,
			Containers: []corev1.Container{{
				Name:         ContainerName,
				Image:        spec.Image,
				Command:      []string{"/bin/sh", "-c", command},
				Env:          env,
				WorkingDir:   spec.Workspace,
				Stdin:        true,
				TTY:          true,
				VolumeMounts: mounts,
				SecurityContext: &corev1.SecurityContext{
					Privileged: ptr.To(spec.Privileged),
				},
			}},
		},
	}
}

// volumes returns the workspace volume followed by the configured ones,
// named volume-1, volume-2 and so on.
func (c *Controller) volumes(ctx context.Context, spec Spec) ([]corev1.Volume, []corev1.VolumeMount) {
	logger := log.FromContext(ctx)
	var (
		volumes []corev1.Volume
		mounts  []corev1.VolumeMount
	)
	add := func(source corev1.VolumeSource, mountPath string) {
		name := "volume-" + strconv.Itoa(len(volumes)+1)
		volumes = append(volumes, corev1.Volume{Name: name, VolumeSource: source})
		mounts = append(mounts, corev1.VolumeMount{Name: name, MountPath: mountPath})
	}

	switch {
	case spec.Workspace == "":
		logger.V(1).Info("no workspace, not mounting one")
	case mountsWorkspace(spec.Volumes, spec.Workspace):
		logger.Info("found volume mount for workspace", "workspace", spec.Workspace)
	default:
		jobClaim := jobClaimPrefix + spec.JobName
		switch {
		case spec.JobName != "" && c.claimExists(ctx, jobClaim):
			logger.Info("using job claim for workspace", "claim", jobClaim, "workspace", spec.Workspace)
			add(claimSource(jobClaim), spec.Workspace)
		case c.claimExists(ctx, SharedWorkspaceClaim):
			logger.Info("using shared workspace claim", "claim", SharedWorkspaceClaim)
			add(claimSource(SharedWorkspaceClaim), SharedWorkspacePath)
		default:
			logger.Info("no workspace claim found, falling back to a host path volume", "workspace", spec.Workspace)
			add(corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: spec.Workspace}}, spec.Workspace)
		}
	}

	for _, v := range spec.Volumes {
		add(v.source(), v.MountPath)
	}
	return volumes, mounts
}

func (v Volume) source() corev1.VolumeSource {
	switch v.Type {
	case VolumeSecret:
		return corev1.VolumeSource{Secret: &corev1.SecretVolumeSource{SecretName: v.Source}}
	case VolumeHostPath:
		return corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: v.Source}}
	case VolumeClaim:
		return claimSource(v.Source)
	default:
		dir := &corev1.EmptyDirVolumeSource{}
		if v.Memory {
			dir.Medium = corev1.StorageMediumMemory
		}
		return corev1.VolumeSource{EmptyDir: dir}
	}
}

func claimSource(name string) corev1.VolumeSource {
	return corev1.VolumeSource{PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: name}}
}

// mountsWorkspace reports whether a configured volume is mounted at the
// workspace or its parent directory.
func mountsWorkspace(volumes []Volume, workspace string) bool {
	root := path.Dir(workspace)
	for _, v := range volumes {
		if v.MountPath == workspace || v.MountPath == root {
			return true
		}
	}
	return false
}

func (c *Controller) claimExists(ctx context.Context, name string) bool {
	_, err := c.clientset.CoreV1().PersistentVolumeClaims(c.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		log.FromContext(ctx).V(1).Info("cannot check claim", "claim", name, "error", err.Error())
	}
	return err == nil
}

// nodeSelector pins the pod to the node running hostname.
func (c *Controller) nodeSelector(ctx context.Context, hostname string) map[string]string {
	logger := log.FromContext(ctx)
	if hostname == "" {
		logger.Info("current pod name unknown, not pinning the step pod to a node")
		return nil
	}
	current, err := c.clientset.CoreV1().Pods(c.namespace).Get(ctx, hostname, metav1.GetOptions{})
	if err != nil || current.Spec.NodeName == "" {
		logger.Info("cannot find the node of the current pod", "pod", hostname, "namespace", c.namespace)
		return nil
	}
	nodeName := current.Spec.NodeName
	node, err := c.clientset.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if err == nil && node.Labels[hostnameLabel] != "" {
		nodeName = node.Labels[hostnameLabel]
	}
	return map[string]string{hostnameLabel: nodeName}
}

// Delete deletes the pod and closes every stream of its session. It reports
// false when the pod was already gone; its session is released all the same.
func (c *Controller) Delete(ctx context.Context, name string) (bool, error) {
	log.FromContext(ctx).Info("deleting pod", "pod", name, "namespace", c.namespace)
	err := c.clientset.CoreV1().Pods(c.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return false, fmt.Errorf("failed to delete pod %s in namespace %s: %w", name, c.namespace, err)
	}

	c.mu.Lock()
	s := c.sessions[name]
	delete(c.sessions, name)
	c.mu.Unlock()
	if s != nil {
		s.resources.Drain(ctx)
	}
	return err == nil, nil
}

// Session returns the session of a pod created by this controller.
func (c *Controller) Session(name string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[name]
	return s, ok
}

// Close closes the streams of every session. Pods are left running.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = map[string]*Session{}
	c.mu.Unlock()

	for _, s := range sessions {
		s.resources.Drain(ctx)
	}
}
