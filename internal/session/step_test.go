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

package session

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/namespace"
	"github.com/mikelane/kubepipe/internal/pod"
)

var _ = Describe("Run", func() {
	var (
		ctx     context.Context
		c       client.Client
		scripts *recordingRunner
		deps    Deps
	)

	BeforeEach(func() {
		ctx = context.Background()
		c = newFakeClient()
		scripts = &recordingRunner{}
		deps = newDeps(c, memFetcher{
			"https://example.com/env.yml":     []byte(serviceManifest),
			"https://example.com/teardown.sh": []byte("echo teardown"),
		}, scripts)
	})

	namespaceExists := func(name string) bool {
		err := c.Get(ctx, types.NamespacedName{Name: name}, &corev1.Namespace{})
		if apierrors.IsNotFound(err) {
			return false
		}
		Expect(err).NotTo(HaveOccurred())
		return true
	}

	Context("with a session step", func() {
		It("runs the body in a generated namespace and destroys it afterwards", func() {
			var seen *Scope
			err := Run(ctx, deps, config.StepOptions{}, SessionStep{}, func(ctx context.Context, scope *Scope) error {
				seen = scope
				Expect(namespaceExists(scope.Namespace)).To(BeTrue())
				return nil
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(seen).NotTo(BeNil())
			Expect(seen.Namespace).To(HavePrefix(DefaultPrefix + "-"))
			Expect(seen.Env).To(HaveKeyWithValue(EnvNamespace, seen.Namespace))
			Expect(seen.Env).To(HaveKeyWithValue(EnvMaster, "https://api.example.com:6443"))
			Expect(namespaceExists(seen.Namespace)).To(BeFalse())
		})

		It("keeps a namespace the caller named", func() {
			err := Run(ctx, deps, config.StepOptions{Name: "named"}, SessionStep{}, func(context.Context, *Scope) error {
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(namespaceExists("named")).To(BeTrue())
		})

		It("destroys a named namespace when asked to", func() {
			opts := config.StepOptions{Name: "named", Destroy: ptr.To(true)}
			Expect(Run(ctx, deps, opts, SessionStep{}, nil)).To(Succeed())
			Expect(namespaceExists("named")).To(BeFalse())
		})

		It("uses the prefix for generated names", func() {
			var ns string
			err := Run(ctx, deps, config.StepOptions{Prefix: "it"}, SessionStep{}, func(_ context.Context, scope *Scope) error {
				ns = scope.Namespace
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(ns).To(MatchRegexp("^it-[bcdfghjklmnpqrstvwxz0-9]{5}$"))
		})

		It("stops the session when the body fails", func() {
			boom := errors.New("tests failed")
			var ns string
			err := Run(ctx, deps, config.StepOptions{TeardownScriptURL: "https://example.com/teardown.sh"}, SessionStep{},
				func(_ context.Context, scope *Scope) error {
					ns = scope.Namespace
					return boom
				})

			Expect(errors.Is(err, boom)).To(BeTrue())
			Expect(scripts.Calls()).To(HaveLen(1))
			Expect(namespaceExists(ns)).To(BeFalse())
		})

		It("stops the session when the context is canceled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			var ns string
			err := Run(runCtx, deps, config.StepOptions{}, SessionStep{}, func(_ context.Context, scope *Scope) error {
				ns = scope.Namespace
				cancel()
				return nil
			})

			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(namespaceExists(ns)).To(BeFalse())
		})

		It("stops the session when it fails to start", func() {
			opts := config.StepOptions{Name: "absent", LazyCreate: ptr.To(false), TeardownScriptURL: "https://example.com/teardown.sh"}
			called := false
			err := Run(ctx, deps, opts, SessionStep{}, func(context.Context, *Scope) error {
				called = true
				return nil
			})

			var notFound *namespace.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue(), "unexpected error %v", err)
			Expect(called).To(BeFalse())
			Expect(scripts.Calls()).To(HaveLen(1))
		})
	})

	Context("with a namespace step", func() {
		It("makes the namespace current for nested steps", func() {
			var inner string
			err := Run(ctx, deps, config.StepOptions{Name: "outer", Destroy: ptr.To(true)}, &NamespaceStep{},
				func(ctx context.Context, outer *Scope) error {
					Expect(CurrentNamespace(deps.Stack, "fallback")).To(Equal("outer"))
					return Run(ctx, deps, config.StepOptions{}, SessionStep{}, func(_ context.Context, scope *Scope) error {
						inner = scope.Namespace
						return nil
					})
				})
			Expect(err).NotTo(HaveOccurred())

			Expect(inner).To(Equal("outer"))
			Expect(CurrentNamespace(deps.Stack, "fallback")).To(Equal("fallback"))
			Expect(namespaceExists("outer")).To(BeFalse())
		})

		It("keeps the enclosing namespace current when a nested step cannot start", func() {
			err := Run(ctx, deps, config.StepOptions{Name: "outer"}, &NamespaceStep{},
				func(ctx context.Context, _ *Scope) error {
					nested := config.StepOptions{Name: "absent", LazyCreate: ptr.To(false), Destroy: ptr.To(true)}
					err := Run(ctx, deps, nested, &NamespaceStep{}, func(context.Context, *Scope) error {
						Fail("body of a step that did not start")
						return nil
					})
					var notFound *namespace.NotFoundError
					Expect(errors.As(err, &notFound)).To(BeTrue(), "unexpected error %v", err)

					Expect(CurrentNamespace(deps.Stack, "fallback")).To(Equal("outer"))
					return nil
				})
			Expect(err).NotTo(HaveOccurred())

			Expect(CurrentNamespace(deps.Stack, "fallback")).To(Equal("fallback"))
			Expect(namespaceExists("outer")).To(BeTrue())
		})
	})

	Context("with a create environment step", func() {
		It("leaves the environment running", func() {
			opts := config.StepOptions{Name: "env", Destroy: ptr.To(true), EnvironmentConfigURL: "https://example.com/env.yml"}
			Expect(Run(ctx, deps, opts, CreateEnvironmentStep{}, nil)).To(Succeed())

			Expect(namespaceExists("env")).To(BeTrue())
			Expect(c.Get(ctx, types.NamespacedName{Name: "web", Namespace: "env"}, &corev1.Service{})).To(Succeed())
		})

		It("tears the environment down when it cannot be created", func() {
			opts := config.StepOptions{Name: "env", Destroy: ptr.To(true), EnvironmentConfigURL: "https://example.com/missing.yml"}
			err := Run(ctx, deps, opts, CreateEnvironmentStep{}, nil)

			Expect(err).To(MatchError(ContainSubstring("missing.yml")))
			Expect(namespaceExists("env")).To(BeFalse())
		})
	})

	Context("with a pod step", func() {
		var (
			clientset *k8sfake.Clientset
			fw        *watch.RaceFreeFakeWatcher
		)

		BeforeEach(func() {
			clientset = k8sfake.NewSimpleClientset()
			fw = watch.NewRaceFreeFake()
			clientset.PrependWatchReactor("pods", k8stesting.DefaultWatchReactor(fw, nil))
			deps.Clientset = clientset
		})

		phase := func(p corev1.PodPhase) *corev1.Pod {
			return &corev1.Pod{
				ObjectMeta: metav1.ObjectMeta{Name: "build", Namespace: "ci"},
				Status:     corev1.PodStatus{Phase: p},
			}
		}

		listPods := func() []corev1.Pod {
			pods, err := clientset.CoreV1().Pods("ci").List(ctx, metav1.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			return pods.Items
		}

		It("hands a launcher for the running pod to the body and deletes the pod afterwards", func() {
			fw.Add(phase(corev1.PodPending))
			fw.Modify(phase(corev1.PodRunning))

			step := &PodStep{Spec: pod.Spec{Name: "build", Image: "maven:3", Env: map[string]string{"GOAL": "verify"}}}
			err := Run(ctx, deps, config.StepOptions{Name: "ci"}, step, func(_ context.Context, scope *Scope) error {
				Expect(scope.Launcher).NotTo(BeNil())
				Expect(scope.Launcher.Session.Name).To(HavePrefix("build-"))
				Expect(scope.Launcher.Session.Alive()).To(BeTrue())

				pods := listPods()
				Expect(pods).To(HaveLen(1))
				env := map[string]string{}
				for _, e := range pods[0].Spec.Containers[0].Env {
					env[e.Name] = e.Value
				}
				Expect(env).To(HaveKeyWithValue("GOAL", "verify"))
				Expect(env).To(HaveKeyWithValue(EnvNamespace, "ci"))
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(listPods()).To(BeEmpty())
		})

		It("fails when the pod ends before it runs", func() {
			fw.Modify(phase(corev1.PodFailed))

			called := false
			step := &PodStep{Spec: pod.Spec{Name: "build", Image: "maven:3"}}
			err := Run(ctx, deps, config.StepOptions{Name: "ci"}, step, func(context.Context, *Scope) error {
				called = true
				return nil
			})

			Expect(err).To(MatchError(ContainSubstring("ended before it was running")))
			Expect(called).To(BeFalse())
			Expect(listPods()).To(BeEmpty())
		})
	})
})

var _ = Describe("NewStep", func() {
	It("builds the registered steps", func() {
		for _, name := range []string{"session", "createEnvironment", "namespace"} {
			step, err := NewStep(name, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(step).NotTo(BeNil())
		}
	})

	It("builds a pod step from parameters", func() {
		step, err := NewStep("pod", map[string]string{"image": "golang:1.24", "privileged": "true", "followLogs": "true"})
		Expect(err).NotTo(HaveOccurred())

		ps, ok := step.(*PodStep)
		Expect(ok).To(BeTrue())
		Expect(ps.Spec.Image).To(Equal("golang:1.24"))
		Expect(ps.Spec.Name).To(Equal("kubepipe"))
		Expect(ps.Spec.Privileged).To(BeTrue())
		Expect(ps.FollowLogs).To(BeTrue())
	})

	DescribeTable("rejects bad input",
		func(name string, params map[string]string, want string) {
			_, err := NewStep(name, params)
			Expect(err).To(HaveOccurred())
			Expect(strings.Contains(err.Error(), want)).To(BeTrue(), err.Error())
		},
		Entry("unknown step", "deploy", nil, "unknown step"),
		Entry("pod without image", "pod", map[string]string{}, "requires an image"),
		Entry("bad flag", "pod", map[string]string{"image": "a", "privileged": "maybe"}, "invalid privileged"),
	)
})
