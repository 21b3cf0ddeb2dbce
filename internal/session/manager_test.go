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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/namespace"
)

const (
	serviceManifest = `apiVersion: v1
kind: Service
metadata:
  name: web
spec:
  ports:
  - port: 80
`
	configMapManifest = `{"apiVersion": "v1", "kind": "ConfigMap", "metadata": {"name": "settings"}, "data": {"mode": "ci"}}`
)

func noEnv(string) (string, bool) { return "", false }

func newDeps(c client.Client, fetcher Fetcher, scripts ScriptRunner) Deps {
	return Deps{
		Client:    c,
		Clientset: k8sfake.NewSimpleClientset(),
		MasterURL: "https://api.example.com:6443",
		Stack:     namespace.NewBuildStack(),
		Fetcher:   fetcher,
		Scripts:   scripts,
		Lookup:    noEnv,
	}
}

var _ = Describe("Manager", func() {
	var (
		ctx     context.Context
		c       client.Client
		scripts *recordingRunner
		fetcher memFetcher
		s       Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		c = newFakeClient()
		scripts = &recordingRunner{}
		fetcher = memFetcher{
			"https://example.com/setup.sh":    []byte("echo setup"),
			"https://example.com/teardown.sh": []byte("echo teardown"),
			"https://example.com/env.yml":     []byte(serviceManifest),
			"https://example.com/deps.json":   []byte(configMapManifest),
		}
		s = Session{ID: "b4x9z", Namespace: "temp-b4x9z", CreatedAt: time.Now()}
	})

	build := func(configure func(b *config.Builder)) *Manager {
		b := config.NewBuilder().
			WithMasterURL("https://api.example.com:6443").
			WithNamespace(s.Namespace).
			WithNamespaceLazyCreateEnabled(true).
			WithEnvironmentSetupScriptURL("https://example.com/setup.sh").
			WithEnvironmentTeardownScriptURL("https://example.com/teardown.sh").
			WithEnvironmentDependencies("https://example.com/deps.json").
			WithEnvironmentConfigURL("https://example.com/env.yml")
		if configure != nil {
			configure(b)
		}
		cfg, err := b.Build()
		Expect(err).NotTo(HaveOccurred())
		return NewManager(newDeps(c, fetcher, scripts), s, cfg)
	}

	Context("when starting", func() {
		It("creates the labelled namespace and applies the environment", func() {
			m := build(nil)
			Expect(m.Start(ctx)).To(Succeed())

			ns := &corev1.Namespace{}
			Expect(c.Get(ctx, types.NamespacedName{Name: "temp-b4x9z"}, ns)).To(Succeed())
			Expect(ns.Labels).To(HaveKeyWithValue(namespace.SessionLabel, "b4x9z"))
			Expect(ns.Labels).To(HaveKeyWithValue(namespace.ManagedByLabel, namespace.ManagedByValue))

			Expect(c.Get(ctx, types.NamespacedName{Name: "web", Namespace: "temp-b4x9z"}, &corev1.Service{})).To(Succeed())
			Expect(c.Get(ctx, types.NamespacedName{Name: "settings", Namespace: "temp-b4x9z"}, &corev1.ConfigMap{})).To(Succeed())

			results := m.Results()
			Expect(results).To(HaveLen(2))
			Expect(results[1].ServiceURLs()).To(HaveKeyWithValue("web", "http://web.temp-b4x9z.svc:80"))
		})

		It("runs the setup script with the session environment", func() {
			m := build(nil)
			Expect(m.Start(ctx)).To(Succeed())

			calls := scripts.Calls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Script).To(Equal("echo setup"))
			Expect(calls[0].Env).To(HaveKeyWithValue(EnvNamespace, "temp-b4x9z"))
			Expect(calls[0].Env).To(HaveKeyWithValue(EnvMaster, "https://api.example.com:6443"))
			Expect(calls[0].Env).To(HaveKeyWithValue(EnvSessionID, "b4x9z"))
		})

		It("does not apply anything when the setup script fails", func() {
			scripts.fail = true
			m := build(nil)

			err := m.Start(ctx)
			Expect(err).To(MatchError(ContainSubstring("environment setup failed")))
			Expect(m.Results()).To(BeEmpty())
		})

		It("names the manifest that could not be fetched", func() {
			delete(fetcher, "https://example.com/env.yml")
			m := build(nil)

			Expect(m.Start(ctx)).To(MatchError(ContainSubstring("https://example.com/env.yml")))
		})

		It("fails on a missing namespace when lazy creation is off", func() {
			m := build(func(b *config.Builder) { b.WithNamespaceLazyCreateEnabled(false) })

			var notFound *namespace.NotFoundError
			err := m.Start(ctx)
			Expect(errors.As(err, &notFound)).To(BeTrue(), "unexpected error %v", err)
			Expect(notFound.Name).To(Equal("temp-b4x9z"))
		})
	})

	Context("when stopping", func() {
		It("runs the teardown script only once", func() {
			m := build(nil)
			Expect(m.Start(ctx)).To(Succeed())

			Expect(m.Stop(ctx)).To(Succeed())
			Expect(m.Stop(ctx)).To(Succeed())

			calls := scripts.Calls()
			Expect(calls).To(HaveLen(2))
			Expect(calls[1].Script).To(Equal("echo teardown"))
		})

		It("keeps applied resources and the namespace by default", func() {
			m := build(nil)
			Expect(m.Start(ctx)).To(Succeed())
			Expect(m.Stop(ctx)).To(Succeed())

			Expect(c.Get(ctx, types.NamespacedName{Name: "temp-b4x9z"}, &corev1.Namespace{})).To(Succeed())
			Expect(c.Get(ctx, types.NamespacedName{Name: "web", Namespace: "temp-b4x9z"}, &corev1.Service{})).To(Succeed())
		})

		It("removes applied resources when cleanup is enabled", func() {
			m := build(func(b *config.Builder) { b.WithNamespaceCleanupEnabled(true) })
			Expect(m.Start(ctx)).To(Succeed())
			Expect(m.Stop(ctx)).To(Succeed())

			err := c.Get(ctx, types.NamespacedName{Name: "web", Namespace: "temp-b4x9z"}, &corev1.Service{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
			err = c.Get(ctx, types.NamespacedName{Name: "settings", Namespace: "temp-b4x9z"}, &corev1.ConfigMap{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("destroys the namespace when destroy is enabled", func() {
			m := build(func(b *config.Builder) { b.WithNamespaceDestroyEnabled(true) })
			Expect(m.Start(ctx)).To(Succeed())
			Expect(m.Stop(ctx)).To(Succeed())

			err := c.Get(ctx, types.NamespacedName{Name: "temp-b4x9z"}, &corev1.Namespace{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("reports a failed teardown script", func() {
			m := build(nil)
			Expect(m.Start(ctx)).To(Succeed())

			scripts.fail = true
			Expect(m.Stop(ctx)).To(MatchError(ContainSubstring("environment teardown failed")))
		})
	})
})
