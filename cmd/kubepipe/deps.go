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

package main

import (
	"context"
	"fmt"
	"os"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/apply"
	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/exec"
	"github.com/mikelane/kubepipe/internal/kube"
	"github.com/mikelane/kubepipe/internal/namespace"
	"github.com/mikelane/kubepipe/internal/session"
)

// connect opens the cluster connection and assembles the step dependencies.
// The caller closes the connection.
func connect(ctx context.Context) (*kube.Connection, session.Deps, error) {
	settings, err := config.LoadSettings(nil)
	if err != nil {
		return nil, session.Deps{}, err
	}

	conn, err := kube.Connect(kubeconfig, kubeContext, masterURL)
	if err != nil {
		return nil, session.Deps{}, err
	}

	openShift, err := conn.IsOpenShift()
	if err != nil {
		log.FromContext(ctx).Info("could not detect OpenShift, assuming plain Kubernetes", "error", err.Error())
	}

	mapping, err := apply.LoadAnnotationMapping(apply.DefaultAnnotationOverrideFile)
	if err != nil {
		closeConnection(ctx, conn)
		return nil, session.Deps{}, err
	}

	fetcher := session.URLFetcher{}
	if settings.S3Endpoint != "" {
		objects, err := session.NewObjectReader(settings.S3Endpoint, !settings.S3Insecure)
		if err != nil {
			closeConnection(ctx, conn)
			return nil, session.Deps{}, err
		}
		fetcher.Objects = objects
	}

	deps := session.Deps{
		Client:    conn.Client(),
		Clientset: conn.Clientset(),
		Exec:      exec.NewChannel(conn.RESTConfig(), conn.Clientset()),
		OpenShift: openShift,
		MasterURL: conn.RESTConfig().Host,
		Stack:     namespace.NewBuildStack(),
		Settings:  settings,
		Fetcher:   fetcher,
		Scripts:   session.ShellRunner{Output: os.Stderr},
		Annotator: &apply.Annotator{Mapping: mapping},
		Events:    apply.LogSink{Logger: log.FromContext(ctx).WithName("events")},
		Output:    os.Stdout,
	}
	return conn, deps, nil
}

func namespaceManager(deps session.Deps) *namespace.Manager {
	return namespace.NewManager(namespace.NewService(deps.Client, deps.OpenShift))
}

func closeConnection(ctx context.Context, conn *kube.Connection) {
	if err := conn.Close(); err != nil {
		log.FromContext(ctx).Error(err, "failed to close cluster connection")
	}
}

func required(flag, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", flag)
	}
	return nil
}
