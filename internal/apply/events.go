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
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/manifest"
)

// DeploymentEvent records that a workload was deployed to an environment.
type DeploymentEvent struct {
	Kind        string
	Name        string
	Namespace   string
	Environment string
	App         string
	Version     string
	Time        time.Time
}

// EventSink receives deployment events. Failures are logged by the applier
// and never fail an apply.
type EventSink interface {
	Send(ctx context.Context, event DeploymentEvent) error
}

// LogSink writes deployment events to a logger.
type LogSink struct {
	Logger logr.Logger
}

func (s LogSink) Send(_ context.Context, event DeploymentEvent) error {
	s.Logger.Info("deployment",
		"kind", event.Kind,
		"name", event.Name,
		"namespace", event.Namespace,
		"environment", event.Environment,
		"app", event.App,
		"version", event.Version)
	return nil
}

// EnvironmentLabel turns an environment name such as "myapp-staging" into
// the label shown on events: its last dash separated segment, capitalized.
func EnvironmentLabel(name string) string {
	if i := strings.LastIndex(name, "-"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func emitsEvents(kind manifest.Kind) bool {
	switch kind {
	case manifest.KindPod, manifest.KindReplicationController, manifest.KindDeployment, manifest.KindDeploymentConfig:
		return true
	}
	return false
}

// notify sends a deployment event for e when a sink is configured.
func (a *Applier) notify(ctx context.Context, e manifest.Entity, namespace string) {
	if a.opts.Events == nil || !emitsEvents(e.Kind()) {
		return
	}
	lookup := a.lookup()
	app, _ := lookup("JOB_NAME")
	version, _ := lookup("VERSION")
	environment := a.opts.Environment
	if environment == "" {
		environment = namespace
	}

	event := DeploymentEvent{
		Kind:        e.KindName(),
		Name:        e.Name(),
		Namespace:   namespace,
		Environment: EnvironmentLabel(environment),
		App:         app,
		Version:     version,
		Time:        time.Now().UTC(),
	}
	if err := a.opts.Events.Send(ctx, event); err != nil {
		log.FromContext(ctx).Error(err, "failed to send deployment event", "resource", e.String())
	}
}

func (a *Applier) lookup() config.LookupFunc {
	if a.opts.Lookup != nil {
		return a.opts.Lookup
	}
	return os.LookupEnv
}
