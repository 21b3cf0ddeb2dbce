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

package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docker/go-units"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/namespace"
)

// Destroyer deletes a namespace or project by name.
type Destroyer interface {
	Destroy(ctx context.Context, name string) error
}

// Scheduler deletes session namespaces that outlived their TTL. It runs
// periodically to catch namespaces left behind by steps that never ran their
// stop path.
type Scheduler struct {
	client    client.Client
	destroyer Destroyer
	interval  time.Duration
	ttl       time.Duration
	now       func() time.Time
}

// NewScheduler creates a new cleanup scheduler that checks every interval for
// managed namespaces older than ttl. destroyer deletes them; on OpenShift it
// should delete projects.
func NewScheduler(k8sClient client.Client, destroyer Destroyer, interval, ttl time.Duration) *Scheduler {
	return &Scheduler{
		client:    k8sClient,
		destroyer: destroyer,
		interval:  interval,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Start runs a reap pass every interval until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger := log.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Reap(ctx); err != nil {
				logger.Error(err, "cleanup pass failed")
				// Continue to next tick - don't stop scheduler on transient errors
			}
		}
	}
}

// Reap performs a single pass and returns the names of the deleted
// namespaces.
//
// The following rules apply:
//   - Only namespaces labelled as managed by kubepipe are considered
//   - Namespaces labelled keep=true are skipped
//   - Namespaces without a parseable created-at annotation are skipped
//   - A namespace is deleted once created-at + ttl is in the past
//
// A failed deletion does not stop the pass; the errors are returned joined.
func (s *Scheduler) Reap(ctx context.Context) ([]string, error) {
	logger := log.FromContext(ctx)

	var list corev1.NamespaceList
	if err := s.client.List(ctx, &list, client.MatchingLabels{namespace.ManagedByLabel: namespace.ManagedByValue}); err != nil {
		return nil, fmt.Errorf("failed to list managed namespaces: %w", err)
	}

	now := s.now()
	var reaped []string
	var errs []error
	for i := range list.Items {
		ns := &list.Items[i]

		if ns.Labels[namespace.KeepLabel] == "true" {
			continue
		}
		if ns.Status.Phase == corev1.NamespaceTerminating {
			continue
		}
		raw, ok := ns.Annotations[namespace.CreatedAtAnnotation]
		if !ok {
			continue
		}
		createdAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			logger.Info("skipping namespace with invalid creation time", "namespace", ns.Name, "createdAt", raw)
			continue
		}

		age := now.Sub(createdAt)
		if age < s.ttl {
			continue
		}
		logger.Info("deleting stale namespace", "namespace", ns.Name,
			"session", ns.Labels[namespace.SessionLabel], "age", units.HumanDuration(age))
		if err := s.destroyer.Destroy(ctx, ns.Name); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete namespace %s: %w", ns.Name, err))
			continue
		}
		reaped = append(reaped, ns.Name)
	}
	return reaped, errors.Join(errs...)
}
