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

// Package sanitize renames Services whose names are not valid DNS-1035 labels
// and retargets the Routes that point at them.
package sanitize

import (
	"context"
	"regexp"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/manifest"
	"github.com/mikelane/kubepipe/internal/openshift"
)

const (
	// Prefix is put in front of every renamed service.
	Prefix = "svc-"
	// MaxNameLength is the length an invalid name is truncated to before the prefix is added.
	MaxNameLength = 58
)

var (
	dns1035Label = regexp.MustCompile(`^[a-z]([-a-z0-9]*[a-z0-9])?$`)
	invalidRun   = regexp.MustCompile(`[^-a-z0-9]+`)
)

// HasInvalidDNS reports whether the service name fails the DNS-1035 label
// pattern. A service without a name is not reported.
func HasInvalidDNS(svc *corev1.Service) bool {
	if svc == nil || svc.Name == "" {
		return false
	}
	return !dns1035Label.MatchString(svc.Name)
}

// SanitizeName returns the replacement for an invalid service name: the name
// truncated and lower-cased behind Prefix. Characters that stay invalid after
// lower-casing become '-', and trailing dashes are dropped.
func SanitizeName(name string) string {
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	name = strings.ToLower(name)
	name = invalidRun.ReplaceAllString(name, "-")
	name = strings.TrimRight(name, "-")
	if name == "" {
		return strings.TrimSuffix(Prefix, "-")
	}
	return Prefix + name
}

// Patcher renames invalid services when Enabled. A disabled patcher returns
// its input unchanged.
type Patcher struct {
	Enabled bool
}

// Patch renames invalid services and retargets routes whose target is a
// Service with a renamed name. Entities are modified in place; the returned
// set holds them in their new order.
func (p Patcher) Patch(ctx context.Context, set *manifest.Set) *manifest.Set {
	if !p.Enabled {
		return set
	}

	renamed := map[string]string{}
	for _, e := range set.Items() {
		svc, ok := e.Object.(*corev1.Service)
		if !ok || !HasInvalidDNS(svc) {
			continue
		}
		newName := SanitizeName(svc.Name)
		log.FromContext(ctx).Info("renaming service with invalid DNS name", "service", svc.Name, "newName", newName)
		renamed[svc.Name] = newName
		svc.Name = newName
	}
	if len(renamed) == 0 {
		return set
	}

	for _, e := range set.Items() {
		route, ok := e.Object.(*openshift.Route)
		if !ok || route.Spec.To.Kind != "Service" {
			continue
		}
		if newName, ok := renamed[route.Spec.To.Name]; ok {
			route.Spec.To.Name = newName
		}
	}

	return manifest.NewSet(set.Items()...)
}
