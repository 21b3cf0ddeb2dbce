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

package sanitize

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/go-logr/logr/funcr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/manifest"
	"github.com/mikelane/kubepipe/internal/openshift"
)

func service(name string) *corev1.Service {
	return &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: name}}
}

func route(name, kind, target string) *openshift.Route {
	return &openshift.Route{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec:       openshift.RouteSpec{To: openshift.RouteTargetReference{Kind: kind, Name: target}},
	}
}

func TestHasInvalidDNS(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"nodejs-rest-http", false},
		{"a", false},
		{"12Nodejs-rest-http", true},
		{"Upper", true},
		{"trailing-", true},
		{"under_score", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasInvalidDNS(service(tt.name)); got != tt.want {
				t.Errorf("HasInvalidDNS(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("12Nodejs-rest-http"); got != "svc-12nodejs-rest-http" {
		t.Errorf("SanitizeName() = %q", got)
	}

	long := "9" + strings.Repeat("A", 80)
	got := SanitizeName(long)
	if len(got) != len(Prefix)+MaxNameLength {
		t.Errorf("expected %d chars, got %d", len(Prefix)+MaxNameLength, len(got))
	}
	if got != "svc-9"+strings.Repeat("a", MaxNameLength-1) {
		t.Errorf("SanitizeName() = %q", got)
	}
}

func TestPatcher_Patch(t *testing.T) {
	valid := regexp.MustCompile(`^[a-z]([-a-z0-9]*[a-z0-9])?$`)

	svc := service("12Nodejs-rest-http")
	target := route("web", "Service", "12Nodejs-rest-http")
	other := route("other", "Service", "unrelated")
	wrongKind := route("odd", "DeploymentConfig", "12Nodejs-rest-http")
	set := manifest.NewSet(
		manifest.Entity{Object: svc},
		manifest.Entity{Object: target},
		manifest.Entity{Object: other},
		manifest.Entity{Object: wrongKind},
	)

	patched := Patcher{Enabled: true}.Patch(context.Background(), set)

	if patched.Len() != 4 {
		t.Fatalf("expected 4 entities, got %d", patched.Len())
	}
	if !valid.MatchString(svc.Name) {
		t.Errorf("patched service name %q is not a DNS label", svc.Name)
	}
	if svc.Name != "svc-12nodejs-rest-http" {
		t.Errorf("service name = %q", svc.Name)
	}
	if target.Spec.To.Name != svc.Name {
		t.Errorf("route target = %q, want %q", target.Spec.To.Name, svc.Name)
	}
	if other.Spec.To.Name != "unrelated" {
		t.Errorf("route to unpatched service changed: %q", other.Spec.To.Name)
	}
	if wrongKind.Spec.To.Name != "12Nodejs-rest-http" {
		t.Errorf("route with non-Service target changed: %q", wrongKind.Spec.To.Name)
	}
}

func TestPatcher_Disabled_IsIdentity(t *testing.T) {
	svc := service("12Nodejs-rest-http")
	r := route("web", "Service", "12Nodejs-rest-http")
	set := manifest.NewSet(manifest.Entity{Object: svc}, manifest.Entity{Object: r})

	out := Patcher{}.Patch(context.Background(), set)

	if out != set {
		t.Error("disabled patcher should return the same set")
	}
	if svc.Name != "12Nodejs-rest-http" || r.Spec.To.Name != "12Nodejs-rest-http" {
		t.Errorf("disabled patcher modified entities: %s, %s", svc.Name, r.Spec.To.Name)
	}
}

func TestPatcher_LogsThroughContextLogger(t *testing.T) {
	var lines []string
	logger := funcr.New(func(_, args string) { lines = append(lines, args) }, funcr.Options{})
	ctx := log.IntoContext(context.Background(), logger.WithValues("namespace", "ci"))

	Patcher{Enabled: true}.Patch(ctx, manifest.NewSet(manifest.Entity{Object: service("Web_API")}))

	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %v", lines)
	}
	for _, want := range []string{`"namespace"="ci"`, `"service"="Web_API"`, `"newName"="svc-web-api"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("log line %q is missing %s", lines[0], want)
		}
	}
}
