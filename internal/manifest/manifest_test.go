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

package manifest

import (
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/mikelane/kubepipe/internal/openshift"
)

const multiDocYAML = `
apiVersion: v1
kind: Service
metadata:
  name: web
spec:
  ports:
  - port: 80
---
# comment only document
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  selector:
    matchLabels:
      app: web
  template:
    metadata:
      labels:
        app: web
    spec:
      containers:
      - name: web
        image: acme/web:1.0
---
apiVersion: v1
kind: ConfigMap
metadata:
  name: settings
data:
  mode: ci
`

const listJSON = `{
  "apiVersion": "v1",
  "kind": "List",
  "items": [
    {"apiVersion": "v1", "kind": "Route", "metadata": {"name": "web"}, "spec": {"to": {"kind": "Service", "name": "web"}}},
    {"apiVersion": "v1", "kind": "ReplicationController", "metadata": {"name": "api"},
     "spec": {"replicas": 1, "template": {"spec": {"containers": [{"name": "api", "image": "acme/api"}]}}}},
    {"apiVersion": "v1", "kind": "Pod", "metadata": {"name": "job"}, "spec": {"containers": [{"name": "job", "image": "busybox"}]}}
  ]
}`

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantKinds []Kind
		wantNames []string
	}{
		{
			name:      "multi document yaml",
			data:      multiDocYAML,
			wantKinds: []Kind{KindGeneric, KindService, KindDeployment},
			wantNames: []string{"settings", "web", "web"},
		},
		{
			name:      "json list is flattened and legacy route normalized",
			data:      listJSON,
			wantKinds: []Kind{KindRoute, KindPod, KindReplicationController},
			wantNames: []string{"web", "job", "api"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			items := set.Items()
			if len(items) != len(tt.wantKinds) {
				t.Fatalf("expected %d entities, got %d: %v", len(tt.wantKinds), len(items), items)
			}
			for i, e := range items {
				if e.Kind() != tt.wantKinds[i] {
					t.Errorf("entity %d kind = %s, want %s", i, e.Kind(), tt.wantKinds[i])
				}
				if e.Name() != tt.wantNames[i] {
					t.Errorf("entity %d name = %s, want %s", i, e.Name(), tt.wantNames[i])
				}
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "whitespace", data: "  \n\t"},
		{name: "null yaml", data: "null\n"},
		{name: "separators only", data: "---\n---\n"},
		{name: "broken json", data: `{"kind": "Pod"`},
		{name: "missing kind", data: "apiVersion: v1\nmetadata:\n  name: x\n"},
		{name: "invalid yaml", data: "kind: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
		})
	}
}

func TestParse_IsDeterministic(t *testing.T) {
	a, err := Parse([]byte(multiDocYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	b, err := Parse([]byte(multiDocYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ia, ib := a.Items(), b.Items()
	for i := range ia {
		if ia[i].String() != ib[i].String() {
			t.Errorf("order differs at %d: %s vs %s", i, ia[i], ib[i])
		}
	}
}

func TestSet_FirstWriterWins(t *testing.T) {
	first := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "web", Labels: map[string]string{"v": "1"}}}
	second := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "web", Labels: map[string]string{"v": "2"}}}

	set := NewSet()
	if !set.Add(Entity{Object: first}) {
		t.Fatal("first Add() should insert")
	}
	if set.Add(Entity{Object: second}) {
		t.Error("duplicate Add() should be dropped")
	}
	if got := set.Items()[0].Object.GetLabels()["v"]; got != "1" {
		t.Errorf("expected first entity to win, got label v=%s", got)
	}
}

func TestSet_OrdersServicesBeforeRoutesAndWorkloads(t *testing.T) {
	set := NewSet(
		Entity{Object: &openshift.Route{ObjectMeta: metav1.ObjectMeta{Name: "a"}}},
		Entity{Object: &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "a"}}},
		Entity{Object: &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "z"}}},
		Entity{Object: &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "b"}}},
	)

	var got []string
	for _, e := range set.Items() {
		got = append(got, e.String())
	}
	want := []string{"Service/b", "Service/z", "Route/a", "Pod/a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestEntity_PodSpec(t *testing.T) {
	rc := &corev1.ReplicationController{ObjectMeta: metav1.ObjectMeta{Name: "no-template"}}
	if (Entity{Object: rc}).PodSpec() != nil {
		t.Error("replication controller without template should have no pod spec")
	}
	svc := &corev1.Service{}
	if (Entity{Object: svc}).IsWorkload() {
		t.Error("service is not a workload")
	}

	pod := &corev1.Pod{Spec: corev1.PodSpec{
		InitContainers: []corev1.Container{{Name: "init", Image: "init"}},
		Containers:     []corev1.Container{{Name: "main", Image: "main"}},
	}}
	containers := Entity{Object: pod}.Containers()
	if len(containers) != 2 {
		t.Fatalf("expected 2 containers, got %d", len(containers))
	}
	containers[1].Image = "changed"
	if pod.Spec.Containers[0].Image != "changed" {
		t.Error("Containers() should expose the entity's own containers")
	}
}
