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
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// overwrite replaces the content of live with desired while keeping what the
// server owns: the object metadata and the status. Labels and annotations of
// desired are merged into the live ones.
func overwrite(live, desired client.Object) error {
	liveContent, err := toContent(live)
	if err != nil {
		return err
	}
	content, err := toContent(desired)
	if err != nil {
		return err
	}

	if metadata, ok := liveContent["metadata"]; ok {
		content["metadata"] = metadata
	}
	if status, ok := liveContent["status"]; ok {
		content["status"] = status
	} else {
		delete(content, "status")
	}
	for _, field := range []string{"apiVersion", "kind"} {
		if v, ok := liveContent[field]; ok {
			content[field] = v
		} else {
			delete(content, field)
		}
	}

	if u, ok := live.(*unstructured.Unstructured); ok {
		u.SetUnstructuredContent(content)
	} else if err := runtime.DefaultUnstructuredConverter.FromUnstructured(content, live); err != nil {
		return fmt.Errorf("failed to convert %T: %w", live, err)
	}
	mergeMetadata(live, desired)
	return nil
}

func toContent(obj client.Object) (map[string]interface{}, error) {
	if u, ok := obj.(*unstructured.Unstructured); ok {
		return runtime.DeepCopyJSON(u.UnstructuredContent()), nil
	}
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %T: %w", obj, err)
	}
	return content, nil
}
