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
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/go-ini/ini"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/config"
	"github.com/mikelane/kubepipe/internal/manifest"
)

//go:embed environmentAnnotations.properties
var defaultAnnotationMapping []byte

// DefaultAnnotationOverrideFile is the project-local mapping merged over the
// bundled one when present.
const DefaultAnnotationOverrideFile = "kubepipe/environmentAnnotations.properties"

// LoadAnnotationMapping reads the bundled ENV_VAR=annotation mapping and, if
// overridePath names an existing file, merges it with override precedence.
func LoadAnnotationMapping(overridePath string) (map[string]string, error) {
	sources := []interface{}{}
	if overridePath != "" {
		if _, err := os.Stat(overridePath); err == nil {
			sources = append(sources, overridePath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read annotation mapping %s: %w", overridePath, err)
		}
	}

	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, defaultAnnotationMapping, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load annotation mapping: %w", err)
	}

	mapping := map[string]string{}
	for _, key := range f.Section(ini.DefaultSection).Keys() {
		envVar := strings.TrimSpace(key.Name())
		annotation := strings.TrimSpace(key.String())
		if envVar == "" || annotation == "" {
			continue
		}
		mapping[envVar] = annotation
	}
	return mapping, nil
}

// Annotator records environment values as annotations on replication
// controllers and deployment configs.
type Annotator struct {
	// Mapping is ENV_VAR -> annotation key.
	Mapping map[string]string
	// Lookup reads environment values; nil means the process environment.
	Lookup config.LookupFunc
}

// Annotate adds the mapped annotations to e. Blank values are skipped and an
// annotation that already has a value is kept. It reports the annotations it set.
func (a *Annotator) Annotate(ctx context.Context, e manifest.Entity) []string {
	if e.Kind() != manifest.KindReplicationController && e.Kind() != manifest.KindDeploymentConfig {
		return nil
	}
	lookup := a.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	envVars := make([]string, 0, len(a.Mapping))
	for envVar := range a.Mapping {
		envVars = append(envVars, envVar)
	}
	sort.Strings(envVars)

	annotations := e.Object.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	var added []string
	for _, envVar := range envVars {
		annotation := a.Mapping[envVar]
		value, _ := lookup(envVar)
		if strings.TrimSpace(value) == "" {
			continue
		}
		if old := annotations[annotation]; strings.TrimSpace(old) != "" {
			log.FromContext(ctx).Info("not overwriting existing annotation",
				"resource", e.String(), "annotation", annotation, "value", value, "existing", old)
			continue
		}
		annotations[annotation] = value
		added = append(added, annotation)
	}
	e.Object.SetAnnotations(annotations)
	return added
}
