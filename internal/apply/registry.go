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
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mikelane/kubepipe/internal/manifest"
)

var (
	// imageName splits [registry[:port]/]repository into the part before
	// an optional trailing :tag.
	imageName    = regexp.MustCompile(`^(.+?)(?::([^:/]+))?$`)
	pathSplitter = regexp.MustCompile(`\s*/\s*`)
)

// RegistryRewriteError reports an image name that cannot be parsed while
// prefixing the target registry.
type RegistryRewriteError struct {
	Image    string
	Resource string
}

func (e *RegistryRewriteError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %q is not a proper image name ([registry/][repo][:port])", e.Resource, e.Image)
	}
	return fmt.Sprintf("%q is not a proper image name ([registry/][repo][:port])", e.Image)
}

// HasRegistry reports whether image already names a registry: the first
// path segment before the tag contains a '.' or a ':'.
func HasRegistry(image string) (bool, error) {
	m := imageName.FindStringSubmatch(image)
	if m == nil {
		return false, &RegistryRewriteError{Image: image}
	}
	first := pathSplitter.Split(m[1], 2)[0]
	return strings.ContainsAny(first, ".:"), nil
}

// AddRegistry prefixes image with registry unless it already names one.
func AddRegistry(image, registry string) (string, error) {
	has, err := HasRegistry(image)
	if err != nil {
		return "", err
	}
	if has || registry == "" {
		return image, nil
	}
	return registry + "/" + image, nil
}

// rewriteImages points every workload container without a registry at registry.
func rewriteImages(set *manifest.Set, registry string) error {
	for _, e := range set.Items() {
		for _, c := range e.Containers() {
			image, err := AddRegistry(c.Image, registry)
			if err != nil {
				var rre *RegistryRewriteError
				if errors.As(err, &rre) {
					rre.Resource = fmt.Sprintf("%s container %q", e, c.Name)
				}
				return err
			}
			c.Image = image
		}
	}
	return nil
}
