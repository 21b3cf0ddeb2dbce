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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names read by LoadSettings.
const (
	EnvRegistryHost     = "FABRIC8_DOCKER_REGISTRY_SERVICE_HOST"
	EnvRegistryPort     = "FABRIC8_DOCKER_REGISTRY_SERVICE_PORT"
	EnvServicePatch     = "K8S_PIPELINE_SERVICE_PATCH"
	EnvReadinessTimeout = "K8S_PIPELINE_READINESS_TIMEOUT"
	EnvDomain           = "DOMAIN"
	EnvHostname         = "HOSTNAME"
	EnvS3Endpoint       = "KUBEPIPE_S3_ENDPOINT"
	EnvS3Insecure       = "KUBEPIPE_S3_INSECURE"
)

// LookupFunc reads one environment value.
type LookupFunc func(key string) (string, bool)

// Settings are the host inputs shared by every step.
type Settings struct {
	RegistryHost string
	RegistryPort string
	// ServicePatch opts into renaming services with invalid DNS names.
	ServicePatch bool
	// ReadinessTimeout is zero when apply should not wait.
	ReadinessTimeout time.Duration
	// Domain is the host suffix of generated routes and ingresses.
	Domain string
	// Hostname is the name of the pod kubepipe runs in, if any.
	Hostname string
	// S3Endpoint serves s3:// environment URLs. S3Insecure talks plain HTTP
	// to it.
	S3Endpoint string
	S3Insecure bool
}

// Registry returns host[:port] of the target registry, empty when unset.
func (s Settings) Registry() string {
	if s.RegistryHost == "" {
		return ""
	}
	if s.RegistryPort == "" {
		return s.RegistryHost
	}
	return s.RegistryHost + ":" + s.RegistryPort
}

// LoadSettings reads the settings through lookup, or the process environment
// when lookup is nil.
func LoadSettings(lookup LookupFunc) (Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	s := Settings{
		RegistryHost: get(EnvRegistryHost),
		RegistryPort: get(EnvRegistryPort),
		ServicePatch: strings.EqualFold(get(EnvServicePatch), "enabled"),
		Domain:       get(EnvDomain),
		Hostname:     get(EnvHostname),
		S3Endpoint:   get(EnvS3Endpoint),
	}
	if raw := get(EnvS3Insecure); raw != "" {
		insecure, err := strconv.ParseBool(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s %q: %w", EnvS3Insecure, raw, err)
		}
		s.S3Insecure = insecure
	}

	if raw := get(EnvReadinessTimeout); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			return Settings{}, fmt.Errorf("invalid %s %q: expected a non-negative number of milliseconds", EnvReadinessTimeout, raw)
		}
		s.ReadinessTimeout = time.Duration(ms) * time.Millisecond
	}
	return s, nil
}
