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
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikelane/kubepipe/internal/apply"
)

var (
	applyFile       string
	applyNamespace  string
	applyRegistry   string
	applyDomain     string
	applyTimeoutMs  int64
	applyNoCreate   bool
	applyRecreateRC bool
	applyEnvName    string
)

var applyCmd = &cobra.Command{
	Use:   "apply -f FILE -n NAMESPACE",
	Short: "Apply a manifest to a namespace",
	Long: `Apply a JSON or YAML manifest to a namespace.

Images without a registry are rewritten to pull from the configured registry,
replication controllers and deployment configs get environment annotations,
and single-port services are exposed through routes (OpenShift) or an
ingress when a domain is set.

Examples:
  kubepipe apply -f target/kubernetes.yml -n temp-b4x9z
  kubepipe apply -f - -n staging --timeout-ms 600000 < app.json`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "Manifest file, - for stdin")
	applyCmd.Flags().StringVarP(&applyNamespace, "namespace", "n", "", "Target namespace")
	applyCmd.Flags().StringVar(&applyRegistry, "registry", "", "Registry for images without one (defaults to the registry environment)")
	applyCmd.Flags().StringVar(&applyDomain, "domain", "", "Host suffix of generated routes and ingress rules (defaults to $DOMAIN)")
	applyCmd.Flags().Int64Var(&applyTimeoutMs, "timeout-ms", -1, "Readiness timeout in milliseconds, 0 does not wait (defaults to the environment)")
	applyCmd.Flags().BoolVar(&applyNoCreate, "require-namespace", false, "Fail instead of creating a missing namespace")
	applyCmd.Flags().BoolVar(&applyRecreateRC, "recreate-rc-pods", false, "Delete the pods of updated replication controllers")
	applyCmd.Flags().StringVar(&applyEnvName, "environment", "", "Environment name put on deployment events (defaults to the namespace)")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := required("file", applyFile); err != nil {
		return err
	}
	if err := required("namespace", applyNamespace); err != nil {
		return err
	}

	data, err := readManifest(applyFile)
	if err != nil {
		return err
	}

	conn, deps, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeConnection(ctx, conn)

	opts := apply.Options{
		Registry:                                deps.Settings.Registry(),
		Domain:                                  deps.Settings.Domain,
		OpenShift:                               deps.OpenShift,
		ServicePatch:                            deps.Settings.ServicePatch,
		RequireNamespace:                        applyNoCreate,
		DeletePodsOnReplicationControllerUpdate: applyRecreateRC,
		ReadinessTimeout:                        deps.Settings.ReadinessTimeout,
		Environment:                             applyEnvName,
		Annotator:                               deps.Annotator,
		Events:                                  deps.Events,
	}
	if applyRegistry != "" {
		opts.Registry = applyRegistry
	}
	if applyDomain != "" {
		opts.Domain = applyDomain
	}
	if applyTimeoutMs >= 0 {
		opts.ReadinessTimeout = time.Duration(applyTimeoutMs) * time.Millisecond
	}

	result, err := apply.NewApplier(deps.Client, namespaceManager(deps), opts).Apply(ctx, data, applyNamespace)
	if result != nil {
		emitResult(result)
	}
	return err
}

func readManifest(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return data, nil
}

func emitResult(result *apply.Result) {
	rows := make([][]string, 0, len(result.Applied))
	for _, r := range result.Applied {
		rows = append(rows, []string{r.Kind, r.Name, r.Namespace, string(r.Action)})
	}
	emitTable([]string{"KIND", "NAME", "NAMESPACE", "ACTION"}, rows)

	if urls := result.ServiceURLs(); len(urls) > 0 {
		fmt.Fprintln(outputWriter)
		emitTable([]string{"SERVICE", "URL"}, sortedRows(urls))
	}
	if versions := result.DeploymentVersions(); len(versions) > 0 {
		fmt.Fprintln(outputWriter)
		emitTable([]string{"DEPLOYMENT", "VERSION"}, sortedRows(versions))
	}
}

func sortedRows(m map[string]string) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, m[k]})
	}
	return rows
}
