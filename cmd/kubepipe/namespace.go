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

	"github.com/spf13/cobra"

	"github.com/mikelane/kubepipe/internal/namespace"
	"github.com/mikelane/kubepipe/internal/session"
)

var (
	nsNoCreate    bool
	nsLabels      map[string]string
	nsAnnotations map[string]string
)

var namespaceCmd = &cobra.Command{
	Use:     "namespace",
	Aliases: []string{"ns"},
	Short:   "Create or delete session namespaces",
}

var namespaceEnsureCmd = &cobra.Command{
	Use:   "ensure [NAME]",
	Short: "Create a namespace unless it exists",
	Long: `Create a namespace (an OpenShift project on OpenShift) unless it exists.

Without NAME a temp-<id> namespace is generated and its name printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id := session.GenerateID()
		name := session.DefaultPrefix + "-" + id
		if len(args) == 1 {
			name = args[0]
		}

		conn, deps, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeConnection(ctx, conn)

		err = namespaceManager(deps).Ensure(ctx, name, !nsNoCreate, namespace.Metadata{
			Session:     id,
			Labels:      nsLabels,
			Annotations: nsAnnotations,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(outputWriter, name)
		return nil
	},
}

var namespaceDestroyCmd = &cobra.Command{
	Use:   "destroy NAME",
	Short: "Delete a namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, deps, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeConnection(ctx, conn)

		if !namespaceManager(deps).Destroy(ctx, args[0]) {
			fmt.Fprintf(outputWriter, "namespace %s was not deleted\n", args[0])
		}
		return nil
	},
}

func init() {
	namespaceEnsureCmd.Flags().BoolVar(&nsNoCreate, "require", false, "Fail instead of creating a missing namespace")
	namespaceEnsureCmd.Flags().StringToStringVar(&nsLabels, "label", nil, "Label of a created namespace (key=value, repeatable)")
	namespaceEnsureCmd.Flags().StringToStringVar(&nsAnnotations, "annotation", nil, "Annotation of a created namespace (key=value, repeatable)")

	namespaceCmd.AddCommand(namespaceEnsureCmd)
	namespaceCmd.AddCommand(namespaceDestroyCmd)
}
