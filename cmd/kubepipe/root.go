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
	goflag "flag"

	"github.com/spf13/cobra"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var (
	kubeconfig  string
	kubeContext string
	masterURL   string
	verbose     bool

	zapOpts = zap.Options{Development: true}
)

var rootCmd = &cobra.Command{
	Use:   "kubepipe",
	Short: "Ephemeral Kubernetes namespaces and worker pods for CI pipelines",
	Long: `Kubepipe provisions a namespace per pipeline session, applies manifests
into it, runs build commands inside a worker pod and removes what it
created when the session ends.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			zapOpts.Level = zapcore.DebugLevel
		}
		ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts), zap.RawZapOpts(uberzap.AddCaller())))

		ctx := log.IntoContext(ctrl.SetupSignalHandler(), ctrl.Log.WithName("kubepipe"))
		cmd.SetContext(ctx)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "Path to the kubeconfig file (defaults to the standard loading rules)")
	rootCmd.PersistentFlags().StringVar(&kubeContext, "context", "", "Kubeconfig context to use")
	rootCmd.PersistentFlags().StringVar(&masterURL, "master", "", "Kubernetes API server URL, overrides the kubeconfig")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	goFlags := goflag.NewFlagSet("zap", goflag.ExitOnError)
	zapOpts.BindFlags(goFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(goFlags)

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(namespaceCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(podExecCmd)
	rootCmd.AddCommand(reapCmd)
}
