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
	"time"

	"github.com/spf13/cobra"

	"github.com/mikelane/kubepipe/internal/cleanup"
	"github.com/mikelane/kubepipe/internal/namespace"
)

var (
	reapTTL      time.Duration
	reapInterval time.Duration
	reapOnce     bool
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Delete session namespaces older than a TTL",
	Long: `Delete namespaces created by kubepipe whose creation is older than the
TTL. Namespaces labelled kubepipe.io/keep=true are kept.

By default reap keeps running and checks every interval; --once runs a
single pass and prints the deleted namespaces.`,
	RunE: runReap,
}

func init() {
	reapCmd.Flags().DurationVar(&reapTTL, "ttl", 24*time.Hour, "Age after which a session namespace is deleted")
	reapCmd.Flags().DurationVar(&reapInterval, "interval", 5*time.Minute, "Time between passes")
	reapCmd.Flags().BoolVar(&reapOnce, "once", false, "Run a single pass and exit")
}

func runReap(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, deps, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeConnection(ctx, conn)

	scheduler := cleanup.NewScheduler(deps.Client, namespace.NewService(deps.Client, deps.OpenShift), reapInterval, reapTTL)
	if !reapOnce {
		return scheduler.Start(ctx)
	}

	reaped, err := scheduler.Reap(ctx)
	rows := make([][]string, 0, len(reaped))
	for _, name := range reaped {
		rows = append(rows, []string{name})
	}
	emitTable([]string{"DELETED"}, rows)
	return err
}
