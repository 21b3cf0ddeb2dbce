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

// Package cleanup reaps session namespaces that were left behind.
//
// A step normally deletes its generated namespace when it stops. When the
// process running it dies first the namespace stays. The Scheduler lists the
// namespaces carrying the kubepipe managed-by label and deletes those whose
// created-at annotation is older than the configured TTL.
//
// To keep a namespace, label it:
//
//	kubectl label namespace temp-b4x9z kubepipe.io/keep=true
//
// Example usage:
//
//	scheduler := cleanup.NewScheduler(
//		k8sClient,
//		namespace.NewNamespaces(k8sClient),
//		5*time.Minute, // Check every 5 minutes
//		24*time.Hour,
//	)
//	if err := scheduler.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package cleanup
