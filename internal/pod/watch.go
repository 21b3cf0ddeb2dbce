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

package pod

import (
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Watch follows the phase of the session's pod until the watch ends or ctx
// is canceled. With cleanupOnFinish the session streams are closed once the
// pod terminated or the watch ended.
func (c *Controller) Watch(ctx context.Context, s *Session, cleanupOnFinish bool) error {
	w, err := c.clientset.CoreV1().Pods(s.Namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", s.Name).String(),
	})
	if err != nil {
		return fmt.Errorf("failed to watch pod %s in namespace %s: %w", s.Name, s.Namespace, err)
	}
	if cleanupOnFinish {
		s.onComplete = func() { s.resources.Drain(ctx) }
	}
	s.Track(closerFunc(func() error {
		w.Stop()
		return nil
	}))

	go func() {
		defer s.watchClosed(ctx)
		for {
			select {
			case <-ctx.Done():
				w.Stop()
				return
			case event, ok := <-w.ResultChan():
				if !ok {
					return
				}
				s.handle(ctx, event)
			}
		}
	}()
	return nil
}

// handle advances the session on a watch event.
func (s *Session) handle(ctx context.Context, event watch.Event) {
	pod, _ := event.Object.(*corev1.Pod)
	if pod != nil && pod.Status.Phase == corev1.PodRunning {
		s.alive.Store(true)
		s.state.Store(StateRunning)
		s.Started.Release()
	}

	switch event.Type {
	case watch.Added, watch.Modified, watch.Error:
		if pod == nil {
			return
		}
		switch pod.Status.Phase {
		case corev1.PodSucceeded, corev1.PodFailed:
			s.alive.Store(false)
			s.state.Store(State(pod.Status.Phase))
			s.Finished.Release()
			log.FromContext(ctx).Info("pod finished", "pod", s.Name, "phase", pod.Status.Phase)
			s.complete(ctx)
		}
	case watch.Deleted:
		s.alive.Store(false)
		s.state.Store(StateDeleted)
		s.Finished.Release()
	}
}

// watchClosed treats the end of the watch like the end of the pod so that
// nobody waits forever on a dropped connection.
func (s *Session) watchClosed(ctx context.Context) {
	s.alive.Store(false)
	if !s.State().Terminal() {
		s.state.Store(StateWatchClosed)
	}
	s.Started.Release()
	s.Finished.Release()
	s.complete(ctx)
}

// WatchLogs follows the logs of the step container into w. The returned
// channel is closed when the stream ends.
func (c *Controller) WatchLogs(ctx context.Context, s *Session, w io.Writer) (<-chan struct{}, error) {
	stream, err := c.clientset.CoreV1().Pods(s.Namespace).GetLogs(s.Name, &corev1.PodLogOptions{
		Container: ContainerName,
		Follow:    true,
	}).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to follow logs of pod %s: %w", s.Name, err)
	}
	s.Track(stream)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := io.Copy(w, stream); err != nil {
			log.FromContext(ctx).V(1).Info("log stream ended", "pod", s.Name, "error", err.Error())
		}
	}()
	return done, nil
}
