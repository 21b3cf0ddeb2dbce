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

// Package exec streams shell statements into the container of a running
// pod over a TTY exec session.
package exec

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/kubepipe/internal/gate"
)

const (
	separator = " "
	newline   = "\n"
	exit      = "exit"
	ctrlC     = "\u0003"
)

// Shell is the command an exec session starts in the container.
var Shell = []string{"/bin/sh"}

// ChannelError reports an exec stream that failed to open or broke while
// running.
type ChannelError struct {
	Pod       string
	Container string
	Err       error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("exec into container %s of pod %s failed: %v", e.Container, e.Pod, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ExecutorFactory opens the exec stream of a container.
type ExecutorFactory func(namespace, pod, container string) (remotecommand.Executor, error)

// Channel runs statements in pod containers.
type Channel struct {
	newExecutor ExecutorFactory
}

// NewChannel returns a channel that execs over SPDY.
func NewChannel(config *rest.Config, clientset kubernetes.Interface) *Channel {
	return NewChannelWithFactory(func(namespace, pod, container string) (remotecommand.Executor, error) {
		req := clientset.CoreV1().RESTClient().Post().
			Resource("pods").
			Name(pod).
			Namespace(namespace).
			SubResource("exec").
			VersionedParams(&corev1.PodExecOptions{
				Container: container,
				Command:   Shell,
				Stdin:     true,
				Stdout:    true,
				TTY:       true,
			}, scheme.ParameterCodec)
		return remotecommand.NewSPDYExecutor(config, "POST", req.URL())
	})
}

// NewChannelWithFactory returns a channel using newExecutor to open streams.
func NewChannelWithFactory(newExecutor ExecutorFactory) *Channel {
	return &Channel{newExecutor: newExecutor}
}

// Request names the container to exec into and what to run there.
type Request struct {
	Namespace  string
	Pod        string
	Container  string
	Statements []string
	// Output receives the TTY output. Nil discards it.
	Output io.Writer
}

// Exec opens a shell in the container, waits until it is open and writes the
// statements followed by an exit so that the end of the stream marks the end
// of the statements.
func (c *Channel) Exec(ctx context.Context, req Request) (*Process, error) {
	logger := log.FromContext(ctx).WithValues("pod", req.Pod, "container", req.Container)

	executor, err := c.newExecutor(req.Namespace, req.Pod, req.Container)
	if err != nil {
		return nil, &ChannelError{Pod: req.Pod, Container: req.Container, Err: err}
	}

	out := req.Output
	if out == nil {
		out = io.Discard
	}
	stdinReader, stdinWriter := io.Pipe()
	p := &Process{
		pod:       req.Pod,
		container: req.Container,
		Started:   gate.New(),
		Finished:  gate.New(),
		stdin:     stdinWriter,
	}
	stdin := &openSignal{r: stdinReader, open: func() {
		p.alive.Store(true)
		p.Started.Release()
	}}

	go func() {
		err := executor.StreamWithContext(ctx, remotecommand.StreamOptions{
			Stdin:  stdin,
			Stdout: out,
			Tty:    true,
		})
		_ = stdinReader.Close()
		p.closed(err)
		if err != nil {
			logger.Error(err, "exec stream failed")
		}
	}()

	if err := p.Started.Wait(ctx); err != nil {
		_ = p.Close()
		return nil, &ChannelError{Pod: req.Pod, Container: req.Container, Err: err}
	}
	if !p.Alive() {
		if err := p.Err(); err != nil {
			return nil, err
		}
	}

	for _, stmt := range req.Statements {
		p.write(ctx, stmt, separator)
	}
	p.write(ctx, newline, exit, newline)
	return p, nil
}

// Process is a running exec session.
type Process struct {
	pod       string
	container string

	// Started is released when the stream opened, failed or closed.
	Started *gate.Gate
	// Finished is released when the stream failed or closed.
	Finished *gate.Gate

	alive atomic.Bool
	stdin *io.PipeWriter

	mu  sync.Mutex
	err error
}

// Alive reports whether the stream is open.
func (p *Process) Alive() bool {
	return p.alive.Load()
}

// Err returns the *ChannelError the stream ended with, if any.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Kill interrupts the running statement and exits the shell. The remote
// process is not guaranteed to stop.
func (p *Process) Kill(ctx context.Context) {
	p.write(ctx, ctrlC, exit, newline)
}

// Join waits for the stream to end. The exit code of the remote shell is not
// available, so the status is always 1; the error is the channel error.
func (p *Process) Join(ctx context.Context) (int, error) {
	if err := p.Finished.Wait(ctx); err != nil {
		return 1, err
	}
	return 1, p.Err()
}

// Close ends the input of the shell.
func (p *Process) Close() error {
	return p.stdin.Close()
}

func (p *Process) closed(err error) {
	if err != nil {
		p.mu.Lock()
		p.err = &ChannelError{Pod: p.pod, Container: p.container, Err: err}
		p.mu.Unlock()
	}
	p.alive.Store(false)
	p.Started.Release()
	p.Finished.Release()
}

// write sends parts to the shell. Failures are logged; a closed stream
// surfaces through Join.
func (p *Process) write(ctx context.Context, parts ...string) {
	for _, part := range parts {
		if _, err := io.WriteString(p.stdin, part); err != nil {
			log.FromContext(ctx).V(1).Info("cannot write to exec stream", "pod", p.pod, "error", err.Error())
			return
		}
	}
}

// openSignal reports the first read of the shell input, which happens once
// the stream is established.
type openSignal struct {
	r    io.Reader
	once sync.Once
	open func()
}

func (s *openSignal) Read(b []byte) (int, error) {
	s.once.Do(s.open)
	return s.r.Read(b)
}
