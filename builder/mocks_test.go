/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package builder

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/cowdogmoo/dockyard/auth"
	"github.com/cowdogmoo/dockyard/buildcontext"
	"github.com/cowdogmoo/dockyard/engine"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// mockEngine records every call as a short string and keeps a table of
// local images.
type mockEngine struct {
	mu     sync.Mutex
	calls  []string
	images map[string]string

	BuildImageFunc func(ctx context.Context, name, contextArchive string, opts engine.BuildOptions) (string, error)
	PushImageFunc  func(ctx context.Context, name, registry string, creds *auth.Config, retries int) error
	PullImageFunc  func(ctx context.Context, name string, creds *auth.Config, opts engine.PullOptions) error
	RemoveFunc     func(ctx context.Context, name string, force bool) error
}

func newMockEngine() *mockEngine {
	return &mockEngine{images: make(map[string]string)}
}

func (m *mockEngine) record(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockEngine) BuildImage(ctx context.Context, name, contextArchive string, opts engine.BuildOptions) (string, error) {
	m.record("build %s", name)
	if m.BuildImageFunc != nil {
		return m.BuildImageFunc(ctx, name, contextArchive, opts)
	}
	m.images[name] = "sha256:built"
	return "sha256:built", nil
}

func (m *mockEngine) TagImage(_ context.Context, source, target string, _ bool) error {
	m.record("tag %s %s", source, target)
	m.images[target] = m.images[source]
	return nil
}

func (m *mockEngine) PushImage(ctx context.Context, name, registry string, creds *auth.Config, retries int, _ *logging.Progress) error {
	m.record("push %s", name)
	if m.PushImageFunc != nil {
		return m.PushImageFunc(ctx, name, registry, creds, retries)
	}
	return nil
}

func (m *mockEngine) PullImage(ctx context.Context, name string, creds *auth.Config, _ string, opts engine.PullOptions) error {
	m.record("pull %s", name)
	if m.PullImageFunc != nil {
		return m.PullImageFunc(ctx, name, creds, opts)
	}
	m.images[name] = "sha256:pulled"
	return nil
}

func (m *mockEngine) InspectImage(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images[name], nil
}

func (m *mockEngine) RemoveImage(ctx context.Context, name string, force bool) error {
	m.record("remove %s", name)
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, name, force)
	}
	delete(m.images, name)
	return nil
}

type mockAssembler struct {
	AssembleFunc     func(ctx context.Context, p buildcontext.Params) (*buildcontext.Context, error)
	ChangedFilesFunc func(ctx context.Context, p buildcontext.Params) (string, error)
	params           []buildcontext.Params
}

func (m *mockAssembler) Assemble(ctx context.Context, p buildcontext.Params) (*buildcontext.Context, error) {
	m.params = append(m.params, p)
	if m.AssembleFunc != nil {
		return m.AssembleFunc(ctx, p)
	}
	return &buildcontext.Context{
		Archive:    p.WorkDir + "/context.tar",
		Dockerfile: "Dockerfile",
		Digest:     digest.FromString("context"),
		Labels:     imageconfig.NewOrderedMap("org.opencontainers.image.revision", "abc123"),
	}, nil
}

func (m *mockAssembler) ChangedFiles(ctx context.Context, p buildcontext.Params) (string, error) {
	m.params = append(m.params, p)
	if m.ChangedFilesFunc != nil {
		return m.ChangedFilesFunc(ctx, p)
	}
	return "", nil
}

type mockResolver struct {
	ResolveFunc func(ctx context.Context, mode auth.Mode, rc auth.RegistryConfig) (*auth.Config, error)
	requests    []auth.RegistryConfig
}

func (m *mockResolver) Resolve(ctx context.Context, mode auth.Mode, rc auth.RegistryConfig) (*auth.Config, error) {
	m.requests = append(m.requests, rc)
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, mode, rc)
	}
	return nil, nil
}
