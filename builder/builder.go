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

// Package builder drives the build, push and pull pipeline for the images of
// an image configuration file.
//
// # Architecture
//
// The package is organized into several layers:
//
//   - Interfaces (builder.go): the engine, context assembler and credential
//     resolver the service depends on
//   - Pull policy (pullpolicy.go): policies and the per-service pull cache
//   - Service layer (service.go): build, push and pull for one image
//   - Orchestrator (orchestrator.go): runs the service over several images
//     in configuration order
//   - Overrides (options.go): command line and global configuration defaults
//   - Report (report.go): JSON summary of a run for CI pipelines
//
// # Push Algorithm
//
// For an image name N with additional tags T1..Tn and a registry R:
//
//  1. If N embeds a registry, that registry wins over R.
//  2. If N has no registry and R is set, N is tagged R/N, R/N is pushed and
//     the temporary tag is removed again. The local tag N is left untouched.
//  3. If neither carries a registry, N is pushed as is to the default registry.
//  4. Each additional tag is pushed the same way unless tags are skipped.
//
// Pushed tags are not rolled back when a later tag fails.
//
// # Concurrency
//
// A Service serializes its operations with a mutex, so a rebuild requested by
// the watch loop waits for an in-flight build or push instead of running in
// parallel. The pull cache belongs to one Service; callers that need isolated
// sessions create separate services.
package builder

import (
	"context"

	"github.com/cowdogmoo/dockyard/auth"
	"github.com/cowdogmoo/dockyard/buildcontext"
	"github.com/cowdogmoo/dockyard/engine"
	"github.com/cowdogmoo/dockyard/logging"
)

// Engine is the container engine as seen by the service.
//
// Implementations:
//   - engine.Client: the docker remote API
type Engine interface {
	// BuildImage builds the context archive and tags the result name.
	BuildImage(ctx context.Context, name, contextArchive string, opts engine.BuildOptions) (string, error)

	// TagImage adds target as a tag of source.
	TagImage(ctx context.Context, source, target string, force bool) error

	// PushImage pushes name, retrying retryable failures.
	PushImage(ctx context.Context, name, registry string, creds *auth.Config, retries int, progress *logging.Progress) error

	// PullImage pulls name, qualified with registry when it embeds none.
	PullImage(ctx context.Context, name string, creds *auth.Config, registry string, opts engine.PullOptions) error

	// InspectImage returns the local image id or "" when absent.
	InspectImage(ctx context.Context, name string) (string, error)

	// RemoveImage deletes a local image or tag.
	RemoveImage(ctx context.Context, name string, force bool) error
}

// ContextAssembler produces build contexts.
type ContextAssembler interface {
	Assemble(ctx context.Context, p buildcontext.Params) (*buildcontext.Context, error)

	// ChangedFiles archives the assembly files changed since the last
	// Assemble, returning "" when nothing changed.
	ChangedFiles(ctx context.Context, p buildcontext.Params) (string, error)
}

// CredentialResolver resolves registry credentials. A nil config means
// anonymous access.
type CredentialResolver interface {
	Resolve(ctx context.Context, mode auth.Mode, rc auth.RegistryConfig) (*auth.Config, error)
}

var (
	_ Engine             = (*engine.Client)(nil)
	_ ContextAssembler   = (*buildcontext.Assembler)(nil)
	_ CredentialResolver = (*auth.Resolver)(nil)
)
