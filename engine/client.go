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

package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/Masterminds/semver/v3"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cowdogmoo/dockyard/config"
	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/logging"
)

// APIClient is the subset of the engine remote API used by dockyard.
// It allows mock implementations in tests.
type APIClient interface {
	// Image operations
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ImageTag(ctx context.Context, source, target string) error
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ImageInspect(ctx context.Context, imageID string) (image.InspectResponse, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)

	// Container operations (for the watch loop)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecStartOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)

	ServerVersion(ctx context.Context) (types.Version, error)

	// Lifecycle
	Close() error
}

// dockerClientAdapter wraps the SDK client to match APIClient. The SDK uses
// variadic options for image inspection while the interface uses fixed
// parameters.
type dockerClientAdapter struct {
	*dockerclient.Client
}

// ImageInspect adapts the SDK's variadic signature to the fixed interface.
func (a *dockerClientAdapter) ImageInspect(ctx context.Context, imageID string) (image.InspectResponse, error) {
	return a.Client.ImageInspect(ctx, imageID)
}

// Client talks to the container engine. It is safe for concurrent use; the
// orchestrator serializes the calls that must not overlap.
type Client struct {
	api APIClient
}

// New returns a Client over api.
func New(api APIClient) *Client {
	return &Client{api: api}
}

// NewFromConfig connects to the engine described by cfg. DOCKER_HOST and
// the other DOCKER_* variables apply unless the config overrides them.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	opts := []dockerclient.Opt{dockerclient.FromEnv}
	if cfg.Engine.Host != "" {
		opts = append(opts, dockerclient.WithHost(cfg.Engine.Host))
	}
	if cfg.Engine.APIVersion != "" {
		opts = append(opts, dockerclient.WithVersion(cfg.Engine.APIVersion))
	} else {
		opts = append(opts, dockerclient.WithAPIVersionNegotiation())
	}
	if cfg.Engine.Timeout > 0 {
		opts = append(opts, dockerclient.WithTimeout(cfg.Engine.Timeout))
	}

	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Configuration("create engine client", cfg.Engine.Host, err)
	}
	logging.DebugContext(ctx, "Engine client for %s", logging.RedactURL(cli.DaemonHost()))

	return New(&dockerClientAdapter{Client: cli}), nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if err := c.api.Close(); err != nil {
		return fmt.Errorf("failed to close engine client: %w", err)
	}
	return nil
}

// CheckVersion returns the engine API version and fails when it is older
// than minimum. An empty minimum accepts any version.
func (c *Client) CheckVersion(ctx context.Context, minimum string) (string, error) {
	v, err := c.api.ServerVersion(ctx)
	if err != nil {
		return "", errors.RegistryProtocol("query engine version", "", err)
	}
	if minimum == "" {
		return v.APIVersion, nil
	}

	want, err := semver.NewVersion(minimum)
	if err != nil {
		return "", errors.Configuration("parse minimum engine API version", minimum, err)
	}
	have, err := semver.NewVersion(v.APIVersion)
	if err != nil {
		return "", errors.RegistryProtocol("parse engine API version", v.APIVersion, err)
	}
	if have.LessThan(want) {
		return v.APIVersion, errors.Configuration("check engine API version", v.APIVersion,
			fmt.Errorf("engine API %s is older than the required %s", v.APIVersion, minimum))
	}

	logging.DebugContext(ctx, "Engine %s, API %s", v.Version, v.APIVersion)
	return v.APIVersion, nil
}
