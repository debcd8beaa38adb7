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
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/imagename"
	"github.com/cowdogmoo/dockyard/logging"
)

// ErrExecFailed is returned when a command run in a container exits non-zero.
var ErrExecFailed = stderrors.New("command exited non-zero")

// stopTimeout is how long a container gets to stop before it is killed.
const stopTimeout = 10

// ExecResult is the captured outcome of a command run in a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ContainerName returns the configured container name or one derived from
// the image name.
func ContainerName(imageRef string, run *imageconfig.RunDescription) string {
	if run != nil && run.ContainerName != "" {
		return run.ContainerName
	}
	n, err := imagename.Parse(imageRef)
	if err != nil {
		return imageRef
	}
	return n.SimpleName()
}

// CopyArchive extracts a tar archive into a running container at destDir.
func (c *Client) CopyArchive(ctx context.Context, containerName, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Archive("open archive", archivePath, err)
	}
	defer func() { _ = f.Close() }()

	if err := c.api.CopyToContainer(ctx, containerName, destDir, f, container.CopyToContainerOptions{}); err != nil {
		return errors.RegistryProtocol("copy archive into container", containerName+":"+destDir, err)
	}

	logging.DebugContext(ctx, "Copied %s into %s:%s", archivePath, containerName, destDir)
	return nil
}

// RecreateContainer stops and removes the container for imageRef, if any,
// then creates and starts a fresh one from the current image.
func (c *Client) RecreateContainer(ctx context.Context, imageRef string, run *imageconfig.RunDescription) (string, error) {
	name := ContainerName(imageRef, run)

	if err := c.removeContainer(ctx, name); err != nil {
		return "", err
	}

	cfg := &container.Config{Image: imageRef}
	hostCfg := &container.HostConfig{}
	if run != nil {
		run.Env.Each(func(k, v string) {
			cfg.Env = append(cfg.Env, k+"="+v)
		})
		if !run.Cmd.IsEmpty() {
			cfg.Cmd = run.Cmd.Argv()
		}
		if len(run.Ports) > 0 {
			exposed, bindings, err := nat.ParsePortSpecs(run.Ports)
			if err != nil {
				return "", errors.Configuration("parse ports", name, err)
			}
			cfg.ExposedPorts = exposed
			hostCfg.PortBindings = bindings
		}
	}

	created, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", errors.RegistryProtocol("create container", name, err)
	}
	for _, w := range created.Warnings {
		logging.WarnContext(ctx, "Container %s: %s", name, w)
	}

	if err := c.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", errors.RegistryProtocol("start container", name, err)
	}

	logging.InfoContext(ctx, "Started container %s from %s", name, imageRef)
	return created.ID, nil
}

func (c *Client) removeContainer(ctx context.Context, name string) error {
	timeout := stopTimeout
	if err := c.api.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return errors.RegistryProtocol("stop container", name, err)
	}
	if err := c.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !cerrdefs.IsNotFound(err) {
		return errors.RegistryProtocol("remove container", name, err)
	}
	logging.DebugContext(ctx, "Removed container %s", name)
	return nil
}

// Exec runs cmd inside a running container and captures its output. A
// non-zero exit returns the result together with ErrExecFailed.
func (c *Client) Exec(ctx context.Context, containerName string, cmd []string) (*ExecResult, error) {
	created, err := c.api.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, errors.RegistryProtocol("create exec", containerName, err)
	}

	resp, err := c.api.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, errors.RegistryProtocol("attach to exec", containerName, err)
	}
	defer resp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil {
		return nil, errors.Wrap("read exec output", containerName, err)
	}

	inspect, err := c.api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, errors.RegistryProtocol("inspect exec", containerName, err)
	}

	result := &ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if inspect.ExitCode != 0 {
		return result, fmt.Errorf("%w with exit code %d: %s", ErrExecFailed, inspect.ExitCode, result.Stderr)
	}
	return result, nil
}
