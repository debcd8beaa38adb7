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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"

	"github.com/cowdogmoo/dockyard/auth"
	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/imagename"
	"github.com/cowdogmoo/dockyard/logging"
)

// BuildOptions tune an image build.
type BuildOptions struct {
	// Dockerfile is the instruction file inside the context archive.
	Dockerfile string
	BuildArgs  imageconfig.OrderedMap
	Labels     imageconfig.OrderedMap
	NoCache    bool
	Platform   string
	Progress   *logging.Progress
}

// PullOptions tune an image pull.
type PullOptions struct {
	Platform string
	Retries  int
	Progress *logging.Progress
}

// BuildImage sends the context archive to the engine and returns the id of
// the image tagged name.
func (c *Client) BuildImage(ctx context.Context, name, contextArchive string, opts BuildOptions) (string, error) {
	f, err := os.Open(contextArchive)
	if err != nil {
		return "", errors.Archive("open build context", contextArchive, err)
	}
	defer func() { _ = f.Close() }()

	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	buildOpts := build.ImageBuildOptions{
		Tags:        []string{name},
		Dockerfile:  dockerfile,
		NoCache:     opts.NoCache,
		Remove:      true,
		ForceRemove: true,
		Platform:    opts.Platform,
		BuildArgs:   make(map[string]*string, opts.BuildArgs.Len()),
		Labels:      opts.Labels.Map(),
	}
	opts.BuildArgs.Each(func(k, v string) {
		value := v
		buildOpts.BuildArgs[k] = &value
	})

	logging.InfoContext(ctx, "Building image %s", name)
	resp, err := c.api.ImageBuild(ctx, f, buildOpts)
	if err != nil {
		return "", errors.RegistryProtocol("build image", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var id string
	err = readStream(resp.Body, opts.Progress, func(aux json.RawMessage) {
		var result build.Result
		if json.Unmarshal(aux, &result) == nil && result.ID != "" {
			id = result.ID
		}
	})
	if err != nil {
		return "", errors.RegistryProtocol("build image", name, err)
	}
	opts.Progress.Done()

	if id == "" {
		if id, err = c.InspectImage(ctx, name); err != nil {
			return "", err
		}
		if id == "" {
			return "", errors.RegistryProtocol("build image", name, fmt.Errorf("engine reported no image id"))
		}
	}

	logging.DebugContext(ctx, "Built %s as %s", name, id)
	return id, nil
}

// TagImage tags source as target. Without force an existing target that
// points at another image is an error.
func (c *Client) TagImage(ctx context.Context, source, target string, force bool) error {
	if !force {
		existing, err := c.InspectImage(ctx, target)
		if err != nil {
			return err
		}
		if existing != "" {
			current, err := c.InspectImage(ctx, source)
			if err != nil {
				return err
			}
			if current != existing {
				return errors.Wrap("tag image", source+" as "+target,
					fmt.Errorf("tag already points at %s", shortID(existing)))
			}
		}
	}

	if err := c.api.ImageTag(ctx, source, target); err != nil {
		return errors.RegistryProtocol("tag image", source+" as "+target, err)
	}
	logging.DebugContext(ctx, "Tagged %s as %s", source, target)
	return nil
}

// PushImage pushes name, which must already carry the target registry or
// address the default one. Retryable failures are retried up to retries
// extra times.
func (c *Client) PushImage(ctx context.Context, name, registry string, creds *auth.Config, retries int, progress *logging.Progress) error {
	registryAuth, err := creds.Encode()
	if err != nil {
		return err
	}
	if registry == "" {
		registry = registryOf(name)
	}

	logging.InfoContext(ctx, "Pushing %s to %s (%s)", name, registry, creds)
	err = withRetries(ctx, "push", name, registry, retries, func() error {
		body, err := c.api.ImagePush(ctx, name, image.PushOptions{RegistryAuth: registryAuth})
		if err != nil {
			return err
		}
		defer func() { _ = body.Close() }()
		return readStream(body, progress, nil)
	})
	if err != nil {
		return err
	}

	progress.Done()
	return nil
}

// PullImage pulls name. When name embeds no registry it is qualified with
// registry first.
func (c *Client) PullImage(ctx context.Context, name string, creds *auth.Config, registry string, opts PullOptions) error {
	ref, err := imagename.Qualify(name, registry)
	if err != nil {
		return err
	}
	registryAuth, err := creds.Encode()
	if err != nil {
		return err
	}

	full := ref.FullName()
	logging.InfoContext(ctx, "Pulling %s (%s)", full, creds)
	err = withRetries(ctx, "pull", full, ref.RegistryOrDefault(), opts.Retries, func() error {
		body, err := c.api.ImagePull(ctx, full, image.PullOptions{
			RegistryAuth: registryAuth,
			Platform:     opts.Platform,
		})
		if err != nil {
			return err
		}
		defer func() { _ = body.Close() }()
		return readStream(body, opts.Progress, nil)
	})
	if err != nil {
		return err
	}

	opts.Progress.Done()
	return nil
}

// InspectImage returns the id of the local image name, or "" when the
// engine does not know it.
func (c *Client) InspectImage(ctx context.Context, name string) (string, error) {
	resp, err := c.api.ImageInspect(ctx, name)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return "", nil
		}
		return "", errors.RegistryProtocol("inspect image", name, err)
	}
	return resp.ID, nil
}

// RemoveImage deletes a local image or tag. A missing image is not an error.
func (c *Client) RemoveImage(ctx context.Context, name string, force bool) error {
	_, err := c.api.ImageRemove(ctx, name, image.RemoveOptions{
		Force:         force,
		PruneChildren: true,
	})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return errors.RegistryProtocol("remove image", name, err)
	}

	logging.DebugContext(ctx, "Removed image: %s", name)
	return nil
}

func registryOf(name string) string {
	n, err := imagename.Parse(name)
	if err != nil {
		return imagename.DefaultRegistry
	}
	return n.RegistryOrDefault()
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
