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
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cowdogmoo/dockyard/auth"
	"github.com/cowdogmoo/dockyard/buildcontext"
	"github.com/cowdogmoo/dockyard/config"
	"github.com/cowdogmoo/dockyard/engine"
	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/imagename"
	"github.com/cowdogmoo/dockyard/logging"
)

// BuildResult describes a built image.
type BuildResult struct {
	Image   string
	ImageID string
	// Tags are the additional local tags applied after the build.
	Tags          []string
	Platform      string
	Archive       string
	ContextDigest string
	// Unreferenced lists assembly layers the Dockerfile does not copy.
	Unreferenced []string
	Duration     time.Duration
}

// PushResult describes a completed push.
type PushResult struct {
	Image    string
	Registry string
	// Pushed lists the references pushed, in order.
	Pushed   []string
	Duration time.Duration
}

// Service builds, pushes and pulls images. Operations on one Service are
// serialized.
type Service struct {
	mu           sync.Mutex
	globalConfig *config.Config
	engine       Engine
	assembler    ContextAssembler
	credentials  CredentialResolver
	cache        *PullCache
	strategy     *StrategyDetector

	// BaseDir resolves relative paths of image descriptions.
	BaseDir string
	// Decrypt turns configured registry passwords into clear text.
	Decrypt func(string) (string, error)
}

// NewService creates a service with its own pull cache.
func NewService(cfg *config.Config, eng Engine, assembler ContextAssembler, creds CredentialResolver) *Service {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Service{
		globalConfig: cfg,
		engine:       eng,
		assembler:    assembler,
		credentials:  creds,
		cache:        NewPullCache(),
		strategy:     NewStrategyDetector(),
	}
}

// Cache returns the service's pull cache.
func (s *Service) Cache() *PullCache {
	return s.cache
}

// Build pulls the base image according to the pull policy, assembles the
// build context, builds the image and applies the additional tags.
func (s *Service) Build(ctx context.Context, img *imageconfig.ImageConfiguration, opts Options) (*BuildResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if img.Build == nil {
		return nil, errors.Configuration("build image", img.Name, fmt.Errorf("no build description"))
	}
	name, err := imagename.Parse(img.Name)
	if err != nil {
		return nil, err
	}
	set, err := ApplyOverrides(ctx, img, opts, s.globalConfig)
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Building %s", img.Description())
	if strategy, reason := s.strategy.DetectStrategy(ctx, set.Platform); strategy == Emulated {
		logging.WarnContext(ctx, "%s, this may be slower", reason)
	}

	if from := img.Build.From; from != "" && img.Build.Dockerfile == "" {
		if err := s.pullByPolicy(ctx, from, set); err != nil {
			return nil, err
		}
	}

	var previous string
	if set.Cleanup {
		if previous, err = s.engine.InspectImage(ctx, img.Name); err != nil {
			return nil, err
		}
	}

	workDir, err := s.workDir(img)
	if err != nil {
		return nil, err
	}
	bc, err := s.assembler.Assemble(ctx, buildcontext.Params{
		Image:       img,
		BaseDir:     s.BaseDir,
		WorkDir:     workDir,
		Compression: set.Compression,
	})
	if err != nil {
		return nil, errors.Wrap("assemble build context", img.Name, err)
	}

	labels := set.Labels
	if img.Build.Dockerfile != "" {
		// Synthesized Dockerfiles already carry the generated labels.
		bc.Labels.Each(func(k, v string) {
			if _, ok := labels.Get(k); !ok {
				labels.Set(k, v)
			}
		})
	}

	id, err := s.engine.BuildImage(ctx, img.Name, bc.Archive, engine.BuildOptions{
		Dockerfile: bc.Dockerfile,
		BuildArgs:  set.BuildArgs,
		Labels:     labels,
		NoCache:    set.NoCache,
		Platform:   set.Platform,
		Progress:   logging.NewProgress(ctx, "build "+img.Description()),
	})
	if err != nil {
		return nil, err
	}

	result := &BuildResult{
		Image:         img.Name,
		ImageID:       id,
		Platform:      set.Platform,
		Archive:       bc.Archive,
		ContextDigest: bc.Digest.String(),
		Unreferenced:  bc.Unreferenced,
	}

	for _, tag := range set.Tags {
		target := name.WithTag(tag).String()
		if err := s.engine.TagImage(ctx, img.Name, target, true); err != nil {
			return nil, err
		}
		result.Tags = append(result.Tags, target)
	}

	if previous != "" && previous != id {
		if err := s.engine.RemoveImage(ctx, previous, false); err != nil {
			logging.WarnContext(ctx, "Failed to remove previous image %s: %v", previous, err)
		} else {
			logging.InfoContext(ctx, "Removed previous image %s", previous)
		}
	}

	result.Duration = time.Since(start)
	logging.InfoContext(ctx, "Built %s (%s) in %s", img.Name, id, result.Duration.Round(time.Millisecond))
	return result, nil
}

// Push pushes the image and its additional tags.
func (s *Service) Push(ctx context.Context, img *imageconfig.ImageConfiguration, opts Options) (*PushResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	name, err := imagename.Parse(img.Name)
	if err != nil {
		return nil, err
	}
	set, err := ApplyOverrides(ctx, img, opts, s.globalConfig)
	if err != nil {
		return nil, err
	}

	// An embedded registry always wins over the configured one.
	registry := name.Registry
	temporary := false
	if registry == "" && set.Registry != "" {
		registry = set.Registry
		temporary = true
	}
	result := &PushResult{Image: img.Name, Registry: registry}
	if result.Registry == "" {
		result.Registry = imagename.DefaultRegistry
	}

	creds, err := s.credentials.Resolve(ctx, auth.ModePush, s.registryConfig(registry, set))
	if err != nil {
		return nil, s.pushError(img, result.Registry, err)
	}

	targets := []imagename.Name{name}
	if !set.SkipTags {
		for _, tag := range set.Tags {
			targets = append(targets, name.WithTag(tag))
		}
	}

	for i, local := range targets {
		if i > 0 {
			if err := s.engine.TagImage(ctx, img.Name, local.String(), true); err != nil {
				return result, s.pushError(img, result.Registry, err)
			}
		}

		ref := local.FullName()
		if temporary {
			ref = local.WithRegistry(registry).FullName()
			if err := s.pushTemporary(ctx, local.FullName(), ref, registry, creds, set); err != nil {
				return result, s.pushError(img, result.Registry, err)
			}
		} else if err := s.engine.PushImage(ctx, ref, result.Registry, creds, set.Retries, logging.NewProgress(ctx, "push "+ref)); err != nil {
			return result, s.pushError(img, result.Registry, err)
		}
		result.Pushed = append(result.Pushed, ref)
	}

	result.Duration = time.Since(start)
	logging.InfoContext(ctx, "Pushed %s to %s", strings.Join(result.Pushed, ", "), result.Registry)
	return result, nil
}

// pushTemporary tags local as remote, pushes remote and removes the
// temporary tag again, also when the push fails.
func (s *Service) pushTemporary(ctx context.Context, local, remote, registry string, creds *auth.Config, set Settings) (err error) {
	if err := s.engine.TagImage(ctx, local, remote, true); err != nil {
		return err
	}
	defer func() {
		if rmErr := s.engine.RemoveImage(ctx, remote, false); rmErr != nil {
			logging.WarnContext(ctx, "Failed to remove temporary tag %s: %v", remote, rmErr)
		}
	}()
	return s.engine.PushImage(ctx, remote, registry, creds, set.Retries, logging.NewProgress(ctx, "push "+remote))
}

func (s *Service) pushError(img *imageconfig.ImageConfiguration, registry string, err error) error {
	return errors.Wrap("push image", img.Name+" to "+registry, err)
}

// Pull pulls the image according to the pull policy.
func (s *Service) Pull(ctx context.Context, img *imageconfig.ImageConfiguration, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := ApplyOverrides(ctx, img, opts, s.globalConfig)
	if err != nil {
		return err
	}
	return s.pullByPolicy(ctx, img.Name, set)
}

// pullByPolicy applies the pull policy to ref, qualified with the settings'
// registry when it embeds none.
func (s *Service) pullByPolicy(ctx context.Context, ref string, set Settings) error {
	name, err := imagename.Qualify(ref, set.Registry)
	if err != nil {
		return err
	}
	key := name.FullName()

	switch set.PullPolicy {
	case PullNever:
		id, err := s.engine.InspectImage(ctx, key)
		if err != nil {
			return err
		}
		if id == "" {
			return errors.PullPolicy("use image", key,
				fmt.Errorf("image %s is not present locally and pull policy is %s", key, PullNever))
		}
		return nil

	case PullIfNotPresent:
		if s.cache.Pulled(key) {
			logging.DebugContext(ctx, "%s already pulled in this session", key)
			return nil
		}
		id, err := s.engine.InspectImage(ctx, key)
		if err != nil {
			return err
		}
		if id != "" {
			logging.DebugContext(ctx, "%s is present locally (%s)", key, id)
			return nil
		}
	}

	creds, err := s.credentials.Resolve(ctx, auth.ModePull, s.registryConfig(name.Registry, set))
	if err != nil {
		return err
	}
	err = s.engine.PullImage(ctx, key, creds, "", engine.PullOptions{
		Platform: set.Platform,
		Retries:  set.Retries,
		Progress: logging.NewProgress(ctx, "pull "+key),
	})
	if err != nil {
		return errors.Wrap("pull image", key+" from "+name.RegistryOrDefault(), err)
	}
	s.cache.MarkPulled(key)
	return nil
}

func (s *Service) registryConfig(registry string, set Settings) auth.RegistryConfig {
	return auth.RegistryConfig{
		Registry: registry,
		Settings: auth.Settings{Credentials: auth.Credentials{
			Username: s.globalConfig.Registry.Username,
			Password: s.globalConfig.Registry.Password,
		}},
		SkipExtendedAuth: set.SkipExtendedAuth,
		Decrypt:          s.Decrypt,
	}
}

var workDirReplacer = strings.NewReplacer("/", "_", ":", "_", "@", "_")

// workDir returns the per-image directory under the build directory.
func (s *Service) workDir(img *imageconfig.ImageConfiguration) (string, error) {
	root, err := s.globalConfig.BuildDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, workDirReplacer.Replace(img.Description())), nil
}

// ChangedFiles writes an archive of the assembly files changed since the
// last build of img, or returns "" when nothing changed.
func (s *Service) ChangedFiles(ctx context.Context, img *imageconfig.ImageConfiguration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workDir, err := s.workDir(img)
	if err != nil {
		return "", err
	}
	return s.assembler.ChangedFiles(ctx, buildcontext.Params{Image: img, BaseDir: s.BaseDir, WorkDir: workDir})
}
