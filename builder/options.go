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
	"sort"

	"github.com/cowdogmoo/dockyard/archive"
	"github.com/cowdogmoo/dockyard/config"
	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// Options are overrides from the command line. They take precedence over
// the image description and the global configuration.
type Options struct {
	// Registry overrides the registry used for images without an embedded one
	Registry string

	// Tags adds tags to the configured additional tags
	Tags []string

	// Labels adds image labels in key=value format (parsed externally)
	Labels map[string]string

	// BuildArgs adds build arguments in key=value format (parsed externally)
	BuildArgs map[string]string

	// PullPolicy overrides the configured pull policy
	PullPolicy string

	// Retries overrides the push and pull retry count; negative means unset
	Retries int

	// Platform overrides the build platform, e.g. linux/arm64
	Platform string

	NoCache  bool
	SkipTags bool
	Cleanup  bool
}

// Settings are the effective settings for one image after overrides.
type Settings struct {
	Registry         string
	Tags             []string
	Labels           imageconfig.OrderedMap
	BuildArgs        imageconfig.OrderedMap
	PullPolicy       PullPolicy
	Retries          int
	Platform         string
	Compression      archive.Compression
	NoCache          bool
	SkipTags         bool
	Cleanup          bool
	SkipExtendedAuth bool
}

// ApplyOverrides computes the settings for img.
// Precedence: Options > image description > global configuration > defaults.
func ApplyOverrides(ctx context.Context, img *imageconfig.ImageConfiguration, opts Options, globalCfg *config.Config) (Settings, error) {
	if globalCfg == nil {
		logging.WarnContext(ctx, "No global configuration provided, some defaults may not be applied")
		globalCfg = &config.Config{}
	}
	b := img.Build
	if b == nil {
		b = &imageconfig.BuildDescription{}
	}

	s := Settings{
		Registry:         firstOf(opts.Registry, img.Registry, globalCfg.Registry.Default),
		Platform:         firstOf(opts.Platform, b.Platform),
		NoCache:          opts.NoCache || b.NoCache || globalCfg.Build.NoCache,
		SkipTags:         opts.SkipTags || globalCfg.Registry.SkipTags,
		Cleanup:          opts.Cleanup || b.Cleanup || globalCfg.Build.Cleanup,
		SkipExtendedAuth: globalCfg.Registry.SkipExtendedAuth,
		Retries:          globalCfg.Registry.Retries,
	}
	if opts.Retries >= 0 {
		s.Retries = opts.Retries
	}

	policy, err := ParsePullPolicy(firstOf(opts.PullPolicy, b.PullPolicy, globalCfg.Registry.PullPolicy))
	if err != nil {
		return Settings{}, errors.Configuration("apply overrides", img.Name, err)
	}
	s.PullPolicy = policy

	if s.Compression, err = archive.ParseCompression(firstOf(b.Compression, globalCfg.Build.Compression)); err != nil {
		return Settings{}, err
	}

	s.Tags = mergeTags(b.Tags, opts.Tags)
	s.Labels = overlay(ctx, imageconfig.OrderedMap{}, opts.Labels, "label")
	s.BuildArgs = overlay(ctx, b.BuildArgs, opts.BuildArgs, "build arg")

	return s, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func mergeTags(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, t := range list {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// overlay copies base and applies extra in key order.
func overlay(ctx context.Context, base imageconfig.OrderedMap, extra map[string]string, what string) imageconfig.OrderedMap {
	var out imageconfig.OrderedMap
	base.Each(func(k, v string) { out.Set(k, v) })

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Set(k, extra[k])
		logging.DebugContext(ctx, "Added %s: %s=%s", what, k, logging.RedactSensitiveValue(k, extra[k]))
	}
	return out
}
