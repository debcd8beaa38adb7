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

package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/cowdogmoo/dockyard/assembly"
	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
)

// Detector kinds.
const (
	DetectorPoll   = "poll"
	DetectorNotify = "notify"
)

// Detector reports whether the sources of an image changed since the
// previous call. The first call for an image records a baseline and
// reports no change.
type Detector interface {
	Changed(ctx context.Context, img *imageconfig.ImageConfiguration) (bool, error)
	Close() error
}

// Pump is implemented by detectors that need a goroutine to collect
// events. Run blocks until ctx is done.
type Pump interface {
	Run(ctx context.Context) error
}

// NewDetector returns the detector named kind. Empty means poll.
func NewDetector(kind, baseDir string) (Detector, error) {
	switch strings.ToLower(kind) {
	case "", DetectorPoll:
		return NewPollDetector(baseDir), nil
	case DetectorNotify:
		return NewNotifyDetector(baseDir)
	default:
		return nil, errors.Configuration("create change detector", kind,
			fmt.Errorf("must be %s or %s", DetectorPoll, DetectorNotify))
	}
}

// PollDetector compares a digest of the resolved assembly sources
// between calls. It sees added, removed and modified files.
type PollDetector struct {
	baseDir  string
	resolver *assembly.Resolver

	mu      sync.Mutex
	digests map[string]digest.Digest
}

// NewPollDetector returns a poll detector resolving relative paths
// against baseDir.
func NewPollDetector(baseDir string) *PollDetector {
	return &PollDetector{
		baseDir:  baseDir,
		resolver: assembly.NewResolver(),
		digests:  make(map[string]digest.Digest),
	}
}

// Changed implements Detector.
func (d *PollDetector) Changed(ctx context.Context, img *imageconfig.ImageConfiguration) (bool, error) {
	current, err := d.fingerprint(ctx, img)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	previous, seen := d.digests[img.Name]
	d.digests[img.Name] = current
	return seen && previous != current, nil
}

// Close implements Detector.
func (d *PollDetector) Close() error { return nil }

// fingerprint digests path, size and modification time of every source
// file of img.
func (d *PollDetector) fingerprint(ctx context.Context, img *imageconfig.ImageConfiguration) (digest.Digest, error) {
	if img.Build == nil {
		return digest.FromString(""), nil
	}

	var sources []string
	for i := range img.Build.Assemblies {
		res, err := d.resolver.Resolve(ctx, &img.Build.Assemblies[i], assembly.Dirs{
			BaseDir:   d.baseDir,
			OutputDir: string(filepath.Separator),
		})
		if err != nil {
			return "", err
		}
		for _, e := range res.Entries {
			if !e.IsDir {
				sources = append(sources, e.Source)
			}
		}
	}
	if img.Build.Dockerfile != "" {
		sources = append(sources, resolvePath(d.baseDir, img.Build.Dockerfile))
	}
	sort.Strings(sources)

	var b strings.Builder
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			fmt.Fprintf(&b, "%s missing\n", src)
			continue
		}
		fmt.Fprintf(&b, "%s %d %d\n", src, info.Size(), info.ModTime().UnixNano())
	}
	return digest.FromString(b.String()), nil
}

// SourceDirs returns the directories holding the sources of img.
func SourceDirs(img *imageconfig.ImageConfiguration, baseDir string) []string {
	if img.Build == nil {
		return nil
	}

	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if dir != "" && !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, a := range img.Build.Assemblies {
		for _, set := range a.FileSets {
			add(resolvePath(baseDir, set.Directory))
		}
		for _, f := range a.Files {
			add(filepath.Dir(resolvePath(baseDir, f.Source)))
		}
	}
	if img.Build.Dockerfile != "" {
		add(filepath.Dir(resolvePath(baseDir, img.Build.Dockerfile)))
	}
	return dirs
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}
