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

// Package buildcontext turns an image description into the build context
// archive sent to the container engine: staged assembly layers plus either
// a synthesized Dockerfile or the configured one with its directory.
package buildcontext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	digest "github.com/opencontainers/go-digest"

	"github.com/cowdogmoo/dockyard/archive"
	"github.com/cowdogmoo/dockyard/assembly"
	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// DockerfileName is the name of a synthesized Dockerfile in the context.
const DockerfileName = "Dockerfile"

// Params selects the image to assemble and where to work.
type Params struct {
	Image *imageconfig.ImageConfiguration
	// BaseDir resolves relative paths of the description.
	BaseDir string
	// WorkDir holds the staged tree and the archives for this image.
	WorkDir string
	// Compression overrides the description's compression when set.
	Compression  archive.Compression
	LongFileMode archive.LongFileMode
}

// Context is an assembled build context.
type Context struct {
	// Archive is the path of the context archive.
	Archive     string
	Compression archive.Compression
	// Dockerfile is the Dockerfile path inside the archive.
	Dockerfile string
	Digest     digest.Digest
	// Labels are the generated labels, also passed to the engine.
	Labels     imageconfig.OrderedMap
	Assemblies []*assembly.Result
	// Unreferenced lists assembly layers a configured Dockerfile does
	// not copy.
	Unreferenced []string
}

// Assembler builds contexts. One assembler remembers what it staged so
// ChangedFiles can select what changed since.
type Assembler struct {
	resolver *assembly.Resolver
	archiver *archive.Builder
	tracker  *assembly.Tracker
	now      func() time.Time
}

// NewAssembler returns an assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		resolver: assembly.NewResolver(),
		archiver: archive.NewBuilder(),
		tracker:  assembly.NewTracker(),
		now:      time.Now,
	}
}

func (p Params) stageDir() string   { return filepath.Join(p.WorkDir, "build") }
func (p Params) archiveDir() string { return filepath.Join(p.WorkDir, "tmp") }

func (p Params) compression() (archive.Compression, error) {
	if p.Compression != "" {
		return p.Compression, nil
	}
	return archive.ParseCompression(p.Image.Build.Compression)
}

func (p Params) validate() error {
	if p.Image == nil || p.Image.Build == nil {
		return errors.Configuration("assemble build context", "", fmt.Errorf("no build description"))
	}
	if p.WorkDir == "" {
		return errors.Configuration("assemble build context", p.Image.Name, fmt.Errorf("no work directory"))
	}
	return nil
}

func trackerKey(image string, i int, desc *imageconfig.AssemblyDescriptor) string {
	return image + "#" + strconv.Itoa(i) + ":" + desc.ID
}

// resolve expands every assembly of the image against the staging dir.
func (a *Assembler) resolve(ctx context.Context, p Params) ([]*assembly.Result, error) {
	b := p.Image.Build
	results := make([]*assembly.Result, 0, len(b.Assemblies))
	for i := range b.Assemblies {
		res, err := a.resolver.Resolve(ctx, &b.Assemblies[i], assembly.Dirs{
			BaseDir:   p.BaseDir,
			OutputDir: p.stageDir(),
		})
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Assemble stages the image's assemblies and writes the build context
// archive.
func (a *Assembler) Assemble(ctx context.Context, p Params) (*Context, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	b := p.Image.Build
	compression, err := p.compression()
	if err != nil {
		return nil, err
	}

	stageDir := p.stageDir()
	if err := os.RemoveAll(stageDir); err != nil {
		return nil, errors.Wrap("clean staging directory", stageDir, err)
	}
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, errors.Wrap("create staging directory", stageDir, err)
	}

	results, err := a.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	permissions := make(map[string]string)
	for i, res := range results {
		if err := assembly.Stage(ctx, res.Entries); err != nil {
			return nil, err
		}
		for name, perm := range res.ArchivePermissions() {
			permissions[name] = perm
		}
		a.tracker.Record(trackerKey(p.Image.Name, i, &b.Assemblies[i]), res.Entries)
	}

	labels := imageconfig.NewOrderedMap()
	if b.GitLabels {
		if labels, err = GitLabels(ctx, p.BaseDir, a.now()); err != nil {
			return nil, err
		}
	}

	staged, err := topLevel(stageDir)
	if err != nil {
		return nil, err
	}

	out := &Context{
		Compression: compression,
		Labels:      labels,
		Assemblies:  results,
		Archive:     filepath.Join(p.archiveDir(), "docker-build"+compression.Extension()),
	}
	opts := archive.Options{
		Output:       out.Archive,
		BaseDir:      stageDir,
		Files:        staged,
		Permissions:  permissions,
		Compression:  compression,
		LongFileMode: p.LongFileMode,
	}

	if b.Dockerfile == "" {
		out.Dockerfile = DockerfileName
		opts.Entries = append(opts.Entries, archive.Entry{
			Name:    DockerfileName,
			Content: []byte(GenerateDockerfile(b, labels)),
		})
	} else {
		entries, dockerfile, unreferenced, err := a.dockerfileContext(ctx, p)
		if err != nil {
			return nil, err
		}
		opts.Entries = append(opts.Entries, entries...)
		out.Dockerfile = dockerfile
		out.Unreferenced = unreferenced
	}

	digester := digest.Canonical.Digester()
	opts.Stream = func(w io.Writer) io.Writer {
		return io.MultiWriter(w, digester.Hash())
	}
	if err := a.archiver.Create(ctx, opts); err != nil {
		return nil, err
	}
	out.Digest = digester.Digest()

	logging.DebugContext(ctx, "Created build context %s (%s)", out.Archive, out.Digest)
	return out, nil
}

// dockerfileContext collects the context directory of a configured
// Dockerfile, honoring .dockerignore, and verifies the assembly layers
// are copied.
func (a *Assembler) dockerfileContext(ctx context.Context, p Params) ([]archive.Entry, string, []string, error) {
	b := p.Image.Build
	dockerfile := resolvePath(p.BaseDir, b.Dockerfile)
	contextDir := filepath.Dir(dockerfile)
	if b.ContextDir != "" {
		contextDir = resolvePath(p.BaseDir, b.ContextDir)
	}

	content, err := os.ReadFile(dockerfile)
	if err != nil {
		return nil, "", nil, errors.Configuration("read dockerfile", dockerfile, err)
	}
	unreferenced, err := VerifyDockerfile(ctx, bytes.NewReader(content), b.Assemblies)
	if err != nil {
		return nil, "", nil, err
	}

	matcher, err := ignoreMatcher(contextDir)
	if err != nil {
		return nil, "", nil, err
	}

	var entries []archive.Entry
	err = filepath.WalkDir(contextDir, func(file string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return errors.Wrap("walk build context", file, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(contextDir, file)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matcher != nil {
			ignored, err := matcher.MatchesOrParentMatches(rel)
			if err != nil {
				return errors.Configuration("match .dockerignore", rel, err)
			}
			if ignored {
				if d.IsDir() && !matcher.Exclusions() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if d.IsDir() {
			return nil
		}
		entries = append(entries, archive.Entry{Name: rel, Source: file})
		return nil
	})
	if err != nil {
		return nil, "", nil, err
	}

	name, err := filepath.Rel(contextDir, dockerfile)
	if err != nil || strings.HasPrefix(filepath.ToSlash(name), "../") {
		// A Dockerfile outside its context travels under a private name.
		name = ".dockyard." + DockerfileName
		entries = append(entries, archive.Entry{Name: name, Content: content})
	}
	return entries, filepath.ToSlash(name), unreferenced, nil
}

func ignoreMatcher(contextDir string) (*patternmatcher.PatternMatcher, error) {
	f, err := os.Open(filepath.Join(contextDir, ".dockerignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap("open .dockerignore", contextDir, err)
	}
	defer func() { _ = f.Close() }()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, errors.Configuration("read .dockerignore", contextDir, err)
	}
	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, errors.Configuration("parse .dockerignore", contextDir, err)
	}
	return matcher, nil
}

// ChangedFiles writes an archive of the assembly files changed since the
// last Assemble or ChangedFiles call for the image. Names are the paths
// inside the container. It returns "" when nothing changed.
func (a *Assembler) ChangedFiles(ctx context.Context, p Params) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	results, err := a.resolve(ctx, p)
	if err != nil {
		return "", err
	}

	var entries []archive.Entry
	for i, res := range results {
		changed := a.tracker.Changed(trackerKey(p.Image.Name, i, &p.Image.Build.Assemblies[i]), res.Entries)
		for _, e := range changed {
			if e.IsDir {
				continue
			}
			rel, err := filepath.Rel(res.LayerRoot, e.Destination)
			if err != nil {
				return "", errors.Wrap("map changed file", e.Destination, err)
			}
			entries = append(entries, archive.Entry{
				Name:   filepath.ToSlash(rel),
				Source: e.Source,
				Mode:   e.Permission,
			})
		}
	}
	if len(entries) == 0 {
		return "", nil
	}

	output := filepath.Join(p.archiveDir(), "changed-files.tar")
	if err := a.archiver.Create(ctx, archive.Options{
		Output:       output,
		Entries:      entries,
		LongFileMode: p.LongFileMode,
	}); err != nil {
		return "", err
	}
	logging.DebugContext(ctx, "Collected %d changed file(s) for %s", len(entries), p.Image.Name)
	return output, nil
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

// topLevel lists the direct children of dir in lexical order.
func topLevel(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap("read staging directory", dir, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
