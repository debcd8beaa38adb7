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

// Package assembly expands assembly descriptors into concrete file
// entries: which source file lands at which staged destination, with
// which permission.
package assembly

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// Entry is one resolved file or directory.
type Entry struct {
	// Source is the absolute path on disk.
	Source string
	// Destination is the absolute staged path below the output directory.
	Destination string
	// Permission is an octal mode string; empty keeps the source bits.
	Permission string
	IsDir      bool
}

// Dirs anchors resolution: relative sources resolve against BaseDir and
// destinations are staged below OutputDir.
type Dirs struct {
	BaseDir   string
	OutputDir string
}

// Result is the outcome of resolving one descriptor.
type Result struct {
	Entries []Entry
	// Permissions maps destinations to permission strings. Directories
	// always have an entry; files only when a mode was configured.
	Permissions map[string]string
	// LayerRoot is OutputDir/<id>, or OutputDir for the default layer.
	LayerRoot string
	// TargetRoot is LayerRoot joined with the target directory.
	TargetRoot string
	OutputDir  string
}

// ArchiveName returns dest relative to the output directory, slash
// separated, as it appears in a build context archive.
func (r *Result) ArchiveName(dest string) string {
	rel, err := filepath.Rel(r.OutputDir, dest)
	if err != nil {
		return filepath.ToSlash(dest)
	}
	return filepath.ToSlash(rel)
}

// ArchivePermissions returns Permissions keyed by archive name.
func (r *Result) ArchivePermissions() map[string]string {
	out := make(map[string]string, len(r.Permissions))
	for dest, perm := range r.Permissions {
		out[r.ArchiveName(dest)] = perm
	}
	return out
}

// Resolver expands assembly descriptors.
type Resolver struct{}

// NewResolver returns a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve expands desc. Resolving the same descriptor against an
// unchanged file system yields the same result.
func (r *Resolver) Resolve(ctx context.Context, desc *imageconfig.AssemblyDescriptor, dirs Dirs) (*Result, error) {
	if desc == nil {
		return nil, errors.Configuration("resolve assembly", "", fmt.Errorf("no descriptor"))
	}
	if dirs.OutputDir == "" {
		return nil, errors.Configuration("resolve assembly", desc.ID, fmt.Errorf("no output directory"))
	}

	layerRoot := dirs.OutputDir
	if desc.ID != "" {
		layerRoot = filepath.Join(dirs.OutputDir, desc.ID)
	}
	res := &Result{
		Permissions: make(map[string]string),
		LayerRoot:   layerRoot,
		TargetRoot:  filepath.Join(layerRoot, strings.TrimPrefix(filepath.FromSlash(desc.TargetDir), string(filepath.Separator))),
		OutputDir:   dirs.OutputDir,
	}

	for i := range desc.FileSets {
		if err := r.resolveFileSet(ctx, desc, &desc.FileSets[i], dirs, res); err != nil {
			return nil, err
		}
	}
	for i := range desc.Files {
		if err := r.resolveFile(desc, &desc.Files[i], dirs, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func resolveSource(p, baseDir string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

// destinationRoot applies the output directory rule: empty nests the
// source under the target root by name, "." flattens into the target
// root, a relative path goes below the target root and an absolute path
// is an image path below the layer root.
func destinationRoot(outputDir, sourceName string, res *Result) string {
	switch {
	case outputDir == "":
		return filepath.Join(res.TargetRoot, sourceName)
	case outputDir == ".":
		return res.TargetRoot
	case path.IsAbs(filepath.ToSlash(outputDir)):
		return filepath.Join(res.LayerRoot, filepath.FromSlash(outputDir))
	default:
		return filepath.Join(res.TargetRoot, filepath.FromSlash(outputDir))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type candidate struct {
	entry Entry
	rel   string
}

func (r *Resolver) resolveFileSet(ctx context.Context, desc *imageconfig.AssemblyDescriptor, set *imageconfig.FileSet, dirs Dirs, res *Result) error {
	srcDir := resolveSource(set.Directory, dirs.BaseDir)
	info, err := os.Stat(srcDir)
	if os.IsNotExist(err) {
		logging.DebugContext(ctx, "Skipping missing file set directory %s", srcDir)
		return nil
	}
	if err != nil {
		return errors.Wrap("stat file set directory", srcDir, err)
	}
	if !info.IsDir() {
		return errors.Configuration("resolve file set", srcDir, fmt.Errorf("not a directory"))
	}

	filter, err := NewFilter(set.Includes, set.Excludes)
	if err != nil {
		return err
	}

	dirMode := firstNonEmpty(set.DirectoryMode, desc.DirectoryMode, imageconfig.DefaultDirectoryMode)
	fileMode := firstNonEmpty(set.FileMode, desc.FileMode)
	destRoot := destinationRoot(set.OutputDirectory, filepath.Base(srcDir), res)

	var candidates []candidate
	needed := make(map[string]bool)

	err = filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return errors.Wrap("walk file set", p, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return errors.Wrap("walk file set", p, err)
		}
		rel = Clean(filepath.ToSlash(rel))
		dest := destRoot
		if rel != "." {
			dest = filepath.Join(destRoot, filepath.FromSlash(rel))
			if filter.Excluded(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		if d.IsDir() {
			candidates = append(candidates, candidate{
				entry: Entry{Source: p, Destination: dest, Permission: dirMode, IsDir: true},
				rel:   rel,
			})
			if rel == "." || filter.Included(rel) {
				needed[rel] = true
			}
			return nil
		}

		if !filter.Included(rel) {
			return nil
		}
		candidates = append(candidates, candidate{
			entry: Entry{Source: p, Destination: dest, Permission: fileMode},
			rel:   rel,
		})
		for parent := path.Dir(rel); ; parent = path.Dir(parent) {
			needed[parent] = true
			if parent == "." {
				break
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if c.entry.IsDir && !needed[c.rel] {
			continue
		}
		res.Entries = append(res.Entries, c.entry)
		if c.entry.Permission != "" {
			res.Permissions[c.entry.Destination] = c.entry.Permission
		}
	}
	return nil
}

func (r *Resolver) resolveFile(desc *imageconfig.AssemblyDescriptor, item *imageconfig.FileItem, dirs Dirs, res *Result) error {
	src := resolveSource(item.Source, dirs.BaseDir)
	info, err := os.Stat(src)
	if err != nil {
		return errors.Configuration("resolve file", src, err)
	}
	if info.IsDir() {
		return errors.Configuration("resolve file", src, fmt.Errorf("is a directory; use a file set"))
	}

	outputDir := item.OutputDirectory
	if outputDir == "" {
		outputDir = "."
	}
	name := firstNonEmpty(item.DestName, filepath.Base(src))
	dest := filepath.Join(destinationRoot(outputDir, "", res), name)

	perm := firstNonEmpty(item.FileMode, desc.FileMode)
	res.Entries = append(res.Entries, Entry{Source: src, Destination: dest, Permission: perm})
	if perm != "" {
		res.Permissions[dest] = perm
	}
	return nil
}
