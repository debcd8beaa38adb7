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

package assembly

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func projectDirs(t *testing.T) Dirs {
	t.Helper()
	base := t.TempDir()
	writeFiles(t, base, map[string]string{
		"target/app.jar":        "app",
		"target/lib/a.jar":      "a",
		"target/conf/app.yaml":  "port: 8080\n",
		"scripts/run.sh":        "#!/bin/sh\n",
		"root/usr/bin/tool":     "tool",
		"root/usr/.git/config":  "[core]\n",
		"root/var/data.txt":     "data",
		"root/var/.git/refs/hd": "ref",
	})
	return Dirs{BaseDir: base, OutputDir: filepath.Join(t.TempDir(), "out")}
}

// names lists archive names of the result's entries, dirs with a "/".
func names(res *Result) []string {
	var out []string
	for _, e := range res.Entries {
		n := res.ArchiveName(e.Destination)
		if e.IsDir {
			n += "/"
		}
		out = append(out, n)
	}
	return out
}

func TestResolveFileSetOutputDirectory(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		outputDir string
		expected  []string
	}{
		{
			name: "unset nests by base name",
			expected: []string{
				"maven/target/",
				"maven/target/app.jar",
				"maven/target/conf/",
				"maven/target/conf/app.yaml",
				"maven/target/lib/",
				"maven/target/lib/a.jar",
			},
		},
		{
			name:      "self flattens into target dir",
			outputDir: ".",
			expected: []string{
				"maven/",
				"maven/app.jar",
				"maven/conf/",
				"maven/conf/app.yaml",
				"maven/lib/",
				"maven/lib/a.jar",
			},
		},
		{
			name:      "relative goes below target dir",
			outputDir: "jars",
			expected: []string{
				"maven/jars/",
				"maven/jars/app.jar",
				"maven/jars/conf/",
				"maven/jars/conf/app.yaml",
				"maven/jars/lib/",
				"maven/jars/lib/a.jar",
			},
		},
		{
			name:      "absolute is an image path",
			outputDir: "/opt/app",
			expected: []string{
				"opt/app/",
				"opt/app/app.jar",
				"opt/app/conf/",
				"opt/app/conf/app.yaml",
				"opt/app/lib/",
				"opt/app/lib/a.jar",
			},
		},
		{
			name: "layer id prefixes everything",
			id:   "deps",
			expected: []string{
				"deps/maven/target/",
				"deps/maven/target/app.jar",
				"deps/maven/target/conf/",
				"deps/maven/target/conf/app.yaml",
				"deps/maven/target/lib/",
				"deps/maven/target/lib/a.jar",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dirs := projectDirs(t)
			desc := &imageconfig.AssemblyDescriptor{
				ID:        tc.id,
				TargetDir: "/maven",
				FileSets:  []imageconfig.FileSet{{Directory: "target", OutputDirectory: tc.outputDir}},
			}
			res, err := NewResolver().Resolve(context.Background(), desc, dirs)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, names(res))
		})
	}
}

func TestResolveExcludesGitDirectories(t *testing.T) {
	dirs := projectDirs(t)
	desc := &imageconfig.AssemblyDescriptor{
		TargetDir: "/",
		FileSets: []imageconfig.FileSet{{
			Directory:       "root",
			OutputDirectory: ".",
			Excludes:        []string{"**/.git/**"},
		}},
	}

	res, err := NewResolver().Resolve(context.Background(), desc, dirs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"./",
		"usr/",
		"usr/bin/",
		"usr/bin/tool",
		"var/",
		"var/data.txt",
	}, names(res))
}

func TestFilterCleansPaths(t *testing.T) {
	f, err := NewFilter(nil, []string{"**/.git/**"})
	require.NoError(t, err)

	assert.True(t, f.Excluded("usr/.git"))
	assert.True(t, f.Excluded("var/.git/refs"))
	assert.False(t, f.Excluded("var/.git/../normalized"))
	assert.True(t, f.Match("var/normalized"))
	assert.False(t, f.HasIncludes())
}

func TestFilterTrailingSlashAndDotPrefix(t *testing.T) {
	f, err := NewFilter([]string{"./lib/"}, nil)
	require.NoError(t, err)

	assert.True(t, f.Included("lib"))
	assert.True(t, f.Included("lib/a.jar"))
	assert.False(t, f.Included("conf/app.yaml"))
}

func TestNewFilterRejectsInvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{"[unterminated"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfiguration))
}

func TestResolveIncludesKeepAncestorDirectories(t *testing.T) {
	dirs := projectDirs(t)
	desc := &imageconfig.AssemblyDescriptor{
		TargetDir: "/maven",
		FileSets: []imageconfig.FileSet{{
			Directory: "target",
			Includes:  []string{"**/*.jar"},
		}},
	}

	res, err := NewResolver().Resolve(context.Background(), desc, dirs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"maven/target/",
		"maven/target/app.jar",
		"maven/target/lib/",
		"maven/target/lib/a.jar",
	}, names(res))
}

func TestResolvePermissions(t *testing.T) {
	dirs := projectDirs(t)

	t.Run("defaults", func(t *testing.T) {
		desc := &imageconfig.AssemblyDescriptor{
			TargetDir: "/maven",
			FileSets:  []imageconfig.FileSet{{Directory: "target"}},
		}
		res, err := NewResolver().Resolve(context.Background(), desc, dirs)
		require.NoError(t, err)

		perms := res.ArchivePermissions()
		assert.Equal(t, "040111", perms["maven/target"])
		assert.Equal(t, "040111", perms["maven/target/lib"])
		_, ok := perms["maven/target/app.jar"]
		assert.False(t, ok, "files without a configured mode have no entry")
	})

	t.Run("file set overrides assembly", func(t *testing.T) {
		desc := &imageconfig.AssemblyDescriptor{
			TargetDir:     "/maven",
			FileMode:      "0644",
			DirectoryMode: "0755",
			FileSets: []imageconfig.FileSet{
				{Directory: "target", FileMode: "0600"},
				{Directory: "scripts"},
			},
		}
		res, err := NewResolver().Resolve(context.Background(), desc, dirs)
		require.NoError(t, err)

		perms := res.ArchivePermissions()
		assert.Equal(t, "0600", perms["maven/target/app.jar"])
		assert.Equal(t, "0755", perms["maven/target/lib"])
		assert.Equal(t, "0644", perms["maven/scripts/run.sh"])
		assert.Equal(t, "0755", perms["maven/scripts"])
	})
}

func TestResolveFiles(t *testing.T) {
	dirs := projectDirs(t)
	desc := &imageconfig.AssemblyDescriptor{
		ID:        "bin",
		TargetDir: "/app",
		Files: []imageconfig.FileItem{
			{Source: "scripts/run.sh", DestName: "start.sh", FileMode: "0755"},
			{Source: filepath.Join(dirs.BaseDir, "target", "app.jar"), OutputDirectory: "lib"},
			{Source: "target/conf/app.yaml", OutputDirectory: "/etc/app"},
		},
	}

	res, err := NewResolver().Resolve(context.Background(), desc, dirs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"bin/app/start.sh",
		"bin/app/lib/app.jar",
		"bin/etc/app/app.yaml",
	}, names(res))
	assert.Equal(t, map[string]string{"bin/app/start.sh": "0755"}, res.ArchivePermissions())
}

func TestResolveErrors(t *testing.T) {
	dirs := projectDirs(t)

	t.Run("missing file item", func(t *testing.T) {
		desc := &imageconfig.AssemblyDescriptor{
			TargetDir: "/app",
			Files:     []imageconfig.FileItem{{Source: "nope.txt"}},
		}
		_, err := NewResolver().Resolve(context.Background(), desc, dirs)
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindConfiguration))
	})

	t.Run("missing file set directory contributes nothing", func(t *testing.T) {
		desc := &imageconfig.AssemblyDescriptor{
			TargetDir: "/app",
			FileSets:  []imageconfig.FileSet{{Directory: "does-not-exist"}},
		}
		res, err := NewResolver().Resolve(context.Background(), desc, dirs)
		require.NoError(t, err)
		assert.Empty(t, res.Entries)
	})

	t.Run("no output directory", func(t *testing.T) {
		desc := &imageconfig.AssemblyDescriptor{TargetDir: "/app"}
		_, err := NewResolver().Resolve(context.Background(), desc, Dirs{BaseDir: dirs.BaseDir})
		require.Error(t, err)
	})
}

func TestResolveIsIdempotent(t *testing.T) {
	dirs := projectDirs(t)
	desc := &imageconfig.AssemblyDescriptor{
		TargetDir: "/maven",
		FileSets:  []imageconfig.FileSet{{Directory: "target"}, {Directory: "root", Excludes: []string{"**/.git/**"}}},
		Files:     []imageconfig.FileItem{{Source: "scripts/run.sh"}},
	}

	first, err := NewResolver().Resolve(context.Background(), desc, dirs)
	require.NoError(t, err)
	second, err := NewResolver().Resolve(context.Background(), desc, dirs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTrackerChanged(t *testing.T) {
	dirs := projectDirs(t)
	desc := &imageconfig.AssemblyDescriptor{
		TargetDir: "/maven",
		FileSets:  []imageconfig.FileSet{{Directory: "target"}},
	}
	res, err := NewResolver().Resolve(context.Background(), desc, dirs)
	require.NoError(t, err)

	tracker := NewTracker()
	assert.Len(t, tracker.Changed("app", res.Entries), len(res.Entries))
	assert.Empty(t, tracker.Changed("app", res.Entries))

	jar := filepath.Join(dirs.BaseDir, "target", "lib", "a.jar")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(jar, later, later))

	changed := tracker.Changed("app", res.Entries)
	require.Len(t, changed, 1)
	assert.Equal(t, jar, changed[0].Source)

	tracker.Forget("app")
	assert.Len(t, tracker.Changed("app", res.Entries), len(res.Entries))

	other := NewTracker()
	other.Record("app", res.Entries)
	assert.Empty(t, other.Changed("app", res.Entries))
}

func TestStage(t *testing.T) {
	dirs := projectDirs(t)
	desc := &imageconfig.AssemblyDescriptor{
		TargetDir: "/maven",
		FileSets:  []imageconfig.FileSet{{Directory: "target"}},
	}
	res, err := NewResolver().Resolve(context.Background(), desc, dirs)
	require.NoError(t, err)

	src := filepath.Join(dirs.BaseDir, "target", "app.jar")
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	require.NoError(t, Stage(context.Background(), res.Entries))

	dest := filepath.Join(dirs.OutputDir, "maven", "target", "app.jar")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "app", string(data))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	assert.DirExists(t, filepath.Join(dirs.OutputDir, "maven", "target", "conf"))

	// A second pass leaves unchanged files alone.
	require.NoError(t, Stage(context.Background(), res.Entries))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Stage(ctx, res.Entries), context.Canceled)
}
