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

package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/pgzip"

	"github.com/cowdogmoo/dockyard/errors"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
)

// Open returns a tar reader over the archive at p, detecting compression
// from the leading bytes. Close releases the file.
func Open(p string) (*tar.Reader, io.Closer, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, nil, errors.Archive("open archive", p, err)
	}

	r, err := decompressor(bufio.NewReader(f))
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Archive("open archive", p, err)
	}
	return tar.NewReader(r), f, nil
}

func decompressor(br *bufio.Reader) (io.Reader, error) {
	head, err := br.Peek(3)
	if err != nil && !stderrors.Is(err, io.EOF) {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return pgzip.NewReader(br)
	case bytes.HasPrefix(head, bzip2Magic):
		return bzip2.NewReader(br, nil)
	default:
		return br, nil
	}
}

// Extract unpacks the archive at p into destDir. Entry names that would
// escape destDir are rejected. Directory permissions are applied after
// their contents are written.
func Extract(ctx context.Context, p, destDir string) error {
	tr, closer, err := Open(p)
	if err != nil {
		return err
	}
	defer closer.Close()

	type dirMode struct {
		path    string
		mode    os.FileMode
		modTime time.Time
	}
	var dirs []dirMode

	for {
		if err := ctx.Err(); err != nil {
			return errors.Archive("extract archive", p, err)
		}

		hdr, err := tr.Next()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Archive("read archive", p, err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return errors.Archive("extract entry", hdr.Name, err)
		}
		mode := hdr.FileInfo().Mode()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Archive("create directory", target, err)
			}
			dirs = append(dirs, dirMode{path: target, mode: mode.Perm(), modTime: hdr.ModTime})
		case tar.TypeReg:
			if err := writeFile(target, tr, mode.Perm()); err != nil {
				return errors.Archive("extract file", target, err)
			}
			_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.Archive("create directory", filepath.Dir(target), err)
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return errors.Archive("create symlink", target, err)
			}
		default:
			// Devices, fifos and hard links are not produced by Create.
		}
	}

	// Deepest first so restrictive parents do not block their children.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i].path) > len(dirs[j].path) })
	for _, d := range dirs {
		if err := os.Chmod(d.path, d.mode); err != nil {
			return errors.Archive("set directory mode", d.path, err)
		}
		_ = os.Chtimes(d.path, d.modTime, d.modTime)
	}
	return nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chmod(target, perm)
}

func safeJoin(root, name string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(name, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path escapes destination")
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// List returns the entry names of the archive at p in stored order.
func List(p string) ([]string, error) {
	tr, closer, err := Open(p)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var names []string
	for {
		hdr, err := tr.Next()
		if stderrors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, errors.Archive("read archive", p, err)
		}
		names = append(names, hdr.Name)
	}
}
