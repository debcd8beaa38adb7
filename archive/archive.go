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

// Package archive builds and extracts tar archives, optionally compressed
// with gzip or bzip2. Archives are written to a temporary sibling file and
// renamed into place, so a failed build never leaves partial output.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/pgzip"

	"github.com/cowdogmoo/dockyard/errors"
)

// Compression selects the archive stream compression.
type Compression string

// Supported compressions.
const (
	None  Compression = "none"
	Gzip  Compression = "gzip"
	Bzip2 Compression = "bzip2"
)

// ParseCompression maps a configuration value to a Compression. Empty
// means None.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(s)) {
	case "", None:
		return None, nil
	case Gzip:
		return Gzip, nil
	case Bzip2:
		return Bzip2, nil
	default:
		return "", errors.Configuration("parse compression", s, fmt.Errorf("must be none, gzip or bzip2"))
	}
}

// Extension returns the conventional file suffix for the compression.
func (c Compression) Extension() string {
	switch c {
	case Gzip:
		return ".tar.gz"
	case Bzip2:
		return ".tar.bz2"
	default:
		return ".tar"
	}
}

// LongFileMode decides how entry names longer than the 100 byte ustar
// name field are stored.
type LongFileMode string

// Long file name strategies.
const (
	// LongFilePOSIX stores long names in PAX extended headers.
	LongFilePOSIX LongFileMode = "posix"
	// LongFileGNU stores long names in GNU long-name records.
	LongFileGNU LongFileMode = "gnu"
	// LongFileTruncate cuts names to 100 bytes.
	LongFileTruncate LongFileMode = "truncate"
	// LongFileError fails the archive.
	LongFileError LongFileMode = "error"
)

const ustarNameSize = 100

// EntryCustomizer adjusts an entry header before it is written. Returning
// false drops the entry.
type EntryCustomizer func(hdr *tar.Header) bool

// StreamCustomizer wraps the raw output stream, for example to compute a
// digest of the archive bytes while they are written.
type StreamCustomizer func(w io.Writer) io.Writer

// Entry maps a source on disk, or literal content, to a name in the archive.
type Entry struct {
	// Name is the archive path, forward slash separated.
	Name string
	// Source is a file, directory or symlink on disk. Directories are
	// added recursively.
	Source string
	// Content is written as a regular file when Source is empty.
	Content []byte
	// Mode is an octal permission override for this entry.
	Mode string
}

// Options configures Create.
type Options struct {
	// Output is the archive file. An existing file is replaced.
	Output string
	// BaseDir anchors Files. Archive names are the paths relative to it.
	BaseDir string
	// Files are files or directories inside BaseDir, written in order.
	Files []string
	// Entries are written after Files.
	Entries []Entry
	// Permissions maps archive names (without trailing slash) to octal
	// permission strings that replace the source bits.
	Permissions  map[string]string
	Compression  Compression
	LongFileMode LongFileMode
	Customizers  []EntryCustomizer
	Stream       StreamCustomizer
	// ModTime, when set, replaces every entry's modification time.
	ModTime time.Time
}

// Builder creates archives.
type Builder struct{}

// NewBuilder returns an archive builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Create writes the archive described by opts. Any error aborts the whole
// archive and leaves a pre-existing Output untouched.
func (b *Builder) Create(ctx context.Context, opts Options) (err error) {
	if opts.Output == "" {
		return errors.Configuration("create archive", "", fmt.Errorf("no output path"))
	}

	dir := filepath.Dir(opts.Output)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Archive("create archive directory", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(opts.Output)+".tmp-*")
	if err != nil {
		return errors.Archive("create temporary archive", dir, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	var out io.Writer = tmp
	if opts.Stream != nil {
		out = opts.Stream(out)
	}

	compressed, err := compressor(out, opts.Compression)
	if err != nil {
		return errors.Archive("open compressor", string(opts.Compression), err)
	}

	w := &writer{
		ctx:     ctx,
		tw:      tar.NewWriter(compressed),
		opts:    opts,
		written: make(map[string]bool),
	}
	if err := w.writeAll(); err != nil {
		return err
	}

	if err := w.tw.Close(); err != nil {
		return errors.Archive("finish archive", opts.Output, err)
	}
	if err := compressed.Close(); err != nil {
		return errors.Archive("finish compression", opts.Output, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Archive("close archive", opts.Output, err)
	}
	if err := os.Rename(tmp.Name(), opts.Output); err != nil {
		return errors.Archive("move archive into place", opts.Output, err)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case "", None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return pgzip.NewWriterLevel(w, pgzip.DefaultCompression)
	case Bzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	default:
		return nil, fmt.Errorf("unsupported compression %q", c)
	}
}

type writer struct {
	ctx     context.Context
	tw      *tar.Writer
	opts    Options
	written map[string]bool
}

func (w *writer) writeAll() error {
	for _, f := range w.opts.Files {
		src := f
		if !filepath.IsAbs(src) {
			src = filepath.Join(w.opts.BaseDir, f)
		}
		rel, err := filepath.Rel(w.opts.BaseDir, src)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return errors.Archive("add file", f, fmt.Errorf("not inside base directory %s", w.opts.BaseDir))
		}
		if err := w.addTree(src, filepath.ToSlash(rel), ""); err != nil {
			return err
		}
	}

	for _, e := range w.opts.Entries {
		name := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(e.Name)), "/")
		if e.Source == "" {
			if err := w.addContent(name, e.Content, e.Mode); err != nil {
				return err
			}
			continue
		}
		if err := w.addTree(e.Source, name, e.Mode); err != nil {
			return err
		}
	}
	return nil
}

// addTree writes src under name, walking directories in lexical order.
func (w *writer) addTree(src, name, mode string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return errors.Archive("read source", p, walkErr)
		}
		if err := w.ctx.Err(); err != nil {
			return errors.Archive("write archive", w.opts.Output, err)
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return errors.Archive("read source", p, err)
		}
		entryName := name
		if rel != "." {
			entryName = path.Join(name, filepath.ToSlash(rel))
		}
		entryMode := ""
		if p == src {
			entryMode = mode
		}
		return w.addPath(p, entryName, entryMode)
	})
}

func (w *writer) addPath(src, name, mode string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return errors.Archive("stat source", src, err)
	}

	link := ""
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(src); err != nil {
			return errors.Archive("read symlink", src, err)
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return errors.Archive("build header", src, err)
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}

	write, err := w.prepare(hdr, mode)
	if err != nil || !write {
		return err
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		return errors.Archive("write header", hdr.Name, err)
	}
	if hdr.Typeflag != tar.TypeReg {
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return errors.Archive("open source", src, err)
	}
	defer f.Close()

	if _, err := io.CopyN(w.tw, f, hdr.Size); err != nil {
		return errors.Archive("copy file", src, err)
	}
	return nil
}

func (w *writer) addContent(name string, content []byte, mode string) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     int64(len(content)),
		Mode:     0o644,
		ModTime:  time.Unix(0, 0),
	}

	write, err := w.prepare(hdr, mode)
	if err != nil || !write {
		return err
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		return errors.Archive("write header", name, err)
	}
	if _, err := w.tw.Write(content); err != nil {
		return errors.Archive("write content", name, err)
	}
	return nil
}

// prepare normalizes a header, applies permissions, customizers and the
// long name strategy. It reports false when the entry should be skipped.
func (w *writer) prepare(hdr *tar.Header, mode string) (bool, error) {
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""
	hdr.AccessTime, hdr.ChangeTime = time.Time{}, time.Time{}
	hdr.PAXRecords = nil
	hdr.Xattrs = nil //nolint:staticcheck // cleared for reproducible output
	if !w.opts.ModTime.IsZero() {
		hdr.ModTime = w.opts.ModTime
	}
	hdr.ModTime = hdr.ModTime.Truncate(time.Second)

	key := strings.TrimSuffix(hdr.Name, "/")
	if mode == "" {
		mode = w.opts.Permissions[key]
	}
	if mode != "" {
		m, err := strconv.ParseInt(mode, 8, 64)
		if err != nil {
			return false, errors.Archive("apply permission", key, fmt.Errorf("invalid octal mode %q", mode))
		}
		hdr.Mode = m & 0o7777
	}

	for _, customize := range w.opts.Customizers {
		if !customize(hdr) {
			return false, nil
		}
	}

	if hdr.Name == "" || hdr.Name == "/" || w.written[hdr.Name] {
		return false, nil
	}

	if err := w.applyLongFileMode(hdr); err != nil {
		return false, err
	}
	w.written[hdr.Name] = true
	return true, nil
}

func (w *writer) applyLongFileMode(hdr *tar.Header) error {
	if len(hdr.Name) <= ustarNameSize && len(hdr.Linkname) <= ustarNameSize {
		return nil
	}
	if hdr.Format != tar.FormatUnknown {
		return nil
	}

	switch w.opts.LongFileMode {
	case "", LongFilePOSIX:
		hdr.Format = tar.FormatPAX
	case LongFileGNU:
		hdr.Format = tar.FormatGNU
	case LongFileTruncate:
		if len(hdr.Name) > ustarNameSize {
			if strings.HasSuffix(hdr.Name, "/") {
				hdr.Name = strings.TrimRight(truncate(hdr.Name, ustarNameSize-1), "/") + "/"
			} else {
				hdr.Name = strings.TrimRight(truncate(hdr.Name, ustarNameSize), "/")
			}
		}
		if len(hdr.Linkname) > ustarNameSize {
			hdr.Linkname = truncate(hdr.Linkname, ustarNameSize)
		}
		hdr.Format = tar.FormatUSTAR
	case LongFileError:
		return errors.Archive("add entry", hdr.Name,
			fmt.Errorf("name longer than %d bytes", ustarNameSize))
	default:
		return errors.Configuration("add entry", hdr.Name,
			fmt.Errorf("unknown long file mode %q", w.opts.LongFileMode))
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
