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
	"io"
	"os"
	"path/filepath"

	"github.com/cowdogmoo/dockyard/errors"
)

// Stage copies resolved entries to their destinations. Files keep their
// source modification time; a destination with the same size and
// modification time as its source is left alone. Permissions are not
// applied on disk, they are applied when the staged tree is archived.
func Stage(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir {
			if err := os.MkdirAll(e.Destination, 0o755); err != nil {
				return errors.Wrap("create staged directory", e.Destination, err)
			}
			continue
		}
		if err := stageFile(e.Source, e.Destination); err != nil {
			return err
		}
	}
	return nil
}

func stageFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrap("stat source", src, err)
	}
	if existing, err := os.Stat(dest); err == nil &&
		existing.Size() == info.Size() && existing.ModTime().Equal(info.ModTime()) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrap("create staged directory", filepath.Dir(dest), err)
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap("open source", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrap("create staged file", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrap("copy file", src, err)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap("close staged file", dest, err)
	}
	if err := os.Chmod(dest, info.Mode().Perm()); err != nil {
		return errors.Wrap("chmod staged file", dest, err)
	}
	if err := os.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
		return errors.Wrap("set modification time", dest, err)
	}
	return nil
}
