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
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// NotifyDetector collects file system events on the source directories of
// each image. Events arrive through Run and are drained by Changed.
type NotifyDetector struct {
	baseDir string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	roots   map[string][]string // image name -> source dirs
	watched map[string]bool
	dirty   map[string]bool
}

// NewNotifyDetector creates the underlying watcher.
func NewNotifyDetector(baseDir string) (*NotifyDetector, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap("create file watcher", "", err)
	}
	return &NotifyDetector{
		baseDir: baseDir,
		watcher: w,
		roots:   make(map[string][]string),
		watched: make(map[string]bool),
		dirty:   make(map[string]bool),
	}, nil
}

// Changed implements Detector. The first call registers the directories
// of img with the watcher.
func (d *NotifyDetector) Changed(ctx context.Context, img *imageconfig.ImageConfiguration) (bool, error) {
	d.mu.Lock()
	_, registered := d.roots[img.Name]
	d.mu.Unlock()

	if !registered {
		dirs := SourceDirs(img, d.baseDir)
		for _, dir := range dirs {
			if err := d.addTree(dir); err != nil {
				return false, err
			}
		}
		d.mu.Lock()
		d.roots[img.Name] = dirs
		d.mu.Unlock()
		logging.DebugContext(ctx, "Watching %d director(ies) for %s", len(dirs), img.Description())
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	changed := d.dirty[img.Name]
	delete(d.dirty, img.Name)
	return changed, nil
}

// addTree watches dir and its subdirectories; fsnotify is not recursive.
func (d *NotifyDetector) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return errors.Wrap("watch directory", p, err)
		}
		if !entry.IsDir() {
			return nil
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.watched[p] {
			return nil
		}
		if err := d.watcher.Add(p); err != nil {
			return errors.Wrap("watch directory", p, err)
		}
		d.watched[p] = true
		return nil
	})
}

// Run pumps watcher events until ctx is done.
func (d *NotifyDetector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			d.handle(ctx, event)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnContext(ctx, "File watcher error: %v", err)
		}
	}
}

func (d *NotifyDetector) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	logging.DebugContext(ctx, "File event: %s", event)

	if event.Has(fsnotify.Create) {
		// New directories need their own watch.
		if err := d.addTreeIfDir(event.Name); err != nil {
			logging.WarnContext(ctx, "Failed to watch %s: %v", event.Name, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for name, dirs := range d.roots {
		for _, dir := range dirs {
			if within(event.Name, dir) {
				d.dirty[name] = true
				break
			}
		}
	}
}

func (d *NotifyDetector) addTreeIfDir(p string) error {
	d.mu.Lock()
	watched := d.watched[p]
	d.mu.Unlock()
	if watched {
		return nil
	}
	err := d.addTree(p)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Close implements Detector.
func (d *NotifyDetector) Close() error {
	return d.watcher.Close()
}

func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
