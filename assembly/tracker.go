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
	"os"
	"sync"
	"time"
)

type stamp struct {
	modTime time.Time
	size    int64
}

// Tracker remembers the source stamps of a previous resolution per key
// so that later passes can select only what changed.
type Tracker struct {
	mu        sync.Mutex
	snapshots map[string]map[string]stamp
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{snapshots: make(map[string]map[string]stamp)}
}

func snapshot(entries []Entry) map[string]stamp {
	out := make(map[string]stamp, len(entries))
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		info, err := os.Stat(e.Source)
		if err != nil {
			continue
		}
		out[e.Source] = stamp{modTime: info.ModTime(), size: info.Size()}
	}
	return out
}

// Changed returns the entries whose source modification time or size
// differs from the snapshot recorded under key, and records the new
// snapshot. Without a previous snapshot every entry is returned.
// Directory entries are only part of the first pass.
func (t *Tracker) Changed(key string, entries []Entry) []Entry {
	current := snapshot(entries)

	t.mu.Lock()
	previous, seen := t.snapshots[key]
	t.snapshots[key] = current
	t.mu.Unlock()

	if !seen {
		return append([]Entry(nil), entries...)
	}

	var changed []Entry
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		cur, ok := current[e.Source]
		if !ok {
			continue
		}
		if prev, ok := previous[e.Source]; ok && prev.size == cur.size && prev.modTime.Equal(cur.modTime) {
			continue
		}
		changed = append(changed, e)
	}
	return changed
}

// Record stores the snapshot for key without reporting changes.
func (t *Tracker) Record(key string, entries []Entry) {
	current := snapshot(entries)
	t.mu.Lock()
	t.snapshots[key] = current
	t.mu.Unlock()
}

// Forget drops the snapshot for key.
func (t *Tracker) Forget(key string) {
	t.mu.Lock()
	delete(t.snapshots, key)
	t.mu.Unlock()
}
