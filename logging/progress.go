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

package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Progress tracks the per-layer status lines of one engine stream (a build,
// push or pull). It is created for a single invocation and handed down to
// the component that consumes the stream. A nil *Progress is valid and
// discards all updates.
type Progress struct {
	mu      sync.Mutex
	ctx     context.Context
	action  string
	started time.Time
	order   []string
	status  map[string]string
}

// NewProgress returns a reporter that logs through the logger in ctx.
func NewProgress(ctx context.Context, action string) *Progress {
	return &Progress{
		ctx:     ctx,
		action:  action,
		started: time.Now(),
		status:  make(map[string]string),
	}
}

// Update records a status line. Lines without a layer id are logged at
// debug level as they arrive; layer lines are logged only when the layer's
// status changes, not on every progress tick.
func (p *Progress) Update(id, status, detail string) {
	if p == nil || status == "" {
		return
	}

	if id == "" {
		DebugContext(p.ctx, "%s: %s", p.action, status)
		return
	}

	p.mu.Lock()
	prev, seen := p.status[id]
	if !seen {
		p.order = append(p.order, id)
	}
	p.status[id] = status
	p.mu.Unlock()

	if prev != status {
		if detail != "" {
			DebugContext(p.ctx, "%s: %s %s %s", p.action, id, status, detail)
		} else {
			DebugContext(p.ctx, "%s: %s %s", p.action, id, status)
		}
	}
}

// Status returns the last status recorded for a layer.
func (p *Progress) Status(id string) string {
	if p == nil {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status[id]
}

// Layers returns the layer ids seen so far in order of first appearance.
func (p *Progress) Layers() []string {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// Done logs a one-line summary of the stream.
func (p *Progress) Done() {
	if p == nil {
		return
	}

	p.mu.Lock()
	counts := make(map[string]int)
	for _, s := range p.status {
		counts[s]++
	}
	layers := len(p.order)
	p.mu.Unlock()

	elapsed := time.Since(p.started).Round(time.Millisecond)
	if layers == 0 {
		InfoContext(p.ctx, "%s finished in %s", p.action, elapsed)
		return
	}

	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, s := range states {
		parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
	}
	InfoContext(p.ctx, "%s finished in %s (%d layers: %s)", p.action, elapsed, layers, strings.Join(parts, ", "))
}
