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

package builder

import (
	"fmt"
	"strings"
	"sync"
)

// PullPolicy governs whether an image is fetched before use.
type PullPolicy string

// Pull policies.
const (
	// PullAlways pulls every time and marks the image pulled.
	PullAlways PullPolicy = "Always"
	// PullIfNotPresent pulls only when the image is neither local nor
	// already pulled in this session.
	PullIfNotPresent PullPolicy = "IfNotPresent"
	// PullNever never pulls; an absent image is an error.
	PullNever PullPolicy = "Never"
)

// DefaultPullPolicy applies when neither the image nor the configuration
// sets one.
const DefaultPullPolicy = PullIfNotPresent

// ParsePullPolicy parses a policy name, case-insensitively. The empty
// string yields DefaultPullPolicy.
func ParsePullPolicy(s string) (PullPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultPullPolicy, nil
	case "always":
		return PullAlways, nil
	case "ifnotpresent", "if-not-present":
		return PullIfNotPresent, nil
	case "never":
		return PullNever, nil
	default:
		return "", fmt.Errorf("unknown pull policy %q (want Always, IfNotPresent or Never)", s)
	}
}

// PullCache remembers which images were pulled during one session.
type PullCache struct {
	mu     sync.Mutex
	pulled map[string]bool
}

// NewPullCache returns an empty cache.
func NewPullCache() *PullCache {
	return &PullCache{pulled: make(map[string]bool)}
}

// MarkPulled records that name was pulled.
func (c *PullCache) MarkPulled(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pulled[name] = true
}

// Pulled reports whether name was pulled in this session.
func (c *PullCache) Pulled(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulled[name]
}

// Reset forgets every pull.
func (c *PullCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pulled = make(map[string]bool)
}
