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
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cowdogmoo/dockyard/errors"
)

// Filter decides which paths below a file set directory are selected.
// Patterns use doublestar syntax ("**" crosses directory boundaries) and
// are matched against the cleaned, forward slash separated relative path.
type Filter struct {
	includes []string
	excludes []string
}

// NewFilter validates and compiles include and exclude patterns.
func NewFilter(includes, excludes []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range includes {
		p = normalizePattern(p)
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Configuration("parse include pattern", p, fmt.Errorf("invalid glob"))
		}
		f.includes = append(f.includes, p)
	}
	for _, p := range excludes {
		p = normalizePattern(p)
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Configuration("parse exclude pattern", p, fmt.Errorf("invalid glob"))
		}
		f.excludes = append(f.excludes, p)
	}
	return f, nil
}

func normalizePattern(p string) string {
	p = strings.TrimPrefix(p, "./")
	// A trailing slash means "this directory and everything below".
	if strings.HasSuffix(p, "/") {
		p += "**"
	}
	return p
}

// Clean normalizes a relative path: backslashes become slashes and "."
// and ".." segments are resolved.
func Clean(rel string) string {
	return path.Clean(strings.ReplaceAll(rel, "\\", "/"))
}

// Excluded reports whether rel matches any exclude pattern.
func (f *Filter) Excluded(rel string) bool {
	rel = Clean(rel)
	for _, p := range f.excludes {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}

// Included reports whether rel matches an include pattern. Without
// include patterns every path is included.
func (f *Filter) Included(rel string) bool {
	if len(f.includes) == 0 {
		return true
	}
	rel = Clean(rel)
	for _, p := range f.includes {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}

// Match reports whether rel is selected: included and not excluded.
func (f *Filter) Match(rel string) bool {
	return f.Included(rel) && !f.Excluded(rel)
}

// HasIncludes reports whether include patterns restrict the selection.
func (f *Filter) HasIncludes() bool {
	return len(f.includes) > 0
}
