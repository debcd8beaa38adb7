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

package imageconfig

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/dockyard/errors"
)

// SchemaVersion identifies the layout of the image configuration file.
const SchemaVersion = "1"

// File is the image configuration file: a list of images processed in
// declaration order.
type File struct {
	Images []ImageConfiguration `yaml:"images" json:"images"`

	// BaseDir is the directory relative paths resolve against. Load sets
	// it to the directory holding the file.
	BaseDir string `yaml:"-" json:"-"`
}

// Load reads and validates an image configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Configuration("read image configuration", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap("resolve base directory", path, err)
	}

	f, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, errors.Wrap("load image configuration", path, err)
	}
	return f, nil
}

// Parse decodes and validates image configuration YAML. Unknown fields
// are rejected.
func Parse(data []byte, baseDir string) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.Configuration("parse image configuration", "", err)
	}
	f.BaseDir = baseDir

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every image and that names and aliases are unique.
func (f *File) Validate() error {
	if len(f.Images) == 0 {
		return errors.Configuration("validate image configuration", "",
			fmt.Errorf("no images declared"))
	}

	seen := make(map[string]bool)
	for i := range f.Images {
		img := &f.Images[i]
		if err := img.Validate(); err != nil {
			return err
		}
		for _, key := range []string{img.Name, img.Alias} {
			if key == "" {
				continue
			}
			if seen[key] {
				return errors.Configuration("validate image configuration", key,
					fmt.Errorf("name or alias used more than once"))
			}
			seen[key] = true
		}
	}
	return nil
}

// Lookup finds an image by alias or name.
func (f *File) Lookup(key string) (*ImageConfiguration, bool) {
	for i := range f.Images {
		if f.Images[i].Alias == key || f.Images[i].Name == key {
			return &f.Images[i], true
		}
	}
	return nil, false
}

// Select returns the images named by keys in configuration order, or all
// images when keys is empty. An unknown key is an error that lists close
// matches.
func (f *File) Select(keys []string) ([]*ImageConfiguration, error) {
	wanted := make(map[*ImageConfiguration]bool)
	for _, key := range keys {
		img, ok := f.Lookup(key)
		if !ok {
			msg := fmt.Sprintf("unknown image %q", key)
			if suggestions := f.Suggest(key); len(suggestions) > 0 {
				msg += "; did you mean " + strings.Join(suggestions, ", ") + "?"
			}
			return nil, errors.Configuration("select images", "", stderrors.New(msg))
		}
		wanted[img] = true
	}

	var out []*ImageConfiguration
	for i := range f.Images {
		img := &f.Images[i]
		if len(keys) == 0 || wanted[img] {
			out = append(out, img)
		}
	}
	return out, nil
}

// Suggest returns known names and aliases that fuzzily match key, best
// match first.
func (f *File) Suggest(key string) []string {
	var candidates []string
	for _, img := range f.Images {
		candidates = append(candidates, img.Name)
		if img.Alias != "" {
			candidates = append(candidates, img.Alias)
		}
	}

	ranks := fuzzy.RankFindFold(key, candidates)
	sort.Sort(ranks)

	out := make([]string, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, r.Target)
	}
	return out
}

// ResolvePath resolves p against the file's base directory unless it is
// already absolute.
func (f *File) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.BaseDir, p)
}
