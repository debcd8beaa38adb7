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

// Package imagename parses and manipulates image references of the form
// [registry/]repository[:tag][@digest].
//
// The first path segment is treated as a registry when it contains a dot
// or a colon, or is exactly "localhost". Otherwise the name has no embedded
// registry and the engine's default registry applies.
package imagename

import (
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/cowdogmoo/dockyard/errors"
)

// DefaultRegistry is the registry implied by names without one.
const DefaultRegistry = "docker.io"

// LatestTag is used when a name carries neither tag nor digest.
const LatestTag = "latest"

// Name is a parsed image reference. The zero value is not valid; use Parse.
type Name struct {
	Registry   string
	Repository string
	Tag        string
	Digest     string
}

// Parse splits ref into its components and validates it against the
// reference grammar.
func Parse(ref string) (Name, error) {
	if strings.TrimSpace(ref) == "" {
		return Name{}, errors.Configuration("parse image name", "", errEmpty)
	}

	var n Name
	rest := ref
	if i := strings.Index(rest, "@"); i >= 0 {
		n.Digest = rest[i+1:]
		rest = rest[:i]
	}

	if i := strings.Index(rest, "/"); i >= 0 && IsRegistry(rest[:i]) {
		n.Registry = rest[:i]
		rest = rest[i+1:]
	}

	if i := strings.LastIndex(rest, ":"); i >= 0 && !strings.Contains(rest[i:], "/") {
		n.Tag = rest[i+1:]
		rest = rest[:i]
	}
	n.Repository = rest

	if n.Repository == "" {
		return Name{}, errors.Configuration("parse image name", ref, errNoRepository)
	}
	if _, err := name.ParseReference(n.String()); err != nil {
		return Name{}, errors.Configuration("parse image name", ref, err)
	}
	return n, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(ref string) Name {
	n, err := Parse(ref)
	if err != nil {
		panic(err)
	}
	return n
}

// IsRegistry reports whether a leading path segment names a registry host.
func IsRegistry(segment string) bool {
	return strings.ContainsAny(segment, ".:") || segment == "localhost"
}

// ValidateRegistry checks that host is a usable registry address.
func ValidateRegistry(host string) error {
	if _, err := name.NewRegistry(host); err != nil {
		return errors.Configuration("validate registry", host, err)
	}
	return nil
}

// HasRegistry reports whether the name embeds a registry.
func (n Name) HasRegistry() bool {
	return n.Registry != ""
}

// RegistryOrDefault returns the embedded registry or DefaultRegistry.
func (n Name) RegistryOrDefault() string {
	if n.Registry != "" {
		return n.Registry
	}
	return DefaultRegistry
}

// TagOrLatest returns the tag, "latest" when neither tag nor digest is set,
// or "" for digest-only references.
func (n Name) TagOrLatest() string {
	if n.Tag != "" {
		return n.Tag
	}
	if n.Digest != "" {
		return ""
	}
	return LatestTag
}

// NameWithoutTag returns [registry/]repository.
func (n Name) NameWithoutTag() string {
	if n.Registry != "" {
		return n.Registry + "/" + n.Repository
	}
	return n.Repository
}

// String returns the reference in its canonical textual form.
func (n Name) String() string {
	s := n.NameWithoutTag()
	if n.Tag != "" {
		s += ":" + n.Tag
	}
	if n.Digest != "" {
		s += "@" + n.Digest
	}
	return s
}

// FullName returns the reference with an explicit tag, defaulting to latest.
func (n Name) FullName() string {
	if n.Tag == "" && n.Digest == "" {
		return n.NameWithoutTag() + ":" + LatestTag
	}
	return n.String()
}

// WithRegistry returns a copy qualified by registry. A name that already
// embeds a registry is returned unchanged.
func (n Name) WithRegistry(registry string) Name {
	if n.Registry != "" || registry == "" {
		return n
	}
	n.Registry = strings.TrimSuffix(registry, "/")
	return n
}

// WithTag returns a copy with the tag replaced and any digest dropped.
func (n Name) WithTag(tag string) Name {
	n.Tag = tag
	n.Digest = ""
	return n
}

// SimpleName returns the last path segment of the repository.
func (n Name) SimpleName() string {
	if i := strings.LastIndex(n.Repository, "/"); i >= 0 {
		return n.Repository[i+1:]
	}
	return n.Repository
}

// Qualify parses ref and applies registry when ref embeds none. This is the
// name the engine needs to tag and push against that registry.
func Qualify(ref, registry string) (Name, error) {
	n, err := Parse(ref)
	if err != nil {
		return Name{}, err
	}
	return n.WithRegistry(registry), nil
}

type parseError string

func (e parseError) Error() string { return string(e) }

const (
	errEmpty        = parseError("image name is empty")
	errNoRepository = parseError("missing repository")
)
