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

package buildcontext

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/command"
	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// CopySources returns the source arguments of every COPY and ADD
// instruction in the Dockerfile read from r.
func CopySources(r io.Reader) ([]string, error) {
	result, err := parser.Parse(r)
	if err != nil {
		return nil, errors.Configuration("parse dockerfile", "", err)
	}

	var sources []string
	for _, node := range result.AST.Children {
		if !strings.EqualFold(node.Value, command.Copy) && !strings.EqualFold(node.Value, command.Add) {
			continue
		}
		var args []string
		for n := node.Next; n != nil; n = n.Next {
			args = append(args, n.Value)
		}
		// The last argument is the destination.
		if len(args) > 1 {
			sources = append(sources, args[:len(args)-1]...)
		}
	}
	return sources, nil
}

// VerifyDockerfile checks that every assembly layer is copied into the
// image by a COPY or ADD instruction. Each unreferenced layer is logged as
// a warning and returned; a missing reference never fails the build.
func VerifyDockerfile(ctx context.Context, r io.Reader, assemblies []imageconfig.AssemblyDescriptor) ([]string, error) {
	sources, err := CopySources(r)
	if err != nil {
		return nil, err
	}

	var missing []string
	for i := range assemblies {
		want := ContextPath(&assemblies[i])
		if referenced(want, sources) {
			continue
		}
		logging.WarnContext(ctx,
			"Dockerfile does not copy assembly %q: add a COPY or ADD for %s",
			assemblies[i].ID, want)
		missing = append(missing, want)
	}
	return missing, nil
}

func referenced(want string, sources []string) bool {
	for _, src := range sources {
		src = path.Clean("/" + strings.TrimPrefix(src, "./"))
		src = strings.TrimPrefix(src, "/")
		if src == "" || src == want || strings.HasPrefix(want, src+"/") || strings.HasPrefix(src, want+"/") {
			return true
		}
	}
	return false
}
