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
	"net/url"
	"time"

	"github.com/go-git/go-git/v5"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// GitLabels returns OCI revision, creation and source labels for the git
// work tree containing dir. Outside a work tree it returns no labels.
func GitLabels(ctx context.Context, dir string, now time.Time) (imageconfig.OrderedMap, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		logging.DebugContext(ctx, "No git repository at %s, skipping git labels", dir)
		return imageconfig.OrderedMap{}, nil
	}
	if err != nil {
		return imageconfig.OrderedMap{}, errors.Wrap("open git repository", dir, err)
	}

	labels := imageconfig.NewOrderedMap()
	head, err := repo.Head()
	if err != nil {
		// A repository without commits has no HEAD yet.
		logging.DebugContext(ctx, "Could not resolve git HEAD in %s: %v", dir, err)
	} else {
		labels.Set(v1.AnnotationRevision, head.Hash().String())
	}
	labels.Set(v1.AnnotationCreated, now.UTC().Format(time.RFC3339))

	if remote, err := repo.Remote("origin"); err == nil {
		if urls := remote.Config().URLs; len(urls) > 0 {
			labels.Set(v1.AnnotationSource, stripCredentials(urls[0]))
		}
	}
	return labels, nil
}

func stripCredentials(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}
