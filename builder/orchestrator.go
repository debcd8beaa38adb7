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
	"context"
	stderrors "errors"
	"time"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// Steps selects what the orchestrator does for each image.
type Steps struct {
	Pull  bool
	Build bool
	Push  bool
}

// Outcome is what happened to one image.
type Outcome struct {
	Image  *imageconfig.ImageConfiguration
	Pulled bool
	Build  *BuildResult
	Push   *PushResult
	Err    error
}

// Orchestrator runs a Service over several images, one after the other in
// configuration order. A failing image does not stop the others.
type Orchestrator struct {
	service *Service
}

// NewOrchestrator creates an orchestrator over service.
func NewOrchestrator(service *Service) *Orchestrator {
	return &Orchestrator{service: service}
}

// Run processes images and returns one outcome per image together with the
// joined errors of all failed images.
func (o *Orchestrator) Run(ctx context.Context, images []*imageconfig.ImageConfiguration, steps Steps, opts Options) ([]Outcome, error) {
	logging.InfoContext(ctx, "Processing %d image(s)", len(images))
	start := time.Now()

	outcomes := make([]Outcome, 0, len(images))
	var errs []error
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		out := o.runOne(ctx, img, steps, opts)
		if out.Err != nil {
			logging.ErrorContext(ctx, "Image %s failed: %v", img.Description(), out.Err)
			errs = append(errs, out.Err)
		}
		outcomes = append(outcomes, out)
	}

	if len(errs) > 0 {
		return outcomes, errors.Wrap("process images", "", stderrors.Join(errs...))
	}

	logging.InfoContext(ctx, "Processed %d image(s) in %s", len(images), time.Since(start).Round(time.Millisecond))
	return outcomes, nil
}

func (o *Orchestrator) runOne(ctx context.Context, img *imageconfig.ImageConfiguration, steps Steps, opts Options) Outcome {
	out := Outcome{Image: img}

	if steps.Pull {
		if out.Err = o.service.Pull(ctx, img, opts); out.Err != nil {
			return out
		}
		out.Pulled = true
	}

	if steps.Build {
		if img.Build == nil {
			logging.DebugContext(ctx, "Skipping build of %s: no build description", img.Description())
		} else if out.Build, out.Err = o.service.Build(ctx, img, opts); out.Err != nil {
			return out
		}
	}

	if steps.Push {
		out.Push, out.Err = o.service.Push(ctx, img, opts)
	}
	return out
}
