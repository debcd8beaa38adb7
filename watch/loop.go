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

// Package watch re-runs the image pipeline when sources change.
//
// A Loop checks every watched image once per interval. Depending on the
// image's watch mode a change rebuilds the image, recreates its
// container, or copies the changed files into the running container.
// Hooks run after each action. The loop and the detector's event pump
// run in one errgroup; cancelling the context stops both between ticks.
package watch

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cowdogmoo/dockyard/builder"
	"github.com/cowdogmoo/dockyard/engine"
	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// DefaultInterval applies when neither the image nor the options set one.
const DefaultInterval = 2 * time.Second

// Builder is the part of builder.Service the loop needs.
type Builder interface {
	Build(ctx context.Context, img *imageconfig.ImageConfiguration, opts builder.Options) (*builder.BuildResult, error)
	ChangedFiles(ctx context.Context, img *imageconfig.ImageConfiguration) (string, error)
}

// Containers is the part of the engine the loop needs.
type Containers interface {
	RecreateContainer(ctx context.Context, imageRef string, run *imageconfig.RunDescription) (string, error)
	CopyArchive(ctx context.Context, containerName, archivePath, destDir string) error
	Exec(ctx context.Context, containerName string, cmd []string) (*engine.ExecResult, error)
}

var (
	_ Builder    = (*builder.Service)(nil)
	_ Containers = (*engine.Client)(nil)
)

// HostRunner runs a shell command on the host and returns its combined
// output.
type HostRunner func(ctx context.Context, dir, command string) ([]byte, error)

// Options configure a Loop.
type Options struct {
	// Interval between ticks; images may ask for a longer one.
	Interval time.Duration
	// Mode applies to images without a watch mode.
	Mode string
	// BaseDir is the working directory of host hooks.
	BaseDir string
	// Build are the overrides used for rebuilds.
	Build builder.Options
}

// Loop watches images and acts on changes.
type Loop struct {
	builder    Builder
	containers Containers
	detector   Detector
	images     []*imageconfig.ImageConfiguration
	opts       Options
	runHost    HostRunner
	now        func() time.Time

	lastCheck map[string]time.Time
}

// NewLoop creates a loop over images. Images with a watch description
// are watched; when none has one, all images are watched in opts.Mode.
func NewLoop(b Builder, c Containers, d Detector, images []*imageconfig.ImageConfiguration, opts Options) *Loop {
	var watched []*imageconfig.ImageConfiguration
	for _, img := range images {
		if img.Watch != nil {
			watched = append(watched, img)
		}
	}
	if len(watched) == 0 {
		watched = images
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Loop{
		builder:    b,
		containers: c,
		detector:   d,
		images:     watched,
		opts:       opts,
		runHost:    runShell,
		now:        time.Now,
		lastCheck:  make(map[string]time.Time),
	}
}

// Images returns the watched images.
func (l *Loop) Images() []*imageconfig.ImageConfiguration {
	return l.images
}

// Run ticks until ctx is done. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		if err := l.detector.Close(); err != nil {
			logging.WarnContext(ctx, "Failed to close change detector: %v", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	if p, ok := l.detector.(Pump); ok {
		g.Go(func() error { return p.Run(gctx) })
	}
	g.Go(func() error { return l.poll(gctx) })

	if err := g.Wait(); err != nil {
		return errors.Wrap("watch images", "", err)
	}
	return nil
}

func (l *Loop) poll(ctx context.Context) error {
	logging.InfoContext(ctx, "Watching %d image(s) every %s", len(l.images), l.opts.Interval)

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		if err := l.Tick(ctx); err != nil {
			logging.ErrorContext(ctx, "Watch tick failed: %v", err)
		}

		select {
		case <-ctx.Done():
			logging.InfoContext(ctx, "Stopped watching")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick checks every image whose interval elapsed and acts on changes. A
// failing image does not keep the others from being checked.
func (l *Loop) Tick(ctx context.Context) error {
	var errs []error
	for _, img := range l.images {
		if ctx.Err() != nil {
			break
		}
		mode := l.mode(img)
		if mode == imageconfig.WatchNone || !l.due(img) {
			continue
		}

		changed, err := l.detector.Changed(ctx, img)
		if err != nil {
			errs = append(errs, errors.Wrap("detect changes", img.Description(), err))
			continue
		}
		if !changed {
			continue
		}

		logging.InfoContext(ctx, "Change detected in %s, running %s", img.Description(), mode)
		if err := l.act(ctx, img, mode); err != nil {
			errs = append(errs, errors.Wrap("watch "+mode, img.Description(), err))
		}
	}
	return stderrors.Join(errs...)
}

func (l *Loop) mode(img *imageconfig.ImageConfiguration) string {
	if img.Watch != nil && img.Watch.Mode != "" {
		return img.Watch.Mode
	}
	if l.opts.Mode != "" {
		return l.opts.Mode
	}
	return imageconfig.WatchBuild
}

// due reports whether the image's own interval elapsed and records the
// check.
func (l *Loop) due(img *imageconfig.ImageConfiguration) bool {
	now := l.now()
	if img.Watch != nil && img.Watch.Interval > l.opts.Interval {
		if last, ok := l.lastCheck[img.Name]; ok && now.Sub(last) < img.Watch.Interval {
			return false
		}
	}
	l.lastCheck[img.Name] = now
	return true
}

func (l *Loop) act(ctx context.Context, img *imageconfig.ImageConfiguration, mode string) error {
	switch mode {
	case imageconfig.WatchBuild:
		if err := l.rebuild(ctx, img); err != nil {
			return err
		}
	case imageconfig.WatchRun:
		if err := l.restart(ctx, img); err != nil {
			return err
		}
	case imageconfig.WatchBoth:
		if err := l.rebuild(ctx, img); err != nil {
			return err
		}
		if err := l.restart(ctx, img); err != nil {
			return err
		}
	case imageconfig.WatchCopy:
		copied, err := l.copyChanged(ctx, img)
		if err != nil || !copied {
			return err
		}
	default:
		return errors.Configuration("watch image", img.Name, fmt.Errorf("unknown mode %q", mode))
	}
	return l.hooks(ctx, img)
}

func (l *Loop) rebuild(ctx context.Context, img *imageconfig.ImageConfiguration) error {
	if img.Build == nil {
		return errors.Configuration("rebuild image", img.Name, fmt.Errorf("no build description"))
	}
	_, err := l.builder.Build(ctx, img, l.opts.Build)
	return err
}

func (l *Loop) restart(ctx context.Context, img *imageconfig.ImageConfiguration) error {
	_, err := l.containers.RecreateContainer(ctx, img.Name, img.Run)
	return err
}

// copyChanged copies the changed assembly files into the running
// container. It reports false when nothing changed.
func (l *Loop) copyChanged(ctx context.Context, img *imageconfig.ImageConfiguration) (bool, error) {
	archivePath, err := l.builder.ChangedFiles(ctx, img)
	if err != nil {
		return false, err
	}
	if archivePath == "" {
		logging.DebugContext(ctx, "No assembly files changed for %s", img.Description())
		return false, nil
	}

	name := engine.ContainerName(img.Name, img.Run)
	if err := l.containers.CopyArchive(ctx, name, archivePath, "/"); err != nil {
		return false, err
	}
	logging.InfoContext(ctx, "Copied changed files into %s", name)
	return true, nil
}

func (l *Loop) hooks(ctx context.Context, img *imageconfig.ImageConfiguration) error {
	if img.Watch == nil {
		return nil
	}

	if cmd := img.Watch.PostExec; cmd != "" {
		name := engine.ContainerName(img.Name, img.Run)
		result, err := l.containers.Exec(ctx, name, []string{"sh", "-c", cmd})
		if result != nil {
			logOutput(ctx, "post-exec", name, result.Stdout)
			logOutput(ctx, "post-exec", name, result.Stderr)
		}
		if err != nil {
			return errors.Wrap("run post-exec command", cmd, err)
		}
	}

	if cmd := img.Watch.PostBuild; cmd != "" {
		out, err := l.runHost(ctx, l.opts.BaseDir, cmd)
		logOutput(ctx, "post-build", img.Description(), string(out))
		if err != nil {
			return errors.Wrap("run post-build command", cmd, err)
		}
	}
	return nil
}

func logOutput(ctx context.Context, hook, source, output string) {
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		if line != "" {
			logging.InfoContext(ctx, "[%s %s] %s", hook, source, line)
		}
	}
}

func runShell(ctx context.Context, dir, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}
