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

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/dockyard/cli"
	"github.com/cowdogmoo/dockyard/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [IMAGE...]",
	Short: "Rebuild, restart or refresh containers when sources change",
	Long: `Watch the assembly sources of the selected images and act on change.

Modes:
  build  rebuild the image
  run    recreate the container from the current image
  both   rebuild, then recreate the container
  copy   copy changed files into the running container
  none   ignore the image

The mode, interval and post-action hooks of an image come from its watch
description; --mode applies to images without one. Stop with Ctrl-C.`,
	Example: `  # Watch every image with the configured defaults
  dockyard watch

  # Use filesystem notifications and copy changes into the container
  dockyard watch app --detector notify --mode copy`,
	RunE: runWatch,
}

var (
	watchOpts     = newBuildCLIOptions()
	watchInterval time.Duration
	watchMode     string
	watchDetector string
)

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Interval between change checks (default from watch.interval)")
	watchCmd.Flags().StringVar(&watchMode, "mode", "", "Mode for images without one: build, run, both, copy or none")
	watchCmd.Flags().StringVar(&watchDetector, "detector", "", "Change detector: poll or notify")

	addRegistryFlags(watchCmd, watchOpts)
	watchCmd.Flags().StringArrayVar(&watchOpts.BuildArgs, "build-arg", nil, "Build argument in key=value format (can be specified multiple times)")
	watchCmd.Flags().StringVar(&watchOpts.Platform, "platform", "", "Target platform (e.g., linux/arm64)")
	watchCmd.Flags().BoolVar(&watchOpts.NoCache, "no-cache", false, "Do not use the engine build cache")
}

// runWatch runs the watch loop until the command context is cancelled.
// The interval, mode and detector flags reach the loop through the watch
// section of the config.
func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := requireConfig(cmd)
	if err != nil {
		return err
	}

	bopts, err := cli.NewValidator().BuildOptions(*watchOpts)
	if err != nil {
		return err
	}

	file, images, err := loadImages(imageFile, args)
	if err != nil {
		return err
	}
	detector, err := watch.NewDetector(cfg.Watch.Detector, file.BaseDir)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, file)
	if err != nil {
		_ = detector.Close()
		return err
	}
	defer s.Close(ctx)

	loop := watch.NewLoop(s.service, s.engine, detector, images, watch.Options{
		Interval: cfg.Watch.Interval,
		Mode:     cfg.Watch.Mode,
		BaseDir:  file.BaseDir,
		Build:    bopts,
	})
	return loop.Run(ctx)
}
