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

	"github.com/cowdogmoo/dockyard/builder"
	"github.com/cowdogmoo/dockyard/cli"
	"github.com/cowdogmoo/dockyard/logging"
)

var buildCmd = &cobra.Command{
	Use:   "build [IMAGE...]",
	Short: "Build images",
	Long: `Build the images of the image configuration file, selected by name or
alias, or all of them when none is given.

The base image is pulled according to the pull policy, the build context is
assembled from the image's assemblies or Dockerfile, and the additional tags
are applied after the build.`,
	Example: `  # Build all images
  dockyard build

  # Build one image by alias and push it to a registry
  dockyard build app --push --registry quay.io

  # Build for another platform with extra labels
  dockyard build app --platform linux/arm64 --label team=platform`,
	RunE: runBuild,
}

var pushCmd = &cobra.Command{
	Use:   "push [IMAGE...]",
	Short: "Push built images",
	Long: `Push images and their additional tags to their registry.

The registry embedded in the image name wins; otherwise --registry, the
image's registry or registry.default is used, and the image is pushed through
a temporary tag that is removed afterwards.`,
	RunE: runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull [IMAGE...]",
	Short: "Pull images",
	Long:  `Pull images from their registry according to the pull policy.`,
	RunE:  runPull,
}

var (
	buildOpts    = newBuildCLIOptions()
	pushOpts     = newBuildCLIOptions()
	pullOpts     = newBuildCLIOptions()
	outputFormat string
)

func newBuildCLIOptions() *cli.BuildCLIOptions {
	return &cli.BuildCLIOptions{Retries: -1}
}

func init() {
	addRegistryFlags(buildCmd, buildOpts)
	buildCmd.Flags().StringArrayVarP(&buildOpts.Tags, "tag", "t", nil, "Additional tag (can be specified multiple times)")
	buildCmd.Flags().StringArrayVar(&buildOpts.Labels, "label", nil, "Image label in key=value format (can be specified multiple times)")
	buildCmd.Flags().StringArrayVar(&buildOpts.BuildArgs, "build-arg", nil, "Build argument in key=value format (can be specified multiple times)")
	buildCmd.Flags().StringVar(&buildOpts.Platform, "platform", "", "Target platform (e.g., linux/arm64)")
	buildCmd.Flags().BoolVar(&buildOpts.NoCache, "no-cache", false, "Do not use the engine build cache")
	buildCmd.Flags().BoolVar(&buildOpts.Cleanup, "cleanup", false, "Remove the previous image after a rebuild")
	buildCmd.Flags().BoolVar(&buildOpts.SkipTags, "skip-tags", false, "Do not push additional tags")
	buildCmd.Flags().BoolVar(&buildOpts.Pull, "pull", false, "Pull the images before building")
	buildCmd.Flags().BoolVar(&buildOpts.Push, "push", false, "Push the images after building")
	addReportFlags(buildCmd, buildOpts)

	addRegistryFlags(pushCmd, pushOpts)
	pushCmd.Flags().StringArrayVarP(&pushOpts.Tags, "tag", "t", nil, "Additional tag to push (can be specified multiple times)")
	pushCmd.Flags().BoolVar(&pushOpts.SkipTags, "skip-tags", false, "Do not push additional tags")
	addReportFlags(pushCmd, pushOpts)

	addRegistryFlags(pullCmd, pullOpts)
	addReportFlags(pullCmd, pullOpts)
}

func addRegistryFlags(cmd *cobra.Command, opts *cli.BuildCLIOptions) {
	cmd.Flags().StringVar(&opts.Registry, "registry", "", "Registry for images without an embedded one")
	cmd.Flags().StringVar(&opts.PullPolicy, "pull-policy", "", "Pull policy: Always, IfNotPresent or Never")
	cmd.Flags().IntVar(&opts.Retries, "retries", -1, "Push and pull retries (-1 keeps the configured value)")
}

func addReportFlags(cmd *cobra.Command, opts *cli.BuildCLIOptions) {
	cmd.Flags().StringVar(&opts.ReportPath, "report", "", "Write a JSON report of the run to this file")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	steps := builder.Steps{Pull: buildOpts.Pull, Build: true, Push: buildOpts.Push}
	return runSteps(cmd, args, steps, buildOpts)
}

func runPush(cmd *cobra.Command, args []string) error {
	return runSteps(cmd, args, builder.Steps{Push: true}, pushOpts)
}

func runPull(cmd *cobra.Command, args []string) error {
	return runSteps(cmd, args, builder.Steps{Pull: true}, pullOpts)
}

// runSteps runs the orchestrator over the selected images, then reports
// the outcome. Every selected image is processed even when one fails.
func runSteps(cmd *cobra.Command, args []string, steps builder.Steps, opts *cli.BuildCLIOptions) error {
	ctx := cmd.Context()
	cfg, err := requireConfig(cmd)
	if err != nil {
		return err
	}

	opts.ConfigFile = imageFile
	opts.Images = args
	bopts, err := cli.NewValidator().BuildOptions(*opts)
	if err != nil {
		return err
	}

	file, images, err := loadImages(opts.ConfigFile, opts.Images)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, cfg, file)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	start := time.Now()
	outcomes, runErr := builder.NewOrchestrator(s.service).Run(ctx, images, steps, bopts)
	report := builder.NewReport(outcomes, time.Since(start), version)

	if opts.ReportPath != "" {
		if err := builder.WriteReport(opts.ReportPath, report); err != nil {
			logging.ErrorContext(ctx, "Failed to write report: %v", err)
		} else {
			logging.InfoContext(ctx, "Report written to %s", opts.ReportPath)
		}
	}

	if err := cli.NewOutputFormatter(outputFormat).DisplayReport(ctx, report); err != nil {
		logging.ErrorContext(ctx, "Failed to display report: %v", err)
	}
	return runErr
}
