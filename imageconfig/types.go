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

// Package imageconfig defines the image description model: what image to
// build, from which files, and how to run and watch it. Descriptions are
// loaded from a YAML file with an images list.
package imageconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imagename"
)

// DefaultDirectoryMode is the permission of assembled directories without
// a configured mode: a directory that can be read and traversed, not written.
const DefaultDirectoryMode = "040111"

// ImageConfiguration describes one image.
type ImageConfiguration struct {
	// Name may embed a registry, e.g. registry.example.com/org/app:1.0.
	Name  string `yaml:"name" json:"name"`
	Alias string `yaml:"alias,omitempty" json:"alias,omitempty"`
	// Registry is used for push and pull when Name embeds none.
	Registry string            `yaml:"registry,omitempty" json:"registry,omitempty"`
	Build    *BuildDescription `yaml:"build,omitempty" json:"build,omitempty"`
	Run      *RunDescription   `yaml:"run,omitempty" json:"run,omitempty"`
	Watch    *WatchDescription `yaml:"watch,omitempty" json:"watch,omitempty"`
}

// BuildDescription holds everything needed to produce the build context.
type BuildDescription struct {
	From        string       `yaml:"from,omitempty" json:"from,omitempty"`
	Maintainer  string       `yaml:"maintainer,omitempty" json:"maintainer,omitempty"`
	Env         OrderedMap   `yaml:"env,omitempty" json:"env,omitempty"`
	Labels      OrderedMap   `yaml:"labels,omitempty" json:"labels,omitempty"`
	Ports       []string     `yaml:"ports,omitempty" json:"ports,omitempty"`
	Volumes     []string     `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	EntryPoint  *Arguments   `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`
	Cmd         *Arguments   `yaml:"cmd,omitempty" json:"cmd,omitempty"`
	Shell       *Arguments   `yaml:"shell,omitempty" json:"shell,omitempty"`
	HealthCheck *HealthCheck `yaml:"healthcheck,omitempty" json:"healthcheck,omitempty"`
	User        string       `yaml:"user,omitempty" json:"user,omitempty"`
	Workdir     string       `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	RunCmds     []string     `yaml:"runCmds,omitempty" json:"runCmds,omitempty"`

	Assemblies []AssemblyDescriptor `yaml:"assemblies,omitempty" json:"assemblies,omitempty"`

	// Dockerfile selects an explicit build-instruction file instead of a
	// synthesized one. ContextDir defaults to its directory.
	Dockerfile string `yaml:"dockerfile,omitempty" json:"dockerfile,omitempty"`
	ContextDir string `yaml:"contextDir,omitempty" json:"contextDir,omitempty"`

	Compression string     `yaml:"compression,omitempty" json:"compression,omitempty"`
	BuildArgs   OrderedMap `yaml:"args,omitempty" json:"args,omitempty"`
	Tags        []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	NoCache     bool       `yaml:"noCache,omitempty" json:"noCache,omitempty"`
	Cleanup     bool       `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`
	Platform    string     `yaml:"platform,omitempty" json:"platform,omitempty"`
	PullPolicy  string     `yaml:"pullPolicy,omitempty" json:"pullPolicy,omitempty"`
	// GitLabels adds OCI revision and creation labels from the git work tree.
	GitLabels bool `yaml:"gitLabels,omitempty" json:"gitLabels,omitempty"`
}

// HealthCheck configures the HEALTHCHECK instruction. Mode "none" disables
// an inherited health check.
type HealthCheck struct {
	Mode        string        `yaml:"mode,omitempty" json:"mode,omitempty"`
	Interval    time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	StartPeriod time.Duration `yaml:"startPeriod,omitempty" json:"startPeriod,omitempty"`
	Retries     int           `yaml:"retries,omitempty" json:"retries,omitempty"`
	Cmd         *Arguments    `yaml:"cmd,omitempty" json:"cmd,omitempty"`
}

// AssemblyDescriptor is one layer of files copied into the image.
type AssemblyDescriptor struct {
	// ID names the layer. Layers with an id are staged under /<id>/.
	ID        string `yaml:"id,omitempty" json:"id,omitempty"`
	TargetDir string `yaml:"targetDir" json:"targetDir"`
	User      string `yaml:"user,omitempty" json:"user,omitempty"`
	// ExportTargetDir adds a VOLUME for the target dir; default true.
	ExportTargetDir *bool `yaml:"exportTargetDir,omitempty" json:"exportTargetDir,omitempty"`

	FileMode      string     `yaml:"fileMode,omitempty" json:"fileMode,omitempty"`
	DirectoryMode string     `yaml:"directoryMode,omitempty" json:"directoryMode,omitempty"`
	FileSets      []FileSet  `yaml:"fileSets,omitempty" json:"fileSets,omitempty"`
	Files         []FileItem `yaml:"files,omitempty" json:"files,omitempty"`
}

// ExportsTargetDir reports whether the target dir is declared a volume.
func (a *AssemblyDescriptor) ExportsTargetDir() bool {
	return a.ExportTargetDir == nil || *a.ExportTargetDir
}

// FileSet selects files from a directory tree.
type FileSet struct {
	Directory string `yaml:"directory" json:"directory"`
	// OutputDirectory "." copies the directory contents into the target;
	// empty nests the directory itself under the target.
	OutputDirectory string   `yaml:"outputDirectory,omitempty" json:"outputDirectory,omitempty"`
	Includes        []string `yaml:"includes,omitempty" json:"includes,omitempty"`
	Excludes        []string `yaml:"excludes,omitempty" json:"excludes,omitempty"`
	FileMode        string   `yaml:"fileMode,omitempty" json:"fileMode,omitempty"`
	DirectoryMode   string   `yaml:"directoryMode,omitempty" json:"directoryMode,omitempty"`
}

// FileItem copies a single file.
type FileItem struct {
	Source          string `yaml:"source" json:"source"`
	OutputDirectory string `yaml:"outputDirectory,omitempty" json:"outputDirectory,omitempty"`
	DestName        string `yaml:"destName,omitempty" json:"destName,omitempty"`
	FileMode        string `yaml:"fileMode,omitempty" json:"fileMode,omitempty"`
}

// RunDescription is what the watch loop needs to recreate a container.
type RunDescription struct {
	ContainerName string     `yaml:"containerName,omitempty" json:"containerName,omitempty"`
	Env           OrderedMap `yaml:"env,omitempty" json:"env,omitempty"`
	Ports         []string   `yaml:"ports,omitempty" json:"ports,omitempty"`
	Cmd           *Arguments `yaml:"cmd,omitempty" json:"cmd,omitempty"`
}

// Watch modes.
const (
	WatchBuild = "build"
	WatchRun   = "run"
	WatchBoth  = "both"
	WatchCopy  = "copy"
	WatchNone  = "none"
)

// WatchDescription configures the watch loop for one image.
type WatchDescription struct {
	Mode     string        `yaml:"mode,omitempty" json:"mode,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	// PostExec runs inside the container after an action.
	PostExec string `yaml:"postExec,omitempty" json:"postExec,omitempty"`
	// PostBuild runs on the host after an action.
	PostBuild string `yaml:"postBuild,omitempty" json:"postBuild,omitempty"`
}

// Validate checks the image description.
func (c *ImageConfiguration) Validate() error {
	if _, err := imagename.Parse(c.Name); err != nil {
		return err
	}
	if c.Registry != "" {
		if err := imagename.ValidateRegistry(c.Registry); err != nil {
			return err
		}
	}
	if c.Build != nil {
		if err := c.Build.validate(c.Name); err != nil {
			return err
		}
	}
	if c.Watch != nil {
		switch c.Watch.Mode {
		case "", WatchBuild, WatchRun, WatchBoth, WatchCopy, WatchNone:
		default:
			return errors.Configuration("validate watch", c.Name,
				fmt.Errorf("unknown mode %q", c.Watch.Mode))
		}
	}
	return nil
}

// Description returns the alias or, when unset, the name.
func (c *ImageConfiguration) Description() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Name
}

func (b *BuildDescription) validate(image string) error {
	if b.From == "" && b.Dockerfile == "" {
		return errors.Configuration("validate build", image,
			fmt.Errorf("either from or dockerfile is required"))
	}
	if b.From != "" {
		if _, err := imagename.Parse(b.From); err != nil {
			return err
		}
	}
	switch b.Compression {
	case "", "none", "gzip", "bzip2":
	default:
		return errors.Configuration("validate build", image,
			fmt.Errorf("unknown compression %q", b.Compression))
	}
	switch b.PullPolicy {
	case "", "Always", "IfNotPresent", "Never":
	default:
		return errors.Configuration("validate build", image,
			fmt.Errorf("unknown pull policy %q", b.PullPolicy))
	}

	ids := make(map[string]bool)
	for i := range b.Assemblies {
		a := &b.Assemblies[i]
		if a.TargetDir == "" {
			return errors.Configuration("validate assembly", image,
				fmt.Errorf("assembly %d has no targetDir", i))
		}
		if len(b.Assemblies) > 1 && a.ID == "" {
			return errors.Configuration("validate assembly", image,
				fmt.Errorf("assembly %d needs an id when several layers are declared", i))
		}
		if ids[a.ID] {
			return errors.Configuration("validate assembly", image,
				fmt.Errorf("duplicate assembly id %q", a.ID))
		}
		ids[a.ID] = true
		if err := a.validateModes(); err != nil {
			return errors.Configuration("validate assembly", image, err)
		}
	}
	return nil
}

func (a *AssemblyDescriptor) validateModes() error {
	modes := []string{a.FileMode, a.DirectoryMode}
	for _, fs := range a.FileSets {
		modes = append(modes, fs.FileMode, fs.DirectoryMode)
	}
	for _, f := range a.Files {
		modes = append(modes, f.FileMode)
	}
	for _, m := range modes {
		if m == "" {
			continue
		}
		if _, err := ParseMode(m); err != nil {
			return err
		}
	}
	return nil
}

// ParseMode parses an octal permission string such as "0644" or "040755".
func ParseMode(mode string) (int64, error) {
	v, err := strconv.ParseInt(mode, 8, 64)
	if err != nil || v < 0 || v > 0o177777 {
		return 0, fmt.Errorf("invalid permission %q: must be octal", mode)
	}
	return v, nil
}
