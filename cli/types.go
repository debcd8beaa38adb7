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

package cli

// BuildCLIOptions holds the raw flags shared by the build, push and pull
// commands. They are validated and converted by Validator.BuildOptions.
type BuildCLIOptions struct {
	// ConfigFile is the image description file.
	ConfigFile string

	// Images selects images by name or alias; empty selects all.
	Images []string

	// Registry overrides the registry of images without an embedded one.
	Registry string

	// Tags adds tags to the configured additional tags.
	Tags []string

	// Labels holds unparsed key=value label strings.
	Labels []string

	// BuildArgs holds unparsed key=value build argument strings.
	BuildArgs []string

	// PullPolicy is Always, IfNotPresent or Never.
	PullPolicy string

	// Retries overrides the push and pull retry count; -1 keeps the configured one.
	Retries int

	// Platform selects the target platform, e.g. linux/arm64.
	Platform string

	NoCache  bool
	SkipTags bool
	Cleanup  bool

	// Pull pulls the images before building.
	Pull bool

	// Push pushes the images after building.
	Push bool

	// ReportPath receives a JSON report of the run when set.
	ReportPath string
}
