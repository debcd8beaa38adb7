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

import (
	"fmt"
	"strings"

	"github.com/cowdogmoo/dockyard/builder"
	"github.com/cowdogmoo/dockyard/imagename"
)

// Validator validates CLI input before passing to business logic.
type Validator struct {
	parser *Parser
}

// NewValidator creates a new CLI validator.
func NewValidator() *Validator {
	return &Validator{parser: NewParser()}
}

// ValidateBuildOptions validates build command options for correctness and consistency.
func (v *Validator) ValidateBuildOptions(opts BuildCLIOptions) error {
	if err := v.validateKeyValueFormats(opts); err != nil {
		return err
	}

	if err := v.validateValues(opts); err != nil {
		return err
	}

	return nil
}

// validateKeyValueFormats validates all key=value format options.
func (v *Validator) validateKeyValueFormats(opts BuildCLIOptions) error {
	for _, label := range opts.Labels {
		if !ValidateKeyValueFormat(label) {
			return fmt.Errorf("invalid label format: %s (expected key=value)", label)
		}
	}

	for _, arg := range opts.BuildArgs {
		if !ValidateKeyValueFormat(arg) {
			return fmt.Errorf("invalid build-arg format: %s (expected key=value)", arg)
		}
	}

	return nil
}

func (v *Validator) validateValues(opts BuildCLIOptions) error {
	if opts.Retries < -1 {
		return fmt.Errorf("--retries must not be negative, got %d", opts.Retries)
	}

	if _, err := builder.ParsePullPolicy(opts.PullPolicy); err != nil {
		return err
	}

	if opts.Registry != "" {
		if err := imagename.ValidateRegistry(opts.Registry); err != nil {
			return err
		}
	}

	for _, tag := range opts.Tags {
		if tag == "" || strings.ContainsAny(tag, ":/@ ") {
			return fmt.Errorf("invalid tag %q", tag)
		}
	}

	if opts.Platform != "" && !strings.Contains(opts.Platform, "/") {
		return fmt.Errorf("invalid platform %q (expected os/arch[/variant])", opts.Platform)
	}

	return nil
}

// BuildOptions validates opts and converts them to builder options.
func (v *Validator) BuildOptions(opts BuildCLIOptions) (builder.Options, error) {
	if err := v.ValidateBuildOptions(opts); err != nil {
		return builder.Options{}, err
	}

	labels, err := v.parser.ParseLabels(opts.Labels)
	if err != nil {
		return builder.Options{}, err
	}
	buildArgs, err := v.parser.ParseBuildArgs(opts.BuildArgs)
	if err != nil {
		return builder.Options{}, err
	}

	return builder.Options{
		Registry:   opts.Registry,
		Tags:       opts.Tags,
		Labels:     labels,
		BuildArgs:  buildArgs,
		PullPolicy: opts.PullPolicy,
		Retries:    opts.Retries,
		Platform:   opts.Platform,
		NoCache:    opts.NoCache,
		SkipTags:   opts.SkipTags,
		Cleanup:    opts.Cleanup,
	}, nil
}

// ValidateConfigSetOptions validates config set command options.
func (v *Validator) ValidateConfigSetOptions(key, value string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	if value == "" {
		return fmt.Errorf("value is required")
	}

	if !isValidConfigKey(key) {
		return fmt.Errorf("invalid config key format: %s (use dot notation like registry.default)", key)
	}

	return nil
}

// isValidConfigKey checks if a config key is in valid format.
func isValidConfigKey(key string) bool {
	if key == "" {
		return false
	}

	if strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return false
	}

	return !strings.Contains(key, "..")
}
