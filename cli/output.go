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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cowdogmoo/dockyard/builder"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// OutputFormatter formats command output for display.
type OutputFormatter struct {
	format string // text, json, table
	out    io.Writer
}

// NewOutputFormatter creates a new output formatter with the specified format.
func NewOutputFormatter(format string) *OutputFormatter {
	return &OutputFormatter{
		format: format,
		out:    os.Stdout,
	}
}

// DisplayReport shows the outcome of a run: as log lines in text mode or
// as the JSON report in json mode.
func (f *OutputFormatter) DisplayReport(ctx context.Context, report *builder.Report) error {
	if f.format == "json" {
		encoder := json.NewEncoder(f.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	for _, img := range report.Images {
		name := img.Name
		if img.Alias != "" {
			name = fmt.Sprintf("%s (%s)", img.Alias, img.Name)
		}
		if img.Error != "" {
			logging.ErrorContext(ctx, "%s: %s", name, img.Error)
			continue
		}

		logging.InfoContext(ctx, "%s: done", name)
		if img.ImageID != "" {
			logging.InfoContext(ctx, "  Image ID: %s", img.ImageID)
		}
		for _, tag := range img.Tags {
			logging.InfoContext(ctx, "  Tagged: %s", tag)
		}
		for _, ref := range img.Pushed {
			logging.InfoContext(ctx, "  Pushed: %s", ref)
		}
		for _, note := range img.Notes {
			logging.WarnContext(ctx, "  Note: %s", note)
		}
	}
	logging.InfoContext(ctx, "Duration: %s", report.Duration)
	return nil
}

// DisplayImages lists the images of a configuration file.
func (f *OutputFormatter) DisplayImages(images []*imageconfig.ImageConfiguration) error {
	switch f.format {
	case "json":
		encoder := json.NewEncoder(f.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(images)
	case "table", "text", "":
		return f.displayImagesTable(images)
	default:
		return fmt.Errorf("unknown format: %s (supported: table, json)", f.format)
	}
}

func (f *OutputFormatter) displayImagesTable(images []*imageconfig.ImageConfiguration) error {
	w := tabwriter.NewWriter(f.out, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(w, "NAME\tALIAS\tFROM\tREGISTRY\tWATCH"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "----\t-----\t----\t--------\t-----"); err != nil {
		return fmt.Errorf("failed to write separator: %w", err)
	}

	for _, img := range images {
		from := "-"
		if b := img.Build; b != nil {
			from = orDash(b.From)
			if b.Dockerfile != "" {
				from = "Dockerfile " + b.Dockerfile
			}
		}
		watch := "-"
		if img.Watch != nil {
			watch = orDash(img.Watch.Mode)
		}

		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			img.Name, orDash(img.Alias), from, orDash(img.Registry), watch); err != nil {
			return fmt.Errorf("failed to write image row: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	_, err := fmt.Fprintf(f.out, "\nTotal images: %d\n", len(images))
	return err
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
