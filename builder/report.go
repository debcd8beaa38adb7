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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Report is the JSON summary of one run. CI pipelines read it to find the
// image ids and pushed references.
type Report struct {
	// Timestamp is when the run completed
	Timestamp time.Time `json:"timestamp"`

	// Duration is the total run time in human-readable format
	Duration string `json:"duration"`

	Images []ImageReport `json:"images"`

	// DockyardVersion is the version of dockyard that wrote the report
	DockyardVersion string `json:"dockyard_version"`
}

// ImageReport is one image within the report.
type ImageReport struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`

	// ImageID is the local image id after the build
	ImageID string `json:"image_id,omitempty"`

	// Tags are the additional local tags
	Tags []string `json:"tags,omitempty"`

	// ContextDigest is the digest of the build context archive
	ContextDigest string `json:"context_digest,omitempty"`

	Registry string   `json:"registry,omitempty"`
	Pushed   []string `json:"pushed,omitempty"`
	Pulled   bool     `json:"pulled,omitempty"`

	// Notes contains warnings such as unreferenced assembly layers
	Notes []string `json:"notes,omitempty"`

	Error string `json:"error,omitempty"`
}

// NewReport summarizes outcomes.
func NewReport(outcomes []Outcome, duration time.Duration, version string) *Report {
	report := &Report{
		Timestamp:       time.Now().UTC(),
		Duration:        duration.Round(time.Millisecond).String(),
		DockyardVersion: version,
		Images:          make([]ImageReport, 0, len(outcomes)),
	}

	for _, out := range outcomes {
		img := ImageReport{
			Name:   out.Image.Name,
			Alias:  out.Image.Alias,
			Pulled: out.Pulled,
		}
		if b := out.Build; b != nil {
			img.ImageID = b.ImageID
			img.Tags = b.Tags
			img.ContextDigest = b.ContextDigest
			for _, layer := range b.Unreferenced {
				img.Notes = append(img.Notes, fmt.Sprintf("assembly %s is not copied by the Dockerfile", layer))
			}
		}
		if p := out.Push; p != nil {
			img.Registry = p.Registry
			img.Pushed = p.Pushed
		}
		if out.Err != nil {
			img.Error = out.Err.Error()
		}
		report.Images = append(report.Images, img)
	}

	return report
}

// WriteReport writes the report to a JSON file
func WriteReport(path string, report *Report) error {
	if path == "" {
		return fmt.Errorf("report path cannot be empty")
	}
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	return nil
}

// ReadReport reads a report from a JSON file
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}
