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

// Package cli sits between the cobra commands and the builder: it parses
// raw flag values, validates them and formats results.
//
//	parser := cli.NewParser()
//	labels, err := parser.ParseLabels([]string{"team=platform"})
//
//	validator := cli.NewValidator()
//	opts, err := validator.BuildOptions(flags)
//
//	cli.NewOutputFormatter("table").DisplayImages(images)
package cli

import (
	"fmt"
	"strings"
)

// Parser handles parsing of CLI input into structured data.
type Parser struct{}

// NewParser creates a new CLI parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseKeyValuePairs parses key=value pairs from CLI flags. Later pairs
// win over earlier ones with the same key.
func (p *Parser) ParseKeyValuePairs(pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		key, value, err := ParseKeyValue(pair)
		if err != nil {
			return nil, fmt.Errorf("invalid pair %q: %w", pair, err)
		}
		result[key] = value
	}

	return result, nil
}

// ParseKeyValue parses a single key=value string. Surrounding blanks are
// trimmed from both sides; the value may contain further '=' characters.
func ParseKeyValue(pair string) (string, string, error) {
	key, value, ok := strings.Cut(pair, "=")
	if !ok {
		return "", "", fmt.Errorf("expected format key=value, got %q", pair)
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", fmt.Errorf("key cannot be empty")
	}

	return key, strings.TrimSpace(value), nil
}

// ParseLabels parses --label flags. No flags yields a nil map.
func (p *Parser) ParseLabels(labels []string) (map[string]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	return p.ParseKeyValuePairs(labels)
}

// ParseBuildArgs parses --build-arg flags. No flags yields a nil map.
func (p *Parser) ParseBuildArgs(buildArgs []string) (map[string]string, error) {
	if len(buildArgs) == 0 {
		return nil, nil
	}
	return p.ParseKeyValuePairs(buildArgs)
}

// ValidateKeyValueFormat checks if a string is in key=value format without parsing.
func ValidateKeyValueFormat(pair string) bool {
	key, _, ok := strings.Cut(pair, "=")
	return ok && strings.TrimSpace(key) != ""
}
