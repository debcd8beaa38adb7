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

// Package main generates a JSON schema from the dockyard image configuration
// structure. The generated schema enables IDE autocompletion and validation
// for image configuration YAML files.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/cowdogmoo/dockyard/config"
	"github.com/cowdogmoo/dockyard/imageconfig"
)

var (
	output = flag.String("o", "schema/dockyard-images.json", "Output path for JSON schema")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// mapType describes the types whose YAML form differs from their Go
// structure.
func mapType(t reflect.Type) *jsonschema.Schema {
	switch t {
	case reflect.TypeOf(imageconfig.OrderedMap{}):
		return &jsonschema.Schema{
			Type:                 "object",
			AdditionalProperties: &jsonschema.Schema{Type: "string"},
		}
	case reflect.TypeOf(imageconfig.Arguments{}):
		return &jsonschema.Schema{
			Description: "Shell form string or exec form argument list",
			OneOf: []*jsonschema.Schema{
				{Type: "string"},
				{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			},
		}
	case reflect.TypeOf(time.Duration(0)):
		return &jsonschema.Schema{
			Type:    "string",
			Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|ms|s|m|h))+$`,
		}
	}
	return nil
}

func run() error {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
		Mapper:                    mapType,
	}

	// Type-level descriptions come from the Go doc comments
	if err := reflector.AddGoComments("github.com/cowdogmoo/dockyard", "./"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to extract type-level comments: %v\n", err)
	}

	schema := reflector.Reflect(&imageconfig.File{})

	schema.ID = jsonschema.ID("https://dockyard.dev/schema/images.json")
	schema.Title = "Dockyard Image Configuration"
	schema.Description = "Schema for Dockyard image configuration files"
	if schema.Extras == nil {
		schema.Extras = make(map[string]interface{})
	}
	schema.Extras["dockyardSchemaVersion"] = imageconfig.SchemaVersion

	schema.Examples = []interface{}{
		map[string]interface{}{
			"images": []interface{}{
				map[string]interface{}{
					"name":     "team/app:1.0",
					"alias":    "app",
					"registry": "quay.io",
					"build": map[string]interface{}{
						"from": "eclipse-temurin:21-jre",
						"labels": map[string]interface{}{
							"org.opencontainers.image.vendor": "Example",
						},
						"ports": []string{"8080"},
						"cmd":   []string{"java", "-jar", "/app/app.jar"},
						"assemblies": []interface{}{
							map[string]interface{}{
								"targetDir": "/app",
								"fileSets": []interface{}{
									map[string]interface{}{
										"directory": "target",
										"includes":  []string{"*.jar"},
									},
								},
							},
						},
					},
					"watch": map[string]interface{}{
						"mode":     "copy",
						"interval": "2s",
						"postExec": "kill -HUP 1",
					},
				},
			},
		},
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	dir := filepath.Dir(*output)
	if err := os.MkdirAll(dir, config.DirPermReadWriteExec); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Append newline to satisfy end-of-file-fixer
	data = append(data, '\n')

	if err := os.WriteFile(*output, data, config.FilePermReadWrite); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	fmt.Printf("✓ Generated JSON schema: %s\n", *output)
	return nil
}
