package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cowdogmoo/dockyard/imageconfig"
)

// withOutput points the -o flag at a temp file for one test.
func withOutput(t *testing.T, path string) {
	t.Helper()
	originalOutput := *output
	*output = path
	t.Cleanup(func() {
		*output = originalOutput
	})
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) string
		wantErr bool
	}{
		{
			name: "writes schema output",
			setup: func(t *testing.T) string {
				t.Helper()
				return filepath.Join(t.TempDir(), "schema.json")
			},
		},
		{
			name: "creates output directory",
			setup: func(t *testing.T) string {
				t.Helper()
				return filepath.Join(t.TempDir(), "nested", "dir", "schema.json")
			},
		},
		{
			name: "returns error on unwritable output",
			setup: func(t *testing.T) string {
				t.Helper()
				if os.Geteuid() == 0 {
					t.Skip("permissions are not enforced for root")
				}
				tmpDir := t.TempDir()
				readOnlyDir := filepath.Join(tmpDir, "readonly")
				if err := os.Mkdir(readOnlyDir, 0500); err != nil {
					t.Fatalf("mkdir: %v", err)
				}
				t.Cleanup(func() {
					_ = os.Chmod(readOnlyDir, 0700)
				})
				return filepath.Join(readOnlyDir, "schema.json")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outputPath := tt.setup(t)
			withOutput(t, outputPath)

			err := run()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("run() error = %v", err)
			}

			data, err := os.ReadFile(outputPath)
			if err != nil {
				t.Fatalf("read schema: %v", err)
			}

			content := string(data)
			if !strings.Contains(content, "Dockyard Image Configuration") {
				t.Errorf("schema output missing title, got: %s", content)
			}
			if !strings.Contains(content, "dockyardSchemaVersion") {
				t.Errorf("schema output missing dockyardSchemaVersion")
			}
			if !strings.HasSuffix(content, "}\n") {
				t.Errorf("schema output should end with a newline")
			}
		})
	}
}

// TestRunSchemaContent validates the structure and content of the generated
// JSON schema.
func TestRunSchemaContent(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "schema.json")
	withOutput(t, outputPath)

	if err := run(); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}

	var schema map[string]interface{}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema JSON is not valid: %v", err)
	}

	if got := schema["$id"]; got != "https://dockyard.dev/schema/images.json" {
		t.Errorf("schema $id = %v", got)
	}
	if got := schema["title"]; got != "Dockyard Image Configuration" {
		t.Errorf("schema title = %v", got)
	}
	if got := schema["dockyardSchemaVersion"]; got != imageconfig.SchemaVersion {
		t.Errorf("schema dockyardSchemaVersion = %v, want %q", got, imageconfig.SchemaVersion)
	}
	if _, ok := schema["$schema"]; !ok {
		t.Error("schema missing $schema field")
	}

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("schema properties missing, got %T", schema["properties"])
	}
	if _, ok := props["images"]; !ok {
		t.Error("schema missing images property")
	}
	if _, ok := props["BaseDir"]; ok {
		t.Error("schema should not expose BaseDir")
	}

	defs, ok := schema["$defs"].(map[string]interface{})
	if !ok {
		t.Fatalf("schema $defs missing, got %T", schema["$defs"])
	}
	for _, name := range []string{"ImageConfiguration", "BuildDescription", "AssemblyDescriptor", "WatchDescription"} {
		if _, ok := defs[name]; !ok {
			t.Errorf("schema missing definition %q", name)
		}
	}
}

func TestRunSchemaExamples(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "schema.json")
	withOutput(t, outputPath)

	if err := run(); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}

	var schema struct {
		Examples []map[string]interface{} `json:"examples"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema JSON is not valid: %v", err)
	}
	if len(schema.Examples) == 0 {
		t.Fatal("schema examples array is empty")
	}

	images, ok := schema.Examples[0]["images"].([]interface{})
	if !ok || len(images) == 0 {
		t.Fatalf("first example has no images, got %v", schema.Examples[0])
	}
	first, ok := images[0].(map[string]interface{})
	if !ok {
		t.Fatalf("first image is not an object, got %T", images[0])
	}
	for _, key := range []string{"name", "alias", "build", "watch"} {
		if _, ok := first[key]; !ok {
			t.Errorf("first example image missing key %q", key)
		}
	}
}

func TestMapType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		typ      reflect.Type
		wantType string
		wantNil  bool
	}{
		{name: "ordered map", typ: reflect.TypeOf(imageconfig.OrderedMap{}), wantType: "object"},
		{name: "duration", typ: reflect.TypeOf(time.Duration(0)), wantType: "string"},
		{name: "arguments", typ: reflect.TypeOf(imageconfig.Arguments{})},
		{name: "plain struct", typ: reflect.TypeOf(imageconfig.FileSet{}), wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mapType(tt.typ)
			if tt.wantNil {
				if got != nil {
					t.Errorf("mapType() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("mapType() = nil")
			}
			if got.Type != tt.wantType {
				t.Errorf("mapType().Type = %q, want %q", got.Type, tt.wantType)
			}
		})
	}

	args := mapType(reflect.TypeOf(imageconfig.Arguments{}))
	if len(args.OneOf) != 2 {
		t.Errorf("arguments schema should accept a string or a list, got %d alternatives", len(args.OneOf))
	}
}
