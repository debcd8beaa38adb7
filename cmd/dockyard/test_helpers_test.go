package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cowdogmoo/dockyard/logging"
)

// setupTestContext creates a context with a logger suitable for testing.
func setupTestContext(t *testing.T) context.Context {
	t.Helper()
	logger := logging.NewCustomLoggerWithOptions("error", "text", true, false)
	return logging.WithLogger(context.Background(), logger)
}

// captureStdoutForTest captures stdout during a function call and returns the output.
func captureStdoutForTest(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	oldStdout := os.Stdout
	os.Stdout = w

	fn()

	if err := w.Close(); err != nil {
		t.Fatalf("failed to close pipe writer: %v", err)
	}
	os.Stdout = oldStdout

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read from pipe: %v", err)
	}
	return buf.String()
}

// isolateConfig points every config and cache location at a temp dir and
// restores the global flag variables afterwards.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, ".cache"))
	t.Setenv("DOCKER_CONFIG", filepath.Join(dir, ".docker"))

	origCfgFile, origImageFile := cfgFile, imageFile
	origForce, origImagesFormat := configForce, imagesFormat
	origAuthPush, origAuthRequired := authPush, authRequired
	t.Cleanup(func() {
		cfgFile, imageFile = origCfgFile, origImageFile
		configForce, imagesFormat = origForce, origImagesFormat
		authPush, authRequired = origAuthPush, origAuthRequired
	})

	// Run from the temp dir so that ./config.yaml is not picked up.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

// writeFile writes content below dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// executeRoot runs the root command with args and returns what it wrote.
// The command context carries a quiet logger.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(os.Stdout)
		rootCmd.SetErr(os.Stderr)
		rootCmd.SetArgs(nil)
	})

	err := Execute(setupTestContext(t))
	return buf.String(), err
}

const testImages = `images:
  - name: team/app:1.0
    alias: app
    build:
      from: alpine:3.20
  - name: team/web
    registry: quay.io
    build:
      from: nginx:1.27
    watch:
      mode: copy
`
