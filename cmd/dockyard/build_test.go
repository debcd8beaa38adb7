package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/dockyard/config"
)

// These cases fail before an engine connection is attempted.
func TestBuildCommandRejectsInvalidInput(t *testing.T) {
	dir := isolateConfig(t)
	path := writeFile(t, dir, "dockyard.yaml", testImages)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "bad label", args: []string{"build", "--label", "team"}, wantErr: "invalid label format"},
		{name: "bad build arg", args: []string{"build", "--build-arg", "=1"}, wantErr: "invalid build-arg format"},
		{name: "bad retries", args: []string{"push", "--retries", "-5"}, wantErr: "--retries"},
		{name: "bad pull policy", args: []string{"pull", "--pull-policy", "sometimes"}, wantErr: "unknown pull policy"},
		{name: "bad platform", args: []string{"build", "--platform", "arm64"}, wantErr: "invalid platform"},
		{name: "unknown image", args: []string{"build", "nope"}, wantErr: `unknown image "nope"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*buildOpts = *newBuildCLIOptions()
			*pushOpts = *newBuildCLIOptions()
			*pullOpts = *newBuildCLIOptions()

			_, err := executeRoot(t, append([]string{"--file", path}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	*buildOpts = *newBuildCLIOptions()
	*pushOpts = *newBuildCLIOptions()
	*pullOpts = *newBuildCLIOptions()
}

func TestWatchCommandRejectsUnknownDetector(t *testing.T) {
	dir := isolateConfig(t)
	path := writeFile(t, dir, "dockyard.yaml", testImages)

	_, err := executeRoot(t, "--file", path, "watch", "--detector", "inotify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch.detector")
	watchDetector = ""
}

func TestRequireConfig(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "build"}
	cmd.SetContext(setupTestContext(t))
	_, err := requireConfig(cmd)
	require.Error(t, err)

	cmd.SetContext(config.WithConfig(cmd.Context(), config.Defaults()))
	cfg, err := requireConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "poll", cfg.Watch.Detector)
}

func TestNewResolverRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.AWS.CredentialsProvider = "vault"
	_, err := newResolver(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select AWS credentials provider")

	cfg.AWS.CredentialsProvider = "builtin"
	r, err := newResolver(cfg)
	require.NoError(t, err)
	assert.NotNil(t, r)
}
