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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/dockyard/errors"
)

// isolate points every search path at an empty temp directory.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmpDir, "cache"))
	t.Setenv("XDG_CONFIG_DIRS", filepath.Join(tmpDir, "system"))
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Chdir(tmpDir)
	return tmpDir
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.ErrorIs(t, err, ErrConfigNotFound)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "color", cfg.Log.Format)
	assert.Equal(t, "IfNotPresent", cfg.Registry.PullPolicy)
	assert.Equal(t, 2, cfg.Registry.Retries)
	assert.Equal(t, "docker-credential", cfg.Auth.HelperPrefix)
	assert.Equal(t, "sdk", cfg.AWS.CredentialsProvider)
	assert.Equal(t, "none", cfg.Build.Compression)
	assert.Equal(t, 10*time.Minute, cfg.Engine.Timeout)
	assert.Equal(t, "1.41", cfg.Engine.MinAPIVersion)
	assert.Equal(t, 5*time.Second, cfg.Watch.Interval)
	assert.Equal(t, "both", cfg.Watch.Mode)
	assert.Equal(t, "poll", cfg.Watch.Detector)
}

func TestGet_MissingFileIsNotAnError(t *testing.T) {
	isolate(t)

	cfg, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_WithConfigInXDGDir(t *testing.T) {
	tmpDir := isolate(t)
	writeConfig(t, filepath.Join(tmpDir, "config", AppName, "config.yaml"), `registry:
  default: quay.io
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "quay.io", cfg.Registry.Default)
}

func TestLoad_FindsConfigInCurrentDir(t *testing.T) {
	tmpDir := isolate(t)
	writeConfig(t, filepath.Join(tmpDir, "config.yaml"), `log:
  level: debug
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := isolate(t)
	configPath := filepath.Join(tmpDir, "custom.yaml")
	writeConfig(t, configPath, `log:
  level: warn
  format: json
engine:
  host: tcp://127.0.0.1:2375
  timeout: 30s
registry:
  default: registry.example.com
  pull_policy: Always
  retries: 5
  skip_tags: true
auth:
  docker_config: /etc/docker/config.json
  servers:
    - id: registry.example.com
      username: builder
      password: env:BUILDER_PASSWORD
aws:
  region: eu-west-1
  credentials_provider: builtin
build:
  compression: gzip
  cleanup: true
watch:
  interval: 2s
  mode: copy
  detector: notify
`)

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "tcp://127.0.0.1:2375", cfg.Engine.Host)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "registry.example.com", cfg.Registry.Default)
	assert.Equal(t, "Always", cfg.Registry.PullPolicy)
	assert.Equal(t, 5, cfg.Registry.Retries)
	assert.True(t, cfg.Registry.SkipTags)
	assert.Equal(t, "/etc/docker/config.json", cfg.Auth.DockerConfig)
	require.Len(t, cfg.Auth.Servers, 1)
	assert.Equal(t, ServerConfig{ID: "registry.example.com", Username: "builder", Password: "env:BUILDER_PASSWORD"}, cfg.Auth.Servers[0])
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "builtin", cfg.AWS.CredentialsProvider)
	assert.Equal(t, "gzip", cfg.Build.Compression)
	assert.True(t, cfg.Build.Cleanup)
	assert.Equal(t, 2*time.Second, cfg.Watch.Interval)
	assert.Equal(t, "copy", cfg.Watch.Mode)
	assert.Equal(t, "notify", cfg.Watch.Detector)
}

func TestLoadFromPath_Errors(t *testing.T) {
	tmpDir := isolate(t)

	_, err := LoadFromPath(filepath.Join(tmpDir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfiguration))

	invalid := filepath.Join(tmpDir, "invalid.yaml")
	writeConfig(t, invalid, "log: [unclosed\n")
	_, err = LoadFromPath(invalid)
	require.Error(t, err)

	badPolicy := filepath.Join(tmpDir, "policy.yaml")
	writeConfig(t, badPolicy, "registry:\n  pull_policy: Sometimes\n")
	_, err = LoadFromPath(badPolicy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.pull_policy")
	assert.Contains(t, err.Error(), "Sometimes")
}

func TestLoad_EnvVarOverride(t *testing.T) {
	tmpDir := isolate(t)
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfig(t, configPath, `registry:
  default: ghcr.io
log:
  level: info
`)

	t.Setenv("DOCKYARD_REGISTRY_DEFAULT", "quay.io")
	t.Setenv("DOCKYARD_LOG_LEVEL", "debug")
	t.Setenv("DOCKYARD_REGISTRY_RETRIES", "7")
	t.Setenv("DOCKYARD_WATCH_INTERVAL", "1m")
	t.Setenv("AWS_REGION", "us-west-2")

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, "quay.io", cfg.Registry.Default)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Registry.Retries)
	assert.Equal(t, time.Minute, cfg.Watch.Interval)
	assert.Equal(t, "us-west-2", cfg.AWS.Region)
}

func TestLoad_CredentialsNeverFromConfigFile(t *testing.T) {
	tmpDir := isolate(t)
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfig(t, configPath, `aws:
  region: us-east-1
  access_key_id: AKIAFROMFILE
  secret_access_key: secretfromfile
  session_token: tokenfromfile
`)

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Empty(t, cfg.AWS.AccessKeyID)
	assert.Empty(t, cfg.AWS.SecretAccessKey)
	assert.Empty(t, cfg.AWS.SessionToken)

	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAFROMENV")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secretfromenv")
	t.Setenv("AWS_SESSION_TOKEN", "tokenfromenv")

	cfg, err = LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, "AKIAFROMENV", cfg.AWS.AccessKeyID)
	assert.Equal(t, "secretfromenv", cfg.AWS.SecretAccessKey)
	assert.Equal(t, "tokenfromenv", cfg.AWS.SessionToken)
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ErrConfigNotFound", err: ErrConfigNotFound, want: true},
		{name: "wrapped ErrConfigNotFound", err: fmt.Errorf("load: %w", ErrConfigNotFound), want: true},
		{name: "viper ConfigFileNotFoundError", err: viper.ConfigFileNotFoundError{}, want: true},
		{name: "generic error", err: fmt.Errorf("some other error"), want: false},
		{name: "os.ErrNotExist", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsNotFoundError(tt.err))
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Registry: RegistryConfig{PullPolicy: "Never", Retries: 1},
			AWS:      AWSConfig{CredentialsProvider: "sdk"},
			Build:    BuildConfig{Compression: "bzip2"},
			Watch:    WatchConfig{Interval: time.Second, Mode: "run", Detector: "poll"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad compression", mutate: func(c *Config) { c.Build.Compression = "xz" }, wantErr: "build.compression"},
		{name: "bad mode", mutate: func(c *Config) { c.Watch.Mode = "sync" }, wantErr: "watch.mode"},
		{name: "bad detector", mutate: func(c *Config) { c.Watch.Detector = "inotify" }, wantErr: "watch.detector"},
		{name: "bad provider", mutate: func(c *Config) { c.AWS.CredentialsProvider = "v1" }, wantErr: "aws.credentials_provider"},
		{name: "negative retries", mutate: func(c *Config) { c.Registry.Retries = -1 }, wantErr: "registry.retries"},
		{name: "zero interval", mutate: func(c *Config) { c.Watch.Interval = 0 }, wantErr: "watch.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsKind(err, errors.KindConfiguration))
		})
	}
}

func TestGetConfigDirs(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv("XDG_CONFIG_DIRS", "/opt/a:/opt/b")

	dirs := GetConfigDirs()
	require.GreaterOrEqual(t, len(dirs), 2)
	assert.Equal(t, filepath.Join(tmpDir, "xdg", "dockyard"), dirs[0])
	assert.Equal(t, filepath.Join(tmpDir, ".dockyard"), dirs[1])

	if runtime.GOOS == "linux" {
		assert.Equal(t, []string{"/opt/a/dockyard", "/opt/b/dockyard"}, dirs[2:])
	}
}

func TestGetCacheDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", tmpDir)

	dir, err := GetCacheDir("build")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "dockyard", "build"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestBuildDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", tmpDir)

	cfg := &Config{}
	dir, err := cfg.BuildDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "dockyard", "build"), dir)

	cfg.Build.Dir = filepath.Join(tmpDir, "out", "docker")
	dir, err = cfg.BuildDir()
	require.NoError(t, err)
	assert.Equal(t, cfg.Build.Dir, dir)
	assert.DirExists(t, dir)
}

func TestDockerConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("DOCKER_CONFIG", "")

	cfg := &Config{}
	assert.Equal(t, filepath.Join(tmpDir, ".docker", "config.json"), cfg.DockerConfigPath())

	t.Setenv("DOCKER_CONFIG", "/srv/docker")
	assert.Equal(t, "/srv/docker/config.json", cfg.DockerConfigPath())

	cfg.Auth.DockerConfig = "/explicit.json"
	assert.Equal(t, "/explicit.json", cfg.DockerConfigPath())
}

func TestContext(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}

func TestDefaultConfigFile(t *testing.T) {
	tmpDir := isolate(t)

	path, err := DefaultConfigFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "config", AppName, "config.yaml"), path)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestApplyDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("DOCKYARD_REGISTRY_DEFAULT", "ghcr.io")

	v := viper.New()
	ApplyDefaults(v)
	assert.Equal(t, "ghcr.io", v.GetString("registry.default"))
	assert.Equal(t, "IfNotPresent", v.GetString("registry.pull_policy"))
	assert.Equal(t, "poll", v.Get("watch.detector"))
}

func TestDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("DOCKYARD_REGISTRY_DEFAULT", "ghcr.io")

	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Registry.Default, "environment is not consulted")
	assert.Equal(t, 5*time.Second, cfg.Watch.Interval)
	assert.Equal(t, "both", cfg.Watch.Mode)
	assert.Equal(t, "1.41", cfg.Engine.MinAPIVersion)
}
