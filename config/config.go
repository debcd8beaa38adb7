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

// Package config loads the global dockyard configuration: engine endpoint,
// registry defaults, credential sources, AWS settings and watch behavior.
// Values come from CLI flags, DOCKYARD_* environment variables, a YAML
// config file and built-in defaults, in that order of precedence.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/cowdogmoo/dockyard/errors"
)

// EnvPrefix is the prefix for environment variables that override config keys.
const EnvPrefix = "DOCKYARD"

// ErrConfigNotFound is returned by Load alongside a default configuration
// when no config file exists in any search path.
var ErrConfigNotFound = stderrors.New("config file not found")

// Config represents the global dockyard configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	AWS      AWSConfig      `mapstructure:"aws" yaml:"aws"`
	Build    BuildConfig    `mapstructure:"build" yaml:"build"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// EngineConfig describes how to reach the container engine.
type EngineConfig struct {
	// Host overrides DOCKER_HOST when set.
	Host string `mapstructure:"host" yaml:"host"`
	// APIVersion pins the remote API version; empty negotiates.
	APIVersion string `mapstructure:"api_version" yaml:"api_version"`
	// MinAPIVersion is the oldest engine API version accepted.
	MinAPIVersion string        `mapstructure:"min_api_version" yaml:"min_api_version"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RegistryConfig holds registry defaults applied to every image.
type RegistryConfig struct {
	Default          string `mapstructure:"default" yaml:"default"`
	Username         string `mapstructure:"username" yaml:"username"`
	Password         string `mapstructure:"password" yaml:"password"`
	PullPolicy       string `mapstructure:"pull_policy" yaml:"pull_policy"`
	Retries          int    `mapstructure:"retries" yaml:"retries"`
	SkipExtendedAuth bool   `mapstructure:"skip_extended_auth" yaml:"skip_extended_auth"`
	SkipTags         bool   `mapstructure:"skip_tags" yaml:"skip_tags"`
}

// AuthConfig holds credential source settings.
type AuthConfig struct {
	// DockerConfig is the registry config file; empty means
	// $DOCKER_CONFIG/config.json or ~/.docker/config.json.
	DockerConfig string `mapstructure:"docker_config" yaml:"docker_config"`
	// HelperPrefix is prepended to helper names, e.g. docker-credential-ecr-login.
	HelperPrefix string         `mapstructure:"helper_prefix" yaml:"helper_prefix"`
	Servers      []ServerConfig `mapstructure:"servers" yaml:"servers"`
}

// ServerConfig is a stored credential matched by registry id.
type ServerConfig struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Email    string `mapstructure:"email" yaml:"email"`
}

// AWSConfig holds AWS settings used for ECR extended auth. Keys are read
// from the environment only, never from the config file.
type AWSConfig struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Profile         string `mapstructure:"profile" yaml:"profile"`
	AccessKeyID     string `mapstructure:"-" yaml:"-"`
	SecretAccessKey string `mapstructure:"-" yaml:"-"`
	SessionToken    string `mapstructure:"-" yaml:"-"`
	// CredentialsProvider selects the local credential chain: "sdk" or "builtin".
	CredentialsProvider string `mapstructure:"credentials_provider" yaml:"credentials_provider"`
}

// BuildConfig holds build defaults.
type BuildConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	Compression string `mapstructure:"compression" yaml:"compression"`
	Cleanup     bool   `mapstructure:"cleanup" yaml:"cleanup"`
	NoCache     bool   `mapstructure:"no_cache" yaml:"no_cache"`
}

// WatchConfig holds watch loop defaults.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Mode     string        `mapstructure:"mode" yaml:"mode"`
	Detector string        `mapstructure:"detector" yaml:"detector"`
}

// Load reads the global configuration from the first config file found in
// the search paths. When no file exists it returns the defaults together
// with ErrConfigNotFound.
func Load() (*Config, error) {
	v := NewConfigViper()
	setDefaults(v)
	bindEnvVars(v)

	var notFound error
	if err := v.ReadInConfig(); err != nil {
		if !IsNotFoundError(err) {
			return nil, errors.Configuration("read config file", v.ConfigFileUsed(), err)
		}
		notFound = ErrConfigNotFound
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	return cfg, notFound
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Configuration("read config file", path, err)
	}
	return unmarshal(v)
}

// Get is a convenience wrapper around Load that treats a missing config
// file as success.
func Get() (*Config, error) {
	cfg, err := Load()
	if IsNotFoundError(err) {
		return cfg, nil
	}
	return cfg, err
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Configuration("decode config", v.ConfigFileUsed(), err)
	}
	populateAWSCredentials(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsNotFoundError reports whether err means that no config file exists.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrConfigNotFound) {
		return true
	}
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound)
}

// populateAWSCredentials fills AWS keys from the standard environment
// variables.
func populateAWSCredentials(cfg *Config) {
	cfg.AWS.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.AWS.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	cfg.AWS.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"registry.pull_policy", c.Registry.PullPolicy, []string{"Always", "IfNotPresent", "Never"}},
		{"build.compression", c.Build.Compression, []string{"none", "gzip", "bzip2"}},
		{"watch.mode", c.Watch.Mode, []string{"build", "run", "both", "copy", "none"}},
		{"watch.detector", c.Watch.Detector, []string{"poll", "notify"}},
		{"aws.credentials_provider", c.AWS.CredentialsProvider, []string{"sdk", "builtin"}},
	}

	for _, check := range checks {
		if !contains(check.allowed, check.value) {
			return errors.Configuration("validate config",
				check.key, fmt.Errorf("unsupported value %q", check.value))
		}
	}

	if c.Registry.Retries < 0 {
		return errors.Configuration("validate config", "registry.retries",
			stderrors.New("must not be negative"))
	}
	if c.Watch.Interval <= 0 {
		return errors.Configuration("validate config", "watch.interval",
			stderrors.New("must be positive"))
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Defaults returns the built-in configuration without reading any file or
// environment variable.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return &Config{}
	}
	return &cfg
}

// ApplyDefaults registers the defaults and environment bindings on v, so
// that v resolves keys the same way Load does.
func ApplyDefaults(v *viper.Viper) {
	setDefaults(v)
	bindEnvVars(v)
}

// setDefaults sets default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")

	v.SetDefault("engine.host", "")
	v.SetDefault("engine.api_version", "")
	v.SetDefault("engine.min_api_version", "1.41")
	v.SetDefault("engine.timeout", "10m")

	v.SetDefault("registry.default", "")
	v.SetDefault("registry.pull_policy", "IfNotPresent")
	v.SetDefault("registry.retries", 2)
	v.SetDefault("registry.skip_extended_auth", false)
	v.SetDefault("registry.skip_tags", false)

	v.SetDefault("auth.docker_config", "")
	v.SetDefault("auth.helper_prefix", "docker-credential")

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.credentials_provider", "sdk")

	v.SetDefault("build.dir", "")
	v.SetDefault("build.compression", "none")
	v.SetDefault("build.cleanup", false)
	v.SetDefault("build.no_cache", false)

	v.SetDefault("watch.interval", "5s")
	v.SetDefault("watch.mode", "both")
	v.SetDefault("watch.detector", "poll")
}

// bindEnvVars explicitly binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	_ = v.BindEnv("log.level", "DOCKYARD_LOG_LEVEL")
	_ = v.BindEnv("log.format", "DOCKYARD_LOG_FORMAT")

	_ = v.BindEnv("engine.host", "DOCKYARD_ENGINE_HOST", "DOCKER_HOST")
	_ = v.BindEnv("engine.api_version", "DOCKYARD_ENGINE_API_VERSION", "DOCKER_API_VERSION")
	_ = v.BindEnv("engine.min_api_version", "DOCKYARD_ENGINE_MIN_API_VERSION")
	_ = v.BindEnv("engine.timeout", "DOCKYARD_ENGINE_TIMEOUT")

	_ = v.BindEnv("registry.default", "DOCKYARD_REGISTRY_DEFAULT")
	_ = v.BindEnv("registry.username", "DOCKYARD_REGISTRY_USERNAME")
	_ = v.BindEnv("registry.password", "DOCKYARD_REGISTRY_PASSWORD")
	_ = v.BindEnv("registry.pull_policy", "DOCKYARD_REGISTRY_PULL_POLICY")
	_ = v.BindEnv("registry.retries", "DOCKYARD_REGISTRY_RETRIES")
	_ = v.BindEnv("registry.skip_extended_auth", "DOCKYARD_REGISTRY_SKIP_EXTENDED_AUTH")
	_ = v.BindEnv("registry.skip_tags", "DOCKYARD_REGISTRY_SKIP_TAGS")

	_ = v.BindEnv("auth.docker_config", "DOCKYARD_AUTH_DOCKER_CONFIG")
	_ = v.BindEnv("auth.helper_prefix", "DOCKYARD_AUTH_HELPER_PREFIX")

	_ = v.BindEnv("aws.region", "AWS_REGION", "AWS_DEFAULT_REGION")
	_ = v.BindEnv("aws.profile", "AWS_PROFILE")
	_ = v.BindEnv("aws.credentials_provider", "DOCKYARD_AWS_CREDENTIALS_PROVIDER")

	_ = v.BindEnv("build.dir", "DOCKYARD_BUILD_DIR")
	_ = v.BindEnv("build.compression", "DOCKYARD_BUILD_COMPRESSION")
	_ = v.BindEnv("build.cleanup", "DOCKYARD_BUILD_CLEANUP")
	_ = v.BindEnv("build.no_cache", "DOCKYARD_BUILD_NO_CACHE")

	_ = v.BindEnv("watch.interval", "DOCKYARD_WATCH_INTERVAL")
	_ = v.BindEnv("watch.mode", "DOCKYARD_WATCH_MODE")
	_ = v.BindEnv("watch.detector", "DOCKYARD_WATCH_DETECTOR")
}
