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
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/cowdogmoo/dockyard/errors"
)

// AppName names the per-user config and cache directories.
const AppName = "dockyard"

// Directory and file permissions used for files dockyard creates.
const (
	DirPermReadWriteExec = 0o755
	FilePermReadWrite    = 0o644
	FilePermPrivate      = 0o600
)

// getConfigHome returns $XDG_CONFIG_HOME or ~/.config.
func getConfigHome() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return configHome
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config")
	}
	return ""
}

// getCacheHome returns $XDG_CACHE_HOME or ~/.cache.
func getCacheHome() string {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return cacheHome
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache")
	}
	return ""
}

// GetConfigDirs returns all config directories to search, in priority order:
// the XDG config home, the legacy ~/.dockyard directory, then the system-wide
// XDG directories on Linux and BSD.
func GetConfigDirs() []string {
	var dirs []string

	if configHome := getConfigHome(); configHome != "" {
		dirs = append(dirs, filepath.Join(configHome, AppName))
	}

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "."+AppName))
	}

	if runtime.GOOS == "linux" || runtime.GOOS == "freebsd" || runtime.GOOS == "openbsd" {
		if xdgConfigDirs := os.Getenv("XDG_CONFIG_DIRS"); xdgConfigDirs != "" {
			for _, dir := range filepath.SplitList(xdgConfigDirs) {
				if dir != "" {
					dirs = append(dirs, filepath.Join(dir, AppName))
				}
			}
		} else {
			dirs = append(dirs, filepath.Join("/etc", "xdg", AppName))
		}
	}

	return dirs
}

// NewConfigViper creates a Viper instance that searches the config
// directories and the current directory for config.yaml.
func NewConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range GetConfigDirs() {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	return v
}

// DefaultConfigFile returns the path config init writes to, creating its
// directory: $XDG_CONFIG_HOME/dockyard/config.yaml.
func DefaultConfigFile() (string, error) {
	configHome := getConfigHome()
	if configHome == "" {
		return "", errors.Configuration("locate config directory", "", os.ErrNotExist)
	}
	dir := filepath.Join(configHome, AppName)
	if err := os.MkdirAll(dir, DirPermReadWriteExec); err != nil {
		return "", errors.Wrap("create config directory", dir, err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// GetCacheDir returns, creating it if needed, a subdirectory of the
// dockyard cache directory.
func GetCacheDir(subdirectory string) (string, error) {
	cacheHome := getCacheHome()
	if cacheHome == "" {
		return "", errors.Configuration("locate cache directory", "", os.ErrNotExist)
	}

	dir := filepath.Join(cacheHome, AppName, subdirectory)
	if err := os.MkdirAll(dir, DirPermReadWriteExec); err != nil {
		return "", errors.Wrap("create cache directory", dir, err)
	}
	return dir, nil
}

// BuildDir returns the configured build output directory, falling back to
// the "build" cache subdirectory.
func (c *Config) BuildDir() (string, error) {
	if c.Build.Dir != "" {
		if err := os.MkdirAll(c.Build.Dir, DirPermReadWriteExec); err != nil {
			return "", errors.Wrap("create build directory", c.Build.Dir, err)
		}
		return c.Build.Dir, nil
	}
	return GetCacheDir("build")
}

// DockerConfigPath returns the registry config file location:
// auth.docker_config, then $DOCKER_CONFIG/config.json, then
// ~/.docker/config.json.
func (c *Config) DockerConfigPath() string {
	if c.Auth.DockerConfig != "" {
		return c.Auth.DockerConfig
	}
	if dir := os.Getenv("DOCKER_CONFIG"); dir != "" {
		return filepath.Join(dir, "config.json")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".docker", "config.json")
	}
	return ""
}
