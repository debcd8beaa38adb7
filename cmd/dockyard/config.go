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

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/dockyard/cli"
	"github.com/cowdogmoo/dockyard/config"
	"github.com/cowdogmoo/dockyard/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage dockyard configuration",
	Long: `Manage dockyard's global configuration file.

The configuration file stores the engine endpoint, registry defaults,
credential sources, AWS settings and watch behavior.

Configuration precedence (highest to lowest):
1. CLI flags
2. Environment variables (DOCKYARD_*)
3. Configuration file ($XDG_CONFIG_HOME/dockyard/config.yaml)
4. Built-in defaults`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long: `Create a new configuration file with default values.

If the file already exists, it will be overwritten only with --force.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration after merging defaults, the
configuration file, environment variables and CLI flags. Passwords are
redacted.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Examples:
  dockyard config set registry.default quay.io
  dockyard config set watch.detector notify
  dockyard config set aws.region us-west-2

Use dot notation to set nested values.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value.

Examples:
  dockyard config get registry.pull_policy
  dockyard config get watch.interval`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configForce bool

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	configPath, err := config.DefaultConfigFile()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
		logging.WarnContext(ctx, "Overwriting existing config file at %s", configPath)
	}

	data, err := yaml.Marshal(config.Defaults())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, config.FilePermPrivate); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	logging.InfoContext(ctx, "Configuration file created at: %s", configPath)
	logging.InfoContext(ctx, "Edit this file to customize your dockyard settings")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig(cmd)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(redactedConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# Current Dockyard Configuration")
	fmt.Fprintln(out, "# Sources: defaults -> config file -> environment variables -> CLI flags")
	fmt.Fprintln(out)
	fmt.Fprint(out, string(data))

	v := config.NewConfigViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintf(out, "\n# Config file: %s\n", v.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "\n# No config file found (using defaults)")
	}
	return nil
}

// redactedConfig returns a copy of cfg with passwords masked.
func redactedConfig(cfg *config.Config) *config.Config {
	out := *cfg
	out.Registry.Password = logging.RedactSensitiveValue("password", cfg.Registry.Password)
	out.Auth.Servers = make([]config.ServerConfig, len(cfg.Auth.Servers))
	for i, server := range cfg.Auth.Servers {
		server.Password = logging.RedactSensitiveValue("password", server.Password)
		out.Auth.Servers[i] = server
	}
	return &out
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	v := config.NewConfigViper()
	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), v.ConfigFileUsed())
		return nil
	}

	defaultPath, err := config.DefaultConfigFile()
	if err != nil {
		return fmt.Errorf("failed to get default config path: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (not created yet)\n", defaultPath)
	logging.InfoContext(cmd.Context(), "Run 'dockyard config init' to create the config file")
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := cli.NewValidator().ValidateConfigSetOptions(key, value); err != nil {
		return err
	}

	ctx := cmd.Context()
	v := config.NewConfigViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	configPath := ""
	if err := v.ReadInConfig(); err != nil {
		if !config.IsNotFoundError(err) && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		logging.WarnContext(ctx, "Config file doesn't exist. Creating it now...")
		if err := runConfigInit(cmd, nil); err != nil {
			return err
		}
		if configPath, err = config.DefaultConfigFile(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read newly created config: %w", err)
		}
	} else {
		configPath = v.ConfigFileUsed()
	}

	v.Set(key, value)
	if err := validateViper(v); err != nil {
		return err
	}
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logging.InfoContext(ctx, "Set %s = %s", key, logging.RedactSensitiveValue(key, value))
	logging.InfoContext(ctx, "Config file updated: %s", configPath)
	return nil
}

// validateViper decodes v over the defaults and validates the result, so
// that config set never writes a file Load would reject.
func validateViper(v *viper.Viper) error {
	check := viper.New()
	config.ApplyDefaults(check)
	if err := check.MergeConfigMap(v.AllSettings()); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	var cfg config.Config
	if err := check.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg.Validate()
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	cfg, err := requireConfig(cmd)
	if err != nil {
		return err
	}

	// Round-trip through YAML so that viper resolves dotted keys
	data, err := yaml.Marshal(redactedConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	value := v.Get(key)
	if value == nil {
		return fmt.Errorf("key not found: %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}
