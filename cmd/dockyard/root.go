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

// Package main implements the dockyard CLI: it builds container images from
// an image configuration file, pushes and pulls them, and rebuilds on change.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cowdogmoo/dockyard/config"
	"github.com/cowdogmoo/dockyard/logging"
)

// DefaultImageFile is the image configuration file read when --file is unset.
const DefaultImageFile = "dockyard.yaml"

var (
	// Root command options
	cfgFile   string
	imageFile string
)

var rootCmd = &cobra.Command{
	Use:   "dockyard",
	Short: "Dockyard - Container image build, push and watch tool",
	Long: `Dockyard packages a project's build output into container images.

It assembles a build context from the image configuration file, builds the
images through the container engine, pushes and pulls them with credentials
resolved from configuration, registry config files, credential helpers or
AWS ECR, and rebuilds when sources change.`,
	Version:           version,
	PersistentPreRunE: initConfig,
	SilenceUsage:      true,
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is $XDG_CONFIG_HOME/dockyard/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&imageFile, "file", "f", DefaultImageFile, "Image configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json, color)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Quiet mode - only show errors")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose mode - show debug output")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// configFromContext retrieves the config from the command context.
// Returns nil if no config is stored in context.
func configFromContext(cmd *cobra.Command) *config.Config {
	return config.FromContext(cmd.Context())
}

// loadConfig reads the config file named by --config, or searches the
// config directories. A missing file yields the defaults.
func loadConfig(ctx context.Context) (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromPath(cfgFile)
	}

	cfg, err := config.Load()
	if config.IsNotFoundError(err) {
		logging.DebugContext(ctx, "No config file found, using defaults")
		return cfg, nil
	}
	return cfg, err
}

// initConfig initializes configuration with proper precedence:
// CLI Flags > Environment Variables > Config File > Defaults
func initConfig(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Load global config (handles defaults, env vars, and config file)
	cfg, err := loadConfig(ctx)
	if err != nil {
		if cfgFile != "" {
			return err
		}
		logging.WarnContext(ctx, "failed to load config, using defaults: %v", err)
		cfg = config.Defaults()
	}

	// 2. Create a new Viper instance for flag binding, seeded with the
	// loaded values so that only flags set on the command line win
	v := viper.New()
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("build.no_cache", cfg.Build.NoCache)
	v.SetDefault("build.cleanup", cfg.Build.Cleanup)
	v.SetDefault("watch.interval", cfg.Watch.Interval)
	v.SetDefault("watch.mode", cfg.Watch.Mode)
	v.SetDefault("watch.detector", cfg.Watch.Detector)

	// 3. Bind environment variables
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind Cobra flags to Viper (this enables: flags > env > config > defaults)
	if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
		return fmt.Errorf("failed to bind log-level flag: %w", err)
	}
	if err := v.BindPFlag("log.format", cmd.Root().PersistentFlags().Lookup("log-format")); err != nil {
		return fmt.Errorf("failed to bind log-format flag: %w", err)
	}
	BindCommandFlagsToViper(ctx, v, cmd)

	// 5. Update config with final Viper values
	applyViperValues(v, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// 6. Initialize logging with final values
	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := logging.NewCustomLoggerWithOptions(cfg.Log.Level, cfg.Log.Format, quiet, verbose)

	// 7. Store the logger and the config in the context
	ctx = logging.WithLogger(ctx, logger)
	ctx = config.WithConfig(ctx, cfg)
	cmd.SetContext(ctx)

	return nil
}

// applyViperValues copies the keys a command line may override into cfg.
func applyViperValues(v *viper.Viper, cfg *config.Config) {
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Build.NoCache = v.GetBool("build.no_cache")
	cfg.Build.Cleanup = v.GetBool("build.cleanup")
	cfg.Watch.Interval = v.GetDuration("watch.interval")
	cfg.Watch.Mode = v.GetString("watch.mode")
	cfg.Watch.Detector = v.GetString("watch.detector")
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// BindFlagsToViper binds all flags from a command to a Viper instance.
// The viperKey parameter is the key prefix, e.g. "watch" for watch flags.
func BindFlagsToViper(ctx context.Context, v *viper.Viper, cmd *cobra.Command, viperKey string) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// "no-cache" -> "no_cache"
		key := strings.ReplaceAll(f.Name, "-", "_")
		if viperKey != "" {
			key = viperKey + "." + key
		}

		if err := v.BindPFlag(key, f); err != nil {
			logging.WarnContext(ctx, "failed to bind flag %s to viper: %v", f.Name, err)
		}
	})
}

// BindCommandFlagsToViper binds flags from the current command and its
// parent persistent flags to Viper.
func BindCommandFlagsToViper(ctx context.Context, v *viper.Viper, cmd *cobra.Command) {
	BindFlagsToViper(ctx, v, cmd, getCommandPath(cmd))

	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			logging.WarnContext(ctx, "failed to bind inherited flag %s to viper: %v", f.Name, err)
		}
	})
}

// getCommandPath returns the command path for Viper key namespacing.
// For example, "dockyard config set" returns "config.set".
func getCommandPath(cmd *cobra.Command) string {
	var parts []string
	current := cmd

	for current != nil && current.Parent() != nil {
		parts = append([]string{current.Name()}, parts...)
		current = current.Parent()
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ".")
}
