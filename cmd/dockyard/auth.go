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

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/dockyard/auth"
	"github.com/cowdogmoo/dockyard/imagename"
)

var authCmd = &cobra.Command{
	Use:   "auth [REGISTRY]",
	Short: "Show which credential would be used for a registry",
	Long: `Run the credential chain for a registry and print the result without
secrets: configured credentials, server settings, the registry config file,
credential helpers and, for ECR hosts, the AWS token exchange.

Without REGISTRY, registry.default or the default registry is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuth,
}

var (
	authPush     bool
	authRequired bool
)

func init() {
	authCmd.Flags().BoolVar(&authPush, "push", false, "Resolve push credentials instead of pull credentials")
	authCmd.Flags().BoolVar(&authRequired, "required", false, "Fail when no credential is found")
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := requireConfig(cmd)
	if err != nil {
		return err
	}

	registry := cfg.Registry.Default
	if len(args) == 1 {
		registry = args[0]
	}
	if registry != "" {
		if err := imagename.ValidateRegistry(registry); err != nil {
			return err
		}
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}

	mode := auth.ModePull
	if authPush {
		mode = auth.ModePush
	}
	creds, err := resolver.Resolve(ctx, mode, auth.RegistryConfig{
		Registry: registry,
		Settings: auth.Settings{Credentials: auth.Credentials{
			Username: cfg.Registry.Username,
			Password: cfg.Registry.Password,
		}},
		SkipExtendedAuth: cfg.Registry.SkipExtendedAuth,
		Required:         authRequired,
	})
	if err != nil {
		return err
	}

	if creds != nil && creds.Source() != "" {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, from %s)\n", creds, mode, creds.Source())
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", creds, mode)
	return err
}
