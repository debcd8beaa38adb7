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

package auth

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/cowdogmoo/dockyard/auth/ecr"
	"github.com/cowdogmoo/dockyard/config"
	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imagename"
	"github.com/cowdogmoo/dockyard/logging"
)

// Mode selects push or pull specific settings.
type Mode int

// Resolution modes.
const (
	ModePull Mode = iota
	ModePush
)

func (m Mode) String() string {
	if m == ModePush {
		return "push"
	}
	return "pull"
}

// Credentials is a username and password pair from configuration.
type Credentials struct {
	Username string
	Password string
	Email    string
}

// Settings are explicit credentials with optional push and pull
// overrides.
type Settings struct {
	Credentials
	Push *Credentials
	Pull *Credentials
}

// RegistryConfig describes what to resolve credentials for.
type RegistryConfig struct {
	// Registry is the registry host; empty means the default registry.
	Registry string
	Settings Settings
	// SkipExtendedAuth disables the ECR token exchange.
	SkipExtendedAuth bool
	// Required turns "no credentials" into an error.
	Required bool
	// Decrypt turns a configured password into clear text; passwords are
	// used as is when nil.
	Decrypt func(string) (string, error)
}

// ECRExchanger trades AWS credentials for an ECR login.
type ECRExchanger interface {
	GetAuthorizationToken(ctx context.Context, reg ecr.Registry, creds aws.Credentials) (*ecr.Token, error)
}

// Options wires a Resolver.
type Options struct {
	// Servers are the credentials configured per registry id.
	Servers []config.ServerConfig
	// DockerConfig is the registry config file path.
	DockerConfig string
	Helper       HelperRunner
	// AWS supplies IAM credentials for ECR hosts when no configured
	// credential applies.
	AWS aws.CredentialsProvider
	ECR ECRExchanger
}

// Resolver runs the credential chain.
type Resolver struct {
	opts Options
}

// NewResolver returns a resolver. Missing collaborators get defaults: the
// docker-credential helper runner and the ECR HTTP client.
func NewResolver(opts Options) *Resolver {
	if opts.Helper == nil {
		opts.Helper = NewProgramRunner("")
	}
	if opts.ECR == nil {
		opts.ECR = ecr.NewClient(nil)
	}
	return &Resolver{opts: opts}
}

// NewResolverFromConfig wires a resolver from the global configuration.
func NewResolverFromConfig(cfg *config.Config, awsProvider aws.CredentialsProvider) *Resolver {
	return NewResolver(Options{
		Servers:      cfg.Auth.Servers,
		DockerConfig: cfg.DockerConfigPath(),
		Helper:       NewProgramRunner(cfg.Auth.HelperPrefix),
		AWS:          awsProvider,
	})
}

// Resolve returns the credential for rc, or nil for anonymous access.
func (r *Resolver) Resolve(ctx context.Context, mode Mode, rc RegistryConfig) (*Config, error) {
	host := rc.Registry
	if host == "" {
		host = imagename.DefaultRegistry
	}

	found, err := r.configured(ctx, mode, rc, host)
	if err != nil {
		return nil, err
	}

	if reg, ok := ecr.ParseHost(host); ok && !rc.SkipExtendedAuth {
		if found != nil && found.source == sourceHelper {
			return found, nil
		}
		return r.extendedAuth(ctx, reg, found)
	}

	if found == nil && rc.Required {
		return nil, errors.Credential("resolve credentials", host,
			fmt.Errorf("no %s credentials configured", mode))
	}
	if found == nil {
		logging.DebugContext(ctx, "No credentials for %s, using anonymous access", host)
		return nil, nil
	}
	logging.DebugContext(ctx, "Using %s credentials from %s for %s", mode, found.source, host)
	return found, nil
}

const (
	sourceSettings = "settings"
	sourceServer   = "server settings"
	sourceHelper   = "credential helper"
	sourceFile     = "registry config file"
	sourceECR      = "ecr"
)

// configured runs the chain up to, not including, the ECR exchange.
func (r *Resolver) configured(ctx context.Context, mode Mode, rc RegistryConfig, host string) (*Config, error) {
	explicit := rc.Settings.Credentials
	override := rc.Settings.Pull
	if mode == ModePush {
		override = rc.Settings.Push
	}
	if override != nil && override.Username != "" {
		explicit = *override
	}
	if explicit.Username != "" {
		password, err := decrypt(rc, explicit.Password, host)
		if err != nil {
			return nil, err
		}
		return NewConfig(explicit.Username, password, explicit.Email, host).withSource(sourceSettings), nil
	}

	for _, server := range r.opts.Servers {
		if server.ID != rc.Registry && normalizeHost(server.ID) != normalizeHost(host) {
			continue
		}
		password, err := decrypt(rc, server.Password, host)
		if err != nil {
			return nil, err
		}
		return NewConfig(server.Username, password, server.Email, host).withSource(sourceServer), nil
	}

	return r.fromDockerConfig(ctx, host)
}

func decrypt(rc RegistryConfig, password, host string) (string, error) {
	if rc.Decrypt == nil || password == "" {
		return password, nil
	}
	plain, err := rc.Decrypt(password)
	if err != nil {
		return "", errors.Credential("decrypt password", host, err)
	}
	return plain, nil
}

// fromDockerConfig consults the registry config file: a configured helper
// first, then the inline auths entry.
func (r *Resolver) fromDockerConfig(ctx context.Context, host string) (*Config, error) {
	if r.opts.DockerConfig == "" {
		return nil, nil
	}
	cf, err := LoadDockerConfig(r.opts.DockerConfig)
	if err != nil {
		return nil, err
	}

	if helper := helperFor(cf, host); helper != "" {
		creds, err := r.opts.Helper.Get(ctx, helper, serverURL(host))
		if err != nil {
			return nil, err
		}
		if creds != nil {
			if creds.Username == "<token>" {
				return NewIdentityTokenConfig(creds.Secret, host).withSource(sourceHelper), nil
			}
			return NewConfig(creds.Username, creds.Secret, "", host).withSource(sourceHelper), nil
		}
		logging.DebugContext(ctx, "Credential helper %s has no credentials for %s", helper, host)
	}

	ac, ok := inlineAuth(cf, host)
	if !ok {
		return nil, nil
	}
	if ac.IdentityToken != "" {
		return NewIdentityTokenConfig(ac.IdentityToken, host).withSource(sourceFile), nil
	}
	if ac.Username == "" && ac.Password == "" {
		return nil, nil
	}
	return NewConfig(ac.Username, ac.Password, "", host).withSource(sourceFile), nil
}

// extendedAuth exchanges IAM credentials for an ECR login. Configured
// credentials are taken as IAM keys unless they already are an ECR login.
func (r *Resolver) extendedAuth(ctx context.Context, reg ecr.Registry, found *Config) (*Config, error) {
	if found != nil && found.username == ecr.Username {
		return found, nil
	}

	var creds aws.Credentials
	switch {
	case found != nil && found.username != "" && found.password != "":
		creds = aws.Credentials{AccessKeyID: found.username, SecretAccessKey: found.password, Source: found.source}
	case r.opts.AWS != nil:
		var err error
		if creds, err = r.opts.AWS.Retrieve(ctx); err != nil {
			return nil, errors.Credential("retrieve AWS credentials", reg.Host, err)
		}
	default:
		return nil, errors.Credential("resolve ECR credentials", reg.Host, fmt.Errorf("no AWS credentials available"))
	}

	logging.DebugContext(ctx, "Exchanging AWS credentials (%s) for an ECR token for %s", creds.Source, reg.Host)
	token, err := r.opts.ECR.GetAuthorizationToken(ctx, reg, creds)
	if err != nil {
		return nil, err
	}
	return NewConfig(token.Username, token.Password, "", reg.Host).withSource(sourceECR), nil
}
