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

// Package awscreds supplies local AWS credentials for the registry
// credential exchange. Two strategies exist: "sdk" delegates to the AWS SDK
// default chain, "builtin" walks explicit keys, the environment, the
// container credentials endpoint and the shared credentials file.
package awscreds

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/endpointcreds"
	"gopkg.in/ini.v1"

	"github.com/cowdogmoo/dockyard/errors"
)

// Strategy names.
const (
	StrategySDK     = "sdk"
	StrategyBuiltin = "builtin"
)

// DefaultECSEndpoint is the container credentials host used when
// ECS_METADATA_ENDPOINT is unset.
const DefaultECSEndpoint = "http://169.254.170.2"

// ErrNoCredentials is returned by a chain link that has nothing to offer.
var ErrNoCredentials = stderrors.New("no AWS credentials found")

// Options configures the providers.
type Options struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Getenv reads the environment; os.Getenv when nil.
	Getenv func(string) string
	// HomeDir locates ~/.aws/credentials; the user's home when empty.
	HomeDir    string
	HTTPClient *http.Client
}

func (o Options) getenv(key string) string {
	if o.Getenv != nil {
		return o.Getenv(key)
	}
	return os.Getenv(key)
}

// New returns the provider for strategy.
func New(strategy string, opts Options) (aws.CredentialsProvider, error) {
	switch strategy {
	case "", StrategySDK:
		return &SDKProvider{opts: opts}, nil
	case StrategyBuiltin:
		return Builtin(opts), nil
	default:
		return nil, errors.Configuration("select AWS credentials provider", strategy,
			fmt.Errorf("expected %s or %s", StrategySDK, StrategyBuiltin))
	}
}

// SDKProvider resolves credentials through the AWS SDK default chain, with
// explicit keys taking precedence.
type SDKProvider struct {
	opts Options
}

// Retrieve implements aws.CredentialsProvider.
func (p *SDKProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if p.opts.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(p.opts.Region))
	}
	if p.opts.Profile != "" {
		optFns = append(optFns, awsconfig.WithSharedConfigProfile(p.opts.Profile))
	}
	if p.opts.AccessKeyID != "" && p.opts.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			p.opts.AccessKeyID, p.opts.SecretAccessKey, p.opts.SessionToken)))
	}
	if p.opts.HTTPClient != nil {
		optFns = append(optFns, awsconfig.WithHTTPClient(p.opts.HTTPClient))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Credentials{}, errors.Credential("load AWS config", p.opts.Profile, err)
	}
	if cfg.Credentials == nil {
		return aws.Credentials{}, errors.Credential("retrieve AWS credentials", "sdk", ErrNoCredentials)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, errors.Credential("retrieve AWS credentials", "sdk", err)
	}
	return creds, nil
}

// Chain tries providers in order. A provider failing with
// ErrNoCredentials passes to the next one; any other error stops the chain.
type Chain []aws.CredentialsProvider

// Retrieve implements aws.CredentialsProvider.
func (c Chain) Retrieve(ctx context.Context) (aws.Credentials, error) {
	for _, p := range c {
		creds, err := p.Retrieve(ctx)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		if err != nil {
			return aws.Credentials{}, err
		}
		return creds, nil
	}
	return aws.Credentials{}, errors.Credential("retrieve AWS credentials", "builtin chain", ErrNoCredentials)
}

// Builtin returns the chain explicit keys, environment, container
// credentials endpoint, shared credentials file.
func Builtin(opts Options) Chain {
	return Chain{
		providerFunc(func(context.Context) (aws.Credentials, error) {
			return static(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken, "explicit")
		}),
		providerFunc(func(context.Context) (aws.Credentials, error) {
			return static(
				firstEnv(opts, "AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY"),
				firstEnv(opts, "AWS_SECRET_ACCESS_KEY", "AWS_SECRET_KEY"),
				opts.getenv("AWS_SESSION_TOKEN"),
				"environment")
		}),
		providerFunc(func(ctx context.Context) (aws.Credentials, error) {
			return containerCredentials(ctx, opts)
		}),
		providerFunc(func(context.Context) (aws.Credentials, error) {
			return sharedCredentials(opts)
		}),
	}
}

type providerFunc func(context.Context) (aws.Credentials, error)

func (f providerFunc) Retrieve(ctx context.Context) (aws.Credentials, error) { return f(ctx) }

func firstEnv(opts Options, keys ...string) string {
	for _, k := range keys {
		if v := opts.getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func static(id, secret, token, source string) (aws.Credentials, error) {
	if id == "" || secret == "" {
		return aws.Credentials{}, ErrNoCredentials
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    token,
		Source:          source,
	}, nil
}

// containerCredentials queries the ECS container credentials endpoint when
// AWS_CONTAINER_CREDENTIALS_RELATIVE_URI is set.
func containerCredentials(ctx context.Context, opts Options) (aws.Credentials, error) {
	relative := opts.getenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI")
	if relative == "" {
		return aws.Credentials{}, ErrNoCredentials
	}
	base := opts.getenv("ECS_METADATA_ENDPOINT")
	if base == "" {
		base = DefaultECSEndpoint
	}
	endpoint := strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(relative, "/")

	provider := endpointcreds.New(endpoint, func(o *endpointcreds.Options) {
		if opts.HTTPClient != nil {
			o.HTTPClient = opts.HTTPClient
		}
	})
	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, errors.Credential("retrieve container credentials", endpoint, err)
	}
	creds.Source = "container"
	return creds, nil
}

// sharedCredentials reads the profile from the shared credentials file.
func sharedCredentials(opts Options) (aws.Credentials, error) {
	path := opts.getenv("AWS_SHARED_CREDENTIALS_FILE")
	if path == "" {
		home := opts.HomeDir
		if home == "" {
			var err error
			if home, err = os.UserHomeDir(); err != nil {
				return aws.Credentials{}, ErrNoCredentials
			}
		}
		path = filepath.Join(home, ".aws", "credentials")
	}
	if _, err := os.Stat(path); err != nil {
		return aws.Credentials{}, ErrNoCredentials
	}

	file, err := ini.Load(path)
	if err != nil {
		return aws.Credentials{}, errors.Credential("read shared credentials", path, err)
	}

	profile := opts.Profile
	if profile == "" {
		profile = firstEnv(opts, "AWS_PROFILE", "AWS_DEFAULT_PROFILE")
	}
	if profile == "" {
		profile = "default"
	}
	section, err := file.GetSection(profile)
	if err != nil {
		return aws.Credentials{}, ErrNoCredentials
	}
	return static(
		section.Key("aws_access_key_id").String(),
		section.Key("aws_secret_access_key").String(),
		section.Key("aws_session_token").String(),
		"shared credentials file")
}
