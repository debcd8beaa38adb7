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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/dockyard/auth"
	"github.com/cowdogmoo/dockyard/auth/awscreds"
	"github.com/cowdogmoo/dockyard/buildcontext"
	"github.com/cowdogmoo/dockyard/builder"
	"github.com/cowdogmoo/dockyard/config"
	"github.com/cowdogmoo/dockyard/engine"
	"github.com/cowdogmoo/dockyard/imageconfig"
	"github.com/cowdogmoo/dockyard/logging"
)

// session holds the collaborators shared by the engine-backed commands.
type session struct {
	cfg     *config.Config
	file    *imageconfig.File
	engine  *engine.Client
	service *builder.Service
}

// loadImages reads the image configuration file and selects images by
// name or alias; no keys selects every image.
func loadImages(path string, keys []string) (*imageconfig.File, []*imageconfig.ImageConfiguration, error) {
	file, err := imageconfig.Load(path)
	if err != nil {
		return nil, nil, err
	}
	images, err := file.Select(keys)
	if err != nil {
		return nil, nil, err
	}
	return file, images, nil
}

// newResolver wires the credential chain from the global configuration.
func newResolver(cfg *config.Config) (*auth.Resolver, error) {
	provider, err := awscreds.New(cfg.AWS.CredentialsProvider, awscreds.Options{
		Region:          cfg.AWS.Region,
		Profile:         cfg.AWS.Profile,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		SessionToken:    cfg.AWS.SessionToken,
	})
	if err != nil {
		return nil, err
	}
	return auth.NewResolverFromConfig(cfg, provider), nil
}

// openSession connects to the container engine, checks its API version
// and wires the build service.
func openSession(ctx context.Context, cfg *config.Config, file *imageconfig.File) (*session, error) {
	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}

	eng, err := engine.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	apiVersion, err := eng.CheckVersion(ctx, cfg.Engine.MinAPIVersion)
	if err != nil {
		_ = eng.Close()
		return nil, err
	}
	logging.DebugContext(ctx, "Connected to engine API %s", apiVersion)

	service := builder.NewService(cfg, eng, buildcontext.NewAssembler(), resolver)
	service.BaseDir = file.BaseDir

	return &session{
		cfg:     cfg,
		file:    file,
		engine:  eng,
		service: service,
	}, nil
}

// Close releases the engine connection.
func (s *session) Close(ctx context.Context) {
	if err := s.engine.Close(); err != nil {
		logging.WarnContext(ctx, "Failed to close engine client: %v", err)
	}
}

// requireConfig returns the config stored by initConfig.
func requireConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := configFromContext(cmd)
	if cfg == nil {
		return nil, fmt.Errorf("config not available in context")
	}
	return cfg, nil
}
