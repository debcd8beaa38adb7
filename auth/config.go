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

// Package auth resolves registry credentials. Sources are tried in order:
// explicit settings, configured server credentials, the registry config
// file with its credential helpers, and the ECR token exchange.
package auth

import (
	"encoding/base64"
	"fmt"

	"github.com/docker/docker/api/types/registry"

	"github.com/cowdogmoo/dockyard/errors"
)

// Config is a resolved registry credential. It is built fresh for each
// push or pull and never stored.
type Config struct {
	username      string
	password      string
	email         string
	identityToken string
	serverAddress string
	source        string
}

// NewConfig returns a username and password credential for server.
func NewConfig(username, password, email, server string) *Config {
	return &Config{username: username, password: password, email: email, serverAddress: server}
}

// NewIdentityTokenConfig returns a token credential for server.
func NewIdentityTokenConfig(token, server string) *Config {
	return &Config{identityToken: token, serverAddress: server}
}

func (c *Config) withSource(source string) *Config {
	cp := *c
	cp.source = source
	return &cp
}

// Username returns the user name.
func (c *Config) Username() string { return c.username }

// Password returns the password.
func (c *Config) Password() string { return c.password }

// Email returns the email, if any.
func (c *Config) Email() string { return c.email }

// IdentityToken returns the identity token, if any.
func (c *Config) IdentityToken() string { return c.identityToken }

// ServerAddress returns the registry the credential belongs to.
func (c *Config) ServerAddress() string { return c.serverAddress }

// Source names where the credential came from.
func (c *Config) Source() string { return c.source }

// Auth returns the base64 user:password blob.
func (c *Config) Auth() string {
	if c.username == "" && c.password == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
}

// WithServerAddress returns a copy bound to server.
func (c *Config) WithServerAddress(server string) *Config {
	cp := *c
	cp.serverAddress = server
	return &cp
}

// Encode returns the X-Registry-Auth header value. A nil config encodes
// anonymous access.
func (c *Config) Encode() (string, error) {
	if c == nil {
		return "", nil
	}
	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      c.username,
		Password:      c.password,
		Auth:          c.Auth(),
		Email:         c.email,
		ServerAddress: c.serverAddress,
		IdentityToken: c.identityToken,
	})
	if err != nil {
		return "", errors.Credential("encode registry auth", c.serverAddress, err)
	}
	return encoded, nil
}

// String describes the credential without secrets.
func (c *Config) String() string {
	if c == nil {
		return "anonymous"
	}
	if c.identityToken != "" {
		return fmt.Sprintf("identity token for %s", c.serverAddress)
	}
	return fmt.Sprintf("%s@%s", c.username, c.serverAddress)
}
