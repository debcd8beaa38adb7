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

// Package ecr exchanges AWS credentials for an ECR registry login through
// a SigV4 signed GetAuthorizationToken call.
package ecr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/cowdogmoo/dockyard/auth/sigv4"
	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/logging"
)

const (
	// Username is the registry user of every ECR token.
	Username = "AWS"

	serviceName = "ecr"
	target      = "AmazonEC2ContainerRegistry_V20150921.GetAuthorizationToken"
	contentType = "application/x-amz-json-1.1"
)

var hostPattern = regexp.MustCompile(`^(\d{12})\.dkr\.ecr(-fips)?\.([a-z0-9-]+)\.amazonaws\.com(\.cn)?$`)

// Registry identifies an ECR registry host.
type Registry struct {
	Host      string
	AccountID string
	Region    string
	FIPS      bool
	China     bool
}

// ParseHost recognizes <account>.dkr.ecr.<region>.amazonaws.com hosts.
func ParseHost(host string) (Registry, bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "/"))
	m := hostPattern.FindStringSubmatch(host)
	if m == nil {
		return Registry{}, false
	}
	return Registry{
		Host:      host,
		AccountID: m[1],
		FIPS:      m[2] != "",
		Region:    m[3],
		China:     m[4] != "",
	}, true
}

// IsECRHost reports whether host is an ECR registry.
func IsECRHost(host string) bool {
	_, ok := ParseHost(host)
	return ok
}

// Endpoint returns the regional ECR API endpoint for r.
func (r Registry) Endpoint() string {
	suffix := "amazonaws.com"
	if r.China {
		suffix = "amazonaws.com.cn"
	}
	api := "api.ecr"
	if r.FIPS {
		api = "ecr-fips"
	}
	return fmt.Sprintf("https://%s.%s.%s/", api, r.Region, suffix)
}

// Client performs the authorization token exchange.
type Client struct {
	HTTPClient *http.Client
	// Endpoint overrides the regional API endpoint.
	Endpoint string
	Now      func() time.Time
}

// NewClient returns a client using httpClient, or http.DefaultClient.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTPClient: httpClient}
}

type tokenRequest struct {
	RegistryIDs []string `json:"registryIds"`
}

type authorizationData struct {
	AuthorizationToken string  `json:"authorizationToken"`
	ExpiresAt          float64 `json:"expiresAt"`
	ProxyEndpoint      string  `json:"proxyEndpoint"`
}

type tokenResponse struct {
	AuthorizationData []authorizationData `json:"authorizationData"`
}

type errorResponse struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// Token is a registry login obtained from ECR.
type Token struct {
	Username  string
	Password  string
	ExpiresAt time.Time
	Endpoint  string
}

// GetAuthorizationToken signs and sends the exchange for reg with creds
// and decodes the returned user:password token.
func (c *Client) GetAuthorizationToken(ctx context.Context, reg Registry, creds aws.Credentials) (*Token, error) {
	body, err := json.Marshal(tokenRequest{RegistryIDs: []string{reg.AccountID}})
	if err != nil {
		return nil, errors.Wrap("encode token request", reg.Host, err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = reg.Endpoint()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap("create token request", endpoint, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Amz-Target", target)

	signer := sigv4.New(reg.Region, serviceName)
	signer.Now = c.Now
	if _, err := signer.Sign(req, body, creds); err != nil {
		return nil, err
	}

	logging.DebugContext(ctx, "Requesting ECR authorization token for %s from %s", reg.Host, endpoint)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Credential("request ECR authorization token", reg.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Credential("read ECR authorization token", reg.Host, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Credential("request ECR authorization token", reg.Host, responseError(resp.StatusCode, data))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Credential("decode ECR authorization token", reg.Host, err)
	}
	if len(parsed.AuthorizationData) == 0 {
		return nil, errors.Credential("decode ECR authorization token", reg.Host, fmt.Errorf("empty authorizationData"))
	}
	return decodeToken(parsed.AuthorizationData[0], reg.Host)
}

func decodeToken(d authorizationData, host string) (*Token, error) {
	raw, err := base64.StdEncoding.DecodeString(d.AuthorizationToken)
	if err != nil {
		return nil, errors.Credential("decode ECR authorization token", host, err)
	}
	user, password, ok := strings.Cut(string(raw), ":")
	if !ok || password == "" {
		return nil, errors.Credential("decode ECR authorization token", host, fmt.Errorf("token is not user:password"))
	}
	if user != Username {
		return nil, errors.Credential("decode ECR authorization token", host, fmt.Errorf("unexpected user %q", user))
	}

	token := &Token{Username: user, Password: password, Endpoint: d.ProxyEndpoint}
	if d.ExpiresAt > 0 {
		sec := int64(d.ExpiresAt)
		token.ExpiresAt = time.Unix(sec, int64((d.ExpiresAt-float64(sec))*1e9)).UTC()
	}
	return token, nil
}

func responseError(status int, body []byte) error {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && (e.Message != "" || e.Type != "") {
		return fmt.Errorf("status %d: %s: %s", status, e.Type, e.Message)
	}
	return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
}
