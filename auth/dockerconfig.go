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
	"net/url"
	"os"
	"strings"

	"github.com/docker/cli/cli/config/configfile"
	"github.com/docker/cli/cli/config/types"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/imagename"
)

// IndexServer is the key Docker Hub credentials are stored under.
const IndexServer = "https://index.docker.io/v1/"

// LoadDockerConfig reads the registry config file at path. A missing file
// yields an empty config.
func LoadDockerConfig(path string) (*configfile.ConfigFile, error) {
	cf := configfile.New(path)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cf, nil
	}
	if err != nil {
		return nil, errors.Credential("open registry config", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := cf.LoadFromReader(f); err != nil {
		return nil, errors.Credential("parse registry config", path, err)
	}
	return cf, nil
}

// normalizeHost strips scheme and path from a registry key and maps the
// Docker Hub aliases to docker.io.
func normalizeHost(key string) string {
	host := key
	if strings.Contains(key, "://") {
		if u, err := url.Parse(key); err == nil {
			host = u.Host
		}
	}
	host, _, _ = strings.Cut(host, "/")
	switch host {
	case "index.docker.io", "registry-1.docker.io", "registry.hub.docker.com", "":
		return imagename.DefaultRegistry
	}
	return strings.ToLower(host)
}

// serverURL is the name a credential helper knows a registry by.
func serverURL(host string) string {
	if normalizeHost(host) == imagename.DefaultRegistry {
		return IndexServer
	}
	return host
}

// helperFor returns the helper configured for host: a credHelpers entry
// first, then the global credsStore.
func helperFor(cf *configfile.ConfigFile, host string) string {
	for key, helper := range cf.CredentialHelpers {
		if normalizeHost(key) == normalizeHost(host) {
			return helper
		}
	}
	return cf.CredentialsStore
}

// inlineAuth returns the auths entry for host.
func inlineAuth(cf *configfile.ConfigFile, host string) (types.AuthConfig, bool) {
	if ac, ok := cf.AuthConfigs[host]; ok {
		return ac, true
	}
	want := normalizeHost(host)
	for key, ac := range cf.AuthConfigs {
		if normalizeHost(key) == want {
			return ac, true
		}
	}
	return types.AuthConfig{}, false
}
