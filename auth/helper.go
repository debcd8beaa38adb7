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

	"github.com/docker/docker-credential-helpers/client"
	"github.com/docker/docker-credential-helpers/credentials"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/logging"
)

// HelperRunner asks an external credential helper for the credentials of
// a registry. It returns (nil, nil) when the helper has none.
type HelperRunner interface {
	Get(ctx context.Context, helper, serverURL string) (*credentials.Credentials, error)
}

// ProgramRunner runs <Prefix>-<helper> get.
type ProgramRunner struct {
	Prefix string
}

// NewProgramRunner returns a runner for helpers named <prefix>-<helper>.
func NewProgramRunner(prefix string) *ProgramRunner {
	if prefix == "" {
		prefix = "docker-credential"
	}
	return &ProgramRunner{Prefix: prefix}
}

// Get implements HelperRunner. The helper process runs to completion.
func (r *ProgramRunner) Get(ctx context.Context, helper, serverURL string) (*credentials.Credentials, error) {
	program := r.Prefix + "-" + helper
	logging.DebugContext(ctx, "Running %s get for %s", program, serverURL)

	creds, err := client.Get(client.NewShellProgramFunc(program), serverURL)
	if credentials.IsErrCredentialsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Credential("run credential helper", program, err)
	}
	return creds, nil
}
