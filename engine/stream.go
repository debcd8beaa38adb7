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

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	cerrdefs "github.com/containerd/errdefs"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/cowdogmoo/dockyard/errors"
	"github.com/cowdogmoo/dockyard/logging"
)

// StreamError is an error message embedded in an engine stream. Builds,
// pushes and pulls answer 200 and report failures in-band.
type StreamError struct {
	Code    int
	Message string
}

func (e *StreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return e.Message
}

// statusPattern finds an HTTP status reported by the registry inside a
// stream message, e.g. "received unexpected HTTP status: 503 Service Unavailable".
var statusPattern = regexp.MustCompile(`\b([1-5]\d\d) [A-Z][A-Za-z ]+`)

// Status returns the HTTP status carried by the message, or 0.
func (e *StreamError) Status() int {
	if e.Code >= 100 {
		return e.Code
	}
	if m := statusPattern.FindStringSubmatch(e.Message); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

var transientMessages = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"TLS handshake timeout",
	"unexpected EOF",
	"use of closed network connection",
}

// readStream decodes a JSON message stream, reporting each message to
// progress. onAux receives auxiliary payloads such as the built image id.
func readStream(r io.Reader, progress *logging.Progress, onAux func(json.RawMessage)) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to decode engine stream: %w", err)
		}

		if msg.Error != nil {
			return &StreamError{Code: msg.Error.Code, Message: msg.Error.Message}
		}
		if msg.ErrorMessage != "" {
			return &StreamError{Message: msg.ErrorMessage}
		}
		if msg.Aux != nil && onAux != nil {
			onAux(*msg.Aux)
		}

		if s := strings.TrimSpace(msg.Stream); s != "" {
			progress.Update("", s, "")
		}
		detail := ""
		if msg.Progress != nil {
			detail = msg.Progress.String()
		}
		progress.Update(msg.ID, msg.Status, detail)
	}
}

// Retryable reports whether err is worth another attempt: the engine or
// registry answered 5xx or was unreachable, or the transfer broke off.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if cerrdefs.IsUnavailable(err) || cerrdefs.IsInternal(err) || dockerclient.IsErrConnectionFailed(err) {
		return true
	}

	var se *StreamError
	if errors.As(err, &se) {
		if status := se.Status(); status >= 500 {
			return true
		}
		return transient(se.Message)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return transient(err.Error())
}

func transient(msg string) bool {
	for _, t := range transientMessages {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

// withRetries runs op up to retries+1 times while it fails retryably.
// There is no backoff between attempts.
func withRetries(ctx context.Context, action, ref, registry string, retries int, op func() error) error {
	if retries < 0 {
		retries = 0
	}
	attempts := retries + 1

	var last error
	for i := 1; i <= attempts; i++ {
		last = op()
		if last == nil {
			return nil
		}
		if !Retryable(last) || i == attempts {
			break
		}
		logging.WarnContext(ctx, "%s of %s failed (attempt %d/%d): %v", action, ref, i, attempts, last)
	}

	return errors.RegistryProtocol(action+" image", ref+" at "+registry, last)
}
