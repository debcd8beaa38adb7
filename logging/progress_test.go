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

package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cowdogmoo/dockyard/logging"
)

func TestProgress(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.NewCustomLogger(slog.LevelDebug)
	logger.ConsoleWriter = &buf
	ctx := logging.WithLogger(context.Background(), logger)

	p := logging.NewProgress(ctx, "push quay.io/app:1")
	p.Update("", "The push refers to repository [quay.io/app]", "")
	p.Update("abc", "Preparing", "")
	p.Update("def", "Preparing", "")
	p.Update("abc", "Pushing", "[==>   ] 1MB/4MB")
	p.Update("abc", "Pushing", "[====> ] 3MB/4MB")
	p.Update("abc", "Pushed", "")
	p.Update("def", "Layer already exists", "")
	p.Update("ghi", "", "")
	p.Done()

	assert.Equal(t, []string{"abc", "def"}, p.Layers())
	assert.Equal(t, "Pushed", p.Status("abc"))
	assert.Equal(t, "Layer already exists", p.Status("def"))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "abc Pushing"), "repeated status is logged once")
	assert.Contains(t, out, "The push refers to repository")
	assert.Contains(t, out, "2 layers: Layer already exists=1, Pushed=1")
}

func TestProgress_Nil(t *testing.T) {
	t.Parallel()

	var p *logging.Progress
	assert.NotPanics(t, func() {
		p.Update("abc", "Pushing", "")
		p.Done()
	})
	assert.Empty(t, p.Layers())
	assert.Empty(t, p.Status("abc"))
}
