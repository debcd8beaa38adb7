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

package imagename

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/dockyard/errors"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  string
		want Name
	}{
		{name: "bare repository", ref: "app", want: Name{Repository: "app"}},
		{name: "repository with tag", ref: "word:tag", want: Name{Repository: "word", Tag: "tag"}},
		{name: "org path without registry", ref: "org/app:1.0", want: Name{Repository: "org/app", Tag: "1.0"}},
		{name: "dotted registry", ref: "word.word/word:tag", want: Name{Registry: "word.word", Repository: "word", Tag: "tag"}},
		{name: "registry with port", ref: "localhost:5000/team/app", want: Name{Registry: "localhost:5000", Repository: "team/app"}},
		{name: "plain localhost", ref: "localhost/app:dev", want: Name{Registry: "localhost", Repository: "app", Tag: "dev"}},
		{
			name: "ecr with digest",
			ref:  "012345678901.dkr.ecr.us-east-1.amazonaws.com/app@sha256:" + digestHex,
			want: Name{Registry: "012345678901.dkr.ecr.us-east-1.amazonaws.com", Repository: "app", Digest: "sha256:" + digestHex},
		},
		{
			name: "tag and digest",
			ref:  "quay.io/org/app:1@sha256:" + digestHex,
			want: Name{Registry: "quay.io", Repository: "org/app", Tag: "1", Digest: "sha256:" + digestHex},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ref, got.String())
		})
	}
}

const digestHex = "4c2d5e4d3c0b6a1a8b8d6e5f0f0e1d2c3b4a59687766554433221100ffeeddcc"

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	for _, ref := range []string{"", "   ", "UPPER/case", "quay.io/", "app:bad tag", "app@notadigest"} {
		t.Run(ref, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(ref)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindConfiguration))
		})
	}
}

func TestName_Accessors(t *testing.T) {
	t.Parallel()

	n := MustParse("org/app")
	assert.False(t, n.HasRegistry())
	assert.Equal(t, DefaultRegistry, n.RegistryOrDefault())
	assert.Equal(t, "latest", n.TagOrLatest())
	assert.Equal(t, "org/app:latest", n.FullName())
	assert.Equal(t, "app", n.SimpleName())

	q := n.WithRegistry("quay.io/")
	assert.True(t, q.HasRegistry())
	assert.Equal(t, "quay.io/org/app", q.String())

	again := q.WithRegistry("ghcr.io")
	assert.Equal(t, "quay.io/org/app", again.String(), "embedded registry wins")

	tagged := q.WithTag("2.0")
	assert.Equal(t, "quay.io/org/app:2.0", tagged.String())
	assert.Equal(t, "quay.io/org/app", tagged.NameWithoutTag())

	pinned := MustParse("app@sha256:" + digestHex)
	assert.Empty(t, pinned.TagOrLatest())
	assert.Equal(t, pinned.String(), pinned.FullName())
}

func TestQualify(t *testing.T) {
	t.Parallel()

	n, err := Qualify("word:tag", "quay.io")
	require.NoError(t, err)
	assert.Equal(t, "quay.io/word:tag", n.String())

	n, err = Qualify("word.word/word:tag", "quay.io")
	require.NoError(t, err)
	assert.Equal(t, "word.word/word:tag", n.String())

	_, err = Qualify("", "quay.io")
	assert.Error(t, err)
}

func TestIsRegistry(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"quay.io":        true,
		"localhost":      true,
		"localhost:5000": true,
		"myhost:443":     true,
		"library":        false,
		"org":            false,
	}
	for segment, want := range tests {
		assert.Equal(t, want, IsRegistry(segment), segment)
	}
}

func TestValidateRegistry(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRegistry("quay.io"))
	assert.NoError(t, ValidateRegistry("localhost:5000"))
	assert.Error(t, ValidateRegistry("bad host/with path"))
}
