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

package imageconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/dockyard/errors"
)

const sampleConfig = `images:
  - name: registry.example.com/team/service:1.0
    alias: service
    build:
      from: eclipse-temurin:21-jre
      maintainer: team@example.com
      env:
        JAVA_OPTS: -Xmx512m
        APP_HOME: /opt/app
        LANG: C.UTF-8
      labels:
        org.example.team: platform
      ports: ["8080", "8443"]
      entrypoint: ["java", "-jar", "/opt/app/service.jar"]
      cmd: --server.port=8080
      healthcheck:
        interval: 30s
        retries: 3
        cmd: curl -f http://localhost:8080/health
      tags: [latest, "1"]
      assemblies:
        - id: libs
          targetDir: /opt/app/lib
          fileSets:
            - directory: target/lib
              excludes: ["**/*-sources.jar"]
        - id: app
          targetDir: /opt/app
          exportTargetDir: false
          fileMode: "0644"
          files:
            - source: target/service.jar
    watch:
      mode: copy
      interval: 2s
      postExec: /opt/app/reload.sh
  - name: tools
    build:
      dockerfile: docker/Dockerfile
`

func TestParse(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte(sampleConfig), "/work")
	require.NoError(t, err)
	require.Len(t, f.Images, 2)
	assert.Equal(t, "/work", f.BaseDir)

	img := f.Images[0]
	assert.Equal(t, "service", img.Description())
	b := img.Build
	require.NotNil(t, b)
	assert.Equal(t, []string{"JAVA_OPTS", "APP_HOME", "LANG"}, b.Env.Keys())
	v, ok := b.Env.Get("APP_HOME")
	assert.True(t, ok)
	assert.Equal(t, "/opt/app", v)
	assert.Equal(t, []string{"java", "-jar", "/opt/app/service.jar"}, b.EntryPoint.Exec)
	assert.Equal(t, "--server.port=8080", b.Cmd.Shell)
	require.NotNil(t, b.HealthCheck)
	assert.Equal(t, 30*time.Second, b.HealthCheck.Interval)
	assert.Equal(t, "curl -f http://localhost:8080/health", b.HealthCheck.Cmd.Shell)

	require.Len(t, b.Assemblies, 2)
	assert.True(t, b.Assemblies[0].ExportsTargetDir())
	assert.False(t, b.Assemblies[1].ExportsTargetDir())
	assert.Equal(t, []string{"**/*-sources.jar"}, b.Assemblies[0].FileSets[0].Excludes)

	require.NotNil(t, img.Watch)
	assert.Equal(t, WatchCopy, img.Watch.Mode)
	assert.Equal(t, 2*time.Second, img.Watch.Interval)

	assert.Equal(t, "tools", f.Images[1].Description())
	assert.Equal(t, "/work/docker/Dockerfile", f.ResolvePath(f.Images[1].Build.Dockerfile))
	assert.Equal(t, "/abs", f.ResolvePath("/abs"))
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "empty", yaml: "", wantErr: "no images"},
		{name: "unknown field", yaml: "images:\n  - name: app\n    bogus: 1\n", wantErr: "bogus"},
		{name: "bad name", yaml: "images:\n  - name: Bad/Name\n", wantErr: "parse image name"},
		{name: "duplicate env key", yaml: "images:\n  - name: app\n    build:\n      from: alpine\n      env:\n        A: 1\n        A: 2\n", wantErr: "duplicate key"},
		{name: "missing from", yaml: "images:\n  - name: app\n    build:\n      maintainer: me\n", wantErr: "either from or dockerfile"},
		{name: "bad compression", yaml: "images:\n  - name: app\n    build:\n      from: alpine\n      compression: xz\n", wantErr: "unknown compression"},
		{name: "bad mode", yaml: "images:\n  - name: app\n    build:\n      from: alpine\n      assemblies:\n        - targetDir: /x\n          fileMode: rwx\n", wantErr: "must be octal"},
		{name: "layers need ids", yaml: "images:\n  - name: app\n    build:\n      from: alpine\n      assemblies:\n        - targetDir: /a\n        - id: b\n          targetDir: /b\n", wantErr: "needs an id"},
		{name: "missing target dir", yaml: "images:\n  - name: app\n    build:\n      from: alpine\n      assemblies:\n        - id: a\n", wantErr: "no targetDir"},
		{name: "duplicate alias", yaml: "images:\n  - name: app\n    alias: x\n  - name: other\n    alias: x\n", wantErr: "more than once"},
		{name: "bad watch mode", yaml: "images:\n  - name: app\n    watch:\n      mode: sync\n", wantErr: "unknown mode"},
		{name: "args as map", yaml: "images:\n  - name: app\n    build:\n      from: alpine\n      cmd: {a: b}\n", wantErr: "string or a list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.yaml), "/work")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsKind(err, errors.KindConfiguration))
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "images.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, f.BaseDir)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestSelect(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte(sampleConfig), "/work")
	require.NoError(t, err)

	all, err := f.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Configuration order is kept regardless of argument order.
	both, err := f.Select([]string{"tools", "service"})
	require.NoError(t, err)
	require.Len(t, both, 2)
	assert.Equal(t, "service", both[0].Alias)

	_, err = f.Select([]string{"srvc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown image "srvc"`)
	assert.Contains(t, err.Error(), "did you mean service")
}

func TestOrderedMap(t *testing.T) {
	t.Parallel()

	m := NewOrderedMap("b", "1", "a", "2")
	m.Set("b", "3")
	m.Set("c", "4")

	assert.Equal(t, []string{"b", "a", "c"}, m.Keys())
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, map[string]string{"a": "2", "b": "3", "c": "4"}, m.Map())

	var visited []string
	m.Each(func(k, v string) { visited = append(visited, k+"="+v) })
	assert.Equal(t, []string{"b=3", "a=2", "c=4"}, visited)

	out, err := yaml.Marshal(struct {
		Env OrderedMap `yaml:"env"`
	}{Env: m})
	require.NoError(t, err)
	assert.Equal(t, "env:\n    b: \"3\"\n    a: \"2\"\n    c: \"4\"\n", string(out))
}

func TestArguments(t *testing.T) {
	t.Parallel()

	var nilArgs *Arguments
	assert.True(t, nilArgs.IsEmpty())
	assert.Empty(t, nilArgs.DockerfileForm())
	assert.Nil(t, nilArgs.Argv())

	shell := ShellArguments("echo hello world")
	assert.Equal(t, "echo hello world", shell.DockerfileForm())
	assert.Equal(t, []string{"echo", "hello", "world"}, shell.Argv())

	exec := ExecArguments("/bin/sh", "-c", "echo \"hi\"")
	assert.Equal(t, `["/bin/sh","-c","echo \"hi\""]`, exec.DockerfileForm())
	assert.Equal(t, []string{"/bin/sh", "-c", "echo \"hi\""}, exec.Argv())

	assert.True(t, ShellArguments("   ").IsEmpty())
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	v, err := ParseMode(DefaultDirectoryMode)
	require.NoError(t, err)
	assert.Equal(t, int64(0o40111), v)

	v, err = ParseMode("0644")
	require.NoError(t, err)
	assert.Equal(t, int64(0o644), v)

	_, err = ParseMode("0999")
	assert.Error(t, err)
}

func TestOrderedMap_JSON(t *testing.T) {
	t.Parallel()

	data, err := NewOrderedMap("z", "1", "a", "x\"y").MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"z":"1","a":"x\"y"}`, string(data))

	data, err = OrderedMap{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}
