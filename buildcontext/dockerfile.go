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

package buildcontext

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cowdogmoo/dockyard/imageconfig"
)

// ContextPath returns where an assembly layer lives inside the build
// context: [id/]targetDir without the leading slash, or "." for a layer
// without id targeting the root.
func ContextPath(desc *imageconfig.AssemblyDescriptor) string {
	p := path.Join(desc.ID, strings.TrimPrefix(path.Clean("/"+desc.TargetDir), "/"))
	if p == "" {
		return "."
	}
	return p
}

// GenerateDockerfile renders build instructions for b. Extra labels are
// appended after the configured ones unless the key is already set.
func GenerateDockerfile(b *imageconfig.BuildDescription, extraLabels imageconfig.OrderedMap) string {
	var sb strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}

	if b.From != "" {
		line("FROM %s", b.From)
	}
	if b.Maintainer != "" {
		line("MAINTAINER %s", b.Maintainer)
	}
	b.Env.Each(func(k, v string) {
		line("ENV %s=%s", k, quote(v))
	})

	labels := imageconfig.NewOrderedMap()
	b.Labels.Each(labels.Set)
	extraLabels.Each(func(k, v string) {
		if _, ok := labels.Get(k); !ok {
			labels.Set(k, v)
		}
	})
	labels.Each(func(k, v string) {
		line("LABEL %s=%s", quote(k), quote(v))
	})

	if len(b.Ports) > 0 {
		line("EXPOSE %s", strings.Join(b.Ports, " "))
	}

	for i := range b.Assemblies {
		desc := &b.Assemblies[i]
		target := path.Clean("/" + desc.TargetDir)
		chown := ""
		if desc.User != "" {
			chown = "--chown=" + desc.User + " "
		}
		src := "/" + ContextPath(desc)
		if src == "/." {
			src = "."
		}
		line("COPY %s%s %s", chown, src, strings.TrimSuffix(target, "/")+"/")
		if desc.ExportsTargetDir() && target != "/" {
			line("VOLUME %s", jsonArray([]string{target}))
		}
	}

	if b.Workdir != "" {
		line("WORKDIR %s", b.Workdir)
	}
	if len(b.Volumes) > 0 {
		line("VOLUME %s", jsonArray(b.Volumes))
	}
	if !b.Shell.IsEmpty() {
		line("SHELL %s", jsonArray(b.Shell.Argv()))
	}
	for _, run := range b.RunCmds {
		if strings.TrimSpace(run) != "" {
			line("RUN %s", run)
		}
	}
	if hc := healthCheck(b.HealthCheck); hc != "" {
		line("HEALTHCHECK %s", hc)
	}
	if !b.EntryPoint.IsEmpty() {
		line("ENTRYPOINT %s", b.EntryPoint.DockerfileForm())
	}
	if !b.Cmd.IsEmpty() {
		line("CMD %s", b.Cmd.DockerfileForm())
	}
	if b.User != "" {
		line("USER %s", b.User)
	}
	return sb.String()
}

func healthCheck(hc *imageconfig.HealthCheck) string {
	if hc == nil {
		return ""
	}
	if strings.EqualFold(hc.Mode, "none") {
		return "NONE"
	}
	if hc.Cmd.IsEmpty() {
		return ""
	}

	var opts []string
	addDuration := func(flag string, d time.Duration) {
		if d > 0 {
			opts = append(opts, fmt.Sprintf("--%s=%s", flag, d))
		}
	}
	addDuration("interval", hc.Interval)
	addDuration("timeout", hc.Timeout)
	addDuration("start-period", hc.StartPeriod)
	if hc.Retries > 0 {
		opts = append(opts, fmt.Sprintf("--retries=%d", hc.Retries))
	}
	opts = append(opts, "CMD", hc.Cmd.DockerfileForm())
	return strings.Join(opts, " ")
}

// quote renders a value in the double-quoted form ENV and LABEL accept.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func jsonArray(values []string) string {
	data, _ := json.Marshal(values)
	return string(data)
}
