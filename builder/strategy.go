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

package builder

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// A BuildStrategy represents how the engine will build for a platform.
type BuildStrategy int

const (
	// NativeBuild indicates a native build on the same architecture
	NativeBuild BuildStrategy = iota
	// Emulated indicates a build through QEMU emulation
	Emulated
)

// StrategyDetector determines the build strategy for a target platform
type StrategyDetector struct {
	hostArch string
}

// NewStrategyDetector creates a detector for the local architecture
func NewStrategyDetector() *StrategyDetector {
	return &StrategyDetector{hostArch: runtime.GOARCH}
}

// DetectStrategy determines the build strategy for a platform such as
// linux/arm64. An empty platform builds natively.
func (sd *StrategyDetector) DetectStrategy(ctx context.Context, platform string) (BuildStrategy, string) {
	if platform == "" {
		return NativeBuild, fmt.Sprintf("Native build on %s", sd.hostArch)
	}

	targetArch := platformArch(platform)
	if normalizeArch(targetArch) == normalizeArch(sd.hostArch) {
		return NativeBuild, fmt.Sprintf("Native build on %s", sd.hostArch)
	}

	return Emulated, fmt.Sprintf("Emulated build for %s on %s host using QEMU", targetArch, sd.hostArch)
}

// platformArch extracts the architecture from os/arch[/variant].
func platformArch(platform string) string {
	parts := strings.Split(platform, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return parts[0]
}

// normalizeArch normalizes architecture names to a standard form
func normalizeArch(arch string) string {
	switch arch {
	case "amd64", "x86_64", "x64":
		return "amd64"
	case "arm64", "aarch64":
		return "arm64"
	case "arm", "armv7", "armv7l":
		return "arm"
	case "386", "i386", "i686":
		return "386"
	default:
		return arch
	}
}

// String returns a human-readable representation of the build strategy
func (bs BuildStrategy) String() string {
	switch bs {
	case NativeBuild:
		return "native"
	case Emulated:
		return "emulated"
	default:
		return "unknown"
	}
}
