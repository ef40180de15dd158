// Package version reports the wsbridge build version and checks the
// wstunnel binary it drives.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Set with -ldflags "-X github.com/phantomwg/wsbridge/internal/version.version=...".
var version = "dev"

// SupportedEngineMajor is the wstunnel major release whose command line the
// exec engine builds.
const SupportedEngineMajor = 10

// String returns the build version.
func String() string {
	return version
}

// ForTesting overrides the build version until the returned func runs.
func ForTesting(v string) func() {
	prev := version
	version = v
	return func() { version = prev }
}

var (
	describeSuffix = regexp.MustCompile(`-\d+-g[0-9a-f]+$`)
	engineBanner   = regexp.MustCompile(`v?(\d+)\.(\d+)(?:\.(\d+))?`)
)

// Display adds a "v" prefix and drops a git describe "-N-gHASH" suffix.
// "dev" and "" pass through.
func Display(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	return "v" + describeSuffix.ReplaceAllString(strings.TrimPrefix(v, "v"), "")
}

// Engine is a wstunnel release number. Patch is -1 when the banner omits it.
type Engine struct {
	Major, Minor, Patch int
}

// ParseEngine finds the release number in `wstunnel --version` output, for
// example "wstunnel-cli 10.1.7".
func ParseEngine(banner string) (Engine, bool) {
	m := engineBanner.FindStringSubmatch(banner)
	if m == nil {
		return Engine{}, false
	}
	e := Engine{Patch: -1}
	e.Major, _ = strconv.Atoi(m[1])
	e.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		e.Patch, _ = strconv.Atoi(m[3])
	}
	return e, true
}

func (e Engine) String() string {
	if e.Patch < 0 {
		return fmt.Sprintf("%d.%d", e.Major, e.Minor)
	}
	return fmt.Sprintf("%d.%d.%d", e.Major, e.Minor, e.Patch)
}

// Supported reports whether e shares SupportedEngineMajor.
func (e Engine) Supported() bool {
	return e.Major == SupportedEngineMajor
}

// EngineWarning explains a major version mismatch between banner and
// SupportedEngineMajor. Matching or unparseable banners yield "".
func EngineWarning(banner string) string {
	e, ok := ParseEngine(banner)
	if !ok || e.Supported() {
		return ""
	}
	return fmt.Sprintf("WARNING: wsbridge %s targets wstunnel %d.x but found wstunnel v%s; command line flags may differ",
		Display(version), SupportedEngineMajor, e)
}
