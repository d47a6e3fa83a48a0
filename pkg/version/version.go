// Package version exposes build metadata injected via -ldflags.
package version

import "runtime/debug"

// version is overridden at build time:
//
//	go build -ldflags "-X github.com/mwa-utils/mwapipe/pkg/version.version=v0.3.0"
var version = "" //nolint:gochecknoglobals // set by the linker

// defaultVersion is reported for local builds without module version information.
const defaultVersion = "0.0.0-dev"

// GetVersion returns the tool version, preferring the linker-injected value,
// then the main module version recorded by the Go toolchain.
func GetVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return defaultVersion
}
