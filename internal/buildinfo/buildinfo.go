// Package buildinfo reports the version share-space was built as.
package buildinfo

import "runtime/debug"

// Version is set at link time with
// -ldflags "-X sharespace/internal/buildinfo.Version=v1.2.3".
var Version = ""

func init() {
	if Version != "" {
		return
	}
	Version = "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}
