// Package buildinfo exposes the application version stamped at link time.
package buildinfo

// Version is overridden with -ldflags "-X github.com/louisbranch/homebook/internal/platform/buildinfo.Version=...".
var Version = "1.2.0"
