// Package version holds the build version, overridden at link time with
// -ldflags "-X pdfsift/version.Version=<v>".
package version

var Version = "dev"
