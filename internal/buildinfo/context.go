// Package buildinfo contains build-time metadata kept separate from user configuration.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Set through -ldflags "-X github.com/sigscope/sigscope/internal/buildinfo.version=...".
var (
	version   string
	buildDate string
)

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	Version() string
	BuildDate() string
	Commit() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	buildDate string
	commit    string
	modified  bool
}

// NewContext returns build metadata. Empty values fall back to what the Go
// toolchain embedded in the binary.
func NewContext(ver, date string) *Context {
	c := &Context{version: ver, buildDate: date}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if c.version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			c.version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				c.commit = s.Value
			case "vcs.time":
				if c.buildDate == "" {
					c.buildDate = s.Value
				}
			case "vcs.modified":
				c.modified = s.Value == "true"
			}
		}
	}
	return c
}

// Current returns the metadata injected into this binary.
func Current() *Context {
	return NewContext(version, buildDate)
}

// Version implements BuildInfo.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate implements BuildInfo.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// Commit implements BuildInfo. Dirty trees get a -dirty suffix.
func (c *Context) Commit() string {
	if c == nil || c.commit == "" {
		return UnknownValue
	}
	commit := c.commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if c.modified {
		commit += "-dirty"
	}
	return commit
}

// String formats the metadata for the version command.
func (c *Context) String() string {
	return fmt.Sprintf("sigscope %s (commit %s, built %s, %s %s/%s)",
		c.Version(), c.Commit(), c.BuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
