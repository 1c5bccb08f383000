// Package version reports build metadata injected with -ldflags, falling
// back to what the Go toolchain embeds in the binary.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const AppName = "clipboard"

// Set with -ldflags "-X github.com/ohowe1/clipboard/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate string
)

type Info struct {
	App        string `json:"app"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	out := Info{
		App:       AppName,
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" {
				out.Commit = s.Value
			}
		case "vcs.time":
			out.CommitDate = s.Value
			if out.BuildDate == "" {
				out.BuildDate = s.Value
			}
		case "vcs.modified":
			dirty := s.Value == "true"
			out.VCSDirty = &dirty
		}
	}
	return out
}

// String renders Info for the -V flag.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", i.App, i.Version)
	fmt.Fprintf(&b, "  commit:     %s\n", i.Commit)
	if i.CommitDate != "" {
		fmt.Fprintf(&b, "  commit date: %s\n", i.CommitDate)
	}
	if i.BuildDate != "" {
		fmt.Fprintf(&b, "  built:      %s\n", i.BuildDate)
	}
	if i.VCSDirty != nil && *i.VCSDirty {
		b.WriteString("  dirty:      true\n")
	}
	fmt.Fprintf(&b, "  go:         %s\n", i.GoVersion)
	return b.String()
}
