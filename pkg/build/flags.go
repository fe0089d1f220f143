// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded at link time:
//
//	go build -ldflags "-X ephys/pkg/build.buildName=ephys -X ephys/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run with "unknown" values.
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the info for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = unknown()
)

func unknown() Info {
	return Info{Name: "unknown", Time: "unknown", Commit: "unknown", Version: "unknown"}
}

// Initialize copies the ldflags variables into the build info. Missing
// flags keep their "unknown" value and are reported in the returned error,
// which callers may treat as a warning in development builds.
func Initialize() error {
	info := unknown()
	var errs []error
	set := func(dst *string, val, flag string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = val
	}
	set(&info.Name, buildName, "BuildName")
	set(&info.Time, buildTime, "BuildTime")
	set(&info.Commit, buildCommit, "BuildCommit")
	set(&info.Version, buildVersion, "BuildVersion")

	buildInfo = info
	return errors.Join(errs...)
}

// Get returns the current build info.
func Get() Info {
	return buildInfo
}
