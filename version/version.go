// Copyright 2025 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package version reports the semantic version of the codexion binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"golang.org/x/mod/semver"
)

// Dev is reported when the binary was not built from a tagged module.
const Dev = "v0.0.0-dev"

// Version holds a semantic version.
type Version struct {
	version string
}

// Current returns the version of the running binary, as recorded in its
// build information.
func Current() *Version {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v, err := Of(info.Main.Version); err == nil {
			return v
		}
	}
	return Must(Dev)
}

// Of validates a bare semantic version string.
func Of(version string) (*Version, error) {
	if !semver.IsValid(version) {
		return nil, fmt.Errorf("not a semver: %q", version)
	}
	return &Version{version: version}, nil
}

// Must panics if the version string is not a valid semantic version.
func Must(version string) *Version {
	v, err := Of(version)
	if err != nil {
		panic(err)
	}
	return v
}

// Banner returns a one-line description of the binary. For example:
//
//	codexion v0.3.1 (go1.23.0 linux/amd64)
//	codexion v0.0.0-dev (go1.23.0 darwin/arm64)
func (v *Version) Banner() string {
	return fmt.Sprintf("codexion %s (%s %s/%s)",
		v.version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// String implements the Stringer interface.
func (v *Version) String() string {
	return v.version
}
