// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Do not import any other aegea packages to avoid import cycles.

package version

import "runtime/debug"

// Version is the module version stamped into the binary. It is also written
// to the AegeaVersion tag of every image built by build-ami.
var Version = func() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}()
