// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package launch starts a single EC2 instance for image building. User data
// is a gzipped #cloud-config document. The root volume is gp3 and the first
// four instance-store volumes are mapped to /dev/xvdb through /dev/xvde.
package launch
