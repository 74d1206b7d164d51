// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package ami builds machine images.
//
// A build resolves a base image (catalog lookup, explicit id or an existing
// host), launches a builder from it, waits for cloud-init to report a clean
// result over SSM, replaces any same-named image owned by the account,
// snapshots the builder, waits for the image to become available and
// terminates the builder. The image is tagged with the caller tags plus
// Owner, AegeaVersion, Base, BaseName and BaseDescription.
package ami
