// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package output renders command results. Listing commands build a Table and
// call Render; single-object results go through Result.
package output
