// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package aws contains AWS SDK helpers shared by commands: config loading,
// client construction, caller identity and API error inspection.
package aws
