// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package command defines the aegea subcommands. Each command file registers
// its builder with the Registry; InitApp assembles them under the root
// command together with the global output and logging flags.
package command
