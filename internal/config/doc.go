// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package config provides loading and typed accessors for aegea's user
// configuration. The configuration is a YAML document located in the user's
// configuration directory, typically:
//   - Linux: $XDG_CONFIG_HOME/aegea/aegea.yaml or $HOME/.config/aegea/aegea.yaml
//   - macOS: $HOME/Library/Application Support/aegea/aegea.yaml
//
// The file is created from a bundled template on first run. Values are merged
// in a fixed order: the typed Defaults, then the file, then environment
// variables, then command-line flags.
package config
