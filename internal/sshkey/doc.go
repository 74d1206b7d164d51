// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package sshkey keeps a named SSH key pair consistent between ~/.ssh and the
// EC2 key-pair store, loads it into ssh-agent and appends host keys to
// known_hosts.
//
// Ensure handles four cases:
//
//	local  remote  action
//	no     no      generate RSA key, write <name>.pem (0600), import public half
//	no     yes     *ConflictError when verifying the PEM, otherwise continue
//	yes    no      import the existing public half
//	yes    yes     nothing
//
// The agent step runs last and only warns on failure.
package sshkey
