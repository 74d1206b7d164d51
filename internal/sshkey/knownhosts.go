// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package sshkey

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/util"
)

// KnownHostsPath returns ~/.ssh/known_hosts.
func KnownHostsPath() (string, error) {
	return util.ExpandHome("~/.ssh/known_hosts")
}

// ReadPublicKey parses an authorized_keys style public key file such as an
// instance's /etc/ssh/ssh_host_rsa_key.pub.
func ReadPublicKey(path string) (ssh.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	return key, nil
}

// AppendKnownHost appends one known_hosts line for hostnames to path. Existing
// entries are neither checked nor deduplicated.
func AppendKnownHost(path string, hostnames []string, key ssh.PublicKey) error {
	if len(hostnames) == 0 {
		return fmt.Errorf("no hostnames given")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:mnd
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	line := knownhosts.Line(hostnames, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	log.Debugf("trusted host key: hosts=%v fingerprint=%s", hostnames, ssh.FingerprintSHA256(key))
	return nil
}
