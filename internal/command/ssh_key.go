// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/output"
	"github.com/aegea/aegea/internal/sshkey"
	"github.com/aegea/aegea/internal/util"
)

func registerEnsureSSHKey(r *Registry) {
	r.Register(&CommandBuilder{
		Name:      "ensure-ssh-key",
		Usage:     "make sure an SSH key pair exists in ~/.ssh and in EC2",
		UsageText: "aegea ensure-ssh-key [NAME] [options]",
		ArgsUsage: "[NAME]",
		Flags: []cli.Flag{
			newNoVerifyPEMFlag(),
		},
		Action: ensureSSHKeyAction,
	})
}

func ensureSSHKeyAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() > 1 {
		return fmt.Errorf("ensure-ssh-key takes at most one NAME, got %v", cmd.Args().Slice())
	}

	clients, err := newClients(ctx, cmd)
	if err != nil {
		return err
	}

	m, err := sshkey.NewManager(clients.EC2)
	if err != nil {
		return err
	}

	name, err := m.Ensure(ctx, cmd.Args().First(), !cmd.Bool("no-verify-ssh-key-pem-file"))
	if err != nil {
		return err
	}
	return output.Result(stdout(cmd), map[string]any{
		"KeyName": name,
		"Path":    m.KeyPath(name),
	})
}

func registerTrustHostKey(r *Registry) {
	r.Register(&CommandBuilder{
		Name:      "trust-host-key",
		Usage:     "append a host's public key to the SSH known hosts file",
		UsageText: "aegea trust-host-key HOSTNAMES PUBKEY_FILE [options]",
		ArgsUsage: "HOSTNAMES PUBKEY_FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "known-hosts",
				Usage: "known hosts file to append to",
				Value: "~/.ssh/known_hosts",
			},
		},
		Action: trustHostKeyAction,
	})
}

func trustHostKeyAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 { //nolint:mnd
		return fmt.Errorf("trust-host-key takes HOSTNAMES and PUBKEY_FILE, got %v", cmd.Args().Slice())
	}
	hostnames := splitHostnames(cmd.Args().Get(0))

	key, err := sshkey.ReadPublicKey(cmd.Args().Get(1))
	if err != nil {
		return err
	}

	path, err := util.ExpandHome(cmd.String("known-hosts"))
	if err != nil {
		return err
	}
	return sshkey.AppendKnownHost(path, hostnames, key)
}

// splitHostnames accepts a comma-separated list of names and addresses.
func splitHostnames(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
