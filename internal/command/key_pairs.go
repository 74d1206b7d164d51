// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/sshkey"
)

func registerKeyPairs(r *Registry) {
	r.Register(&CommandBuilder{
		Name:      "key-pairs",
		Usage:     "list EC2 key pairs and whether their private key is in ~/.ssh",
		UsageText: "aegea key-pairs [options]",
		Action:    keyPairsAction,
	})
}

func keyPairsAction(ctx context.Context, cmd *cli.Command) error {
	clients, err := newClients(ctx, cmd)
	if err != nil {
		return err
	}

	m, err := sshkey.NewManager(clients.EC2)
	if err != nil {
		return err
	}

	t, err := m.List(ctx)
	if err != nil {
		return err
	}
	return render(cmd, t)
}
