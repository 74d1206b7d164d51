// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/ami"
)

func registerImages(r *Registry) {
	r.Register(&CommandBuilder{
		Name:      "images",
		Usage:     "list EC2 images, newest first",
		UsageText: "aegea images [options]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "owners",
				Usage: "image owners: account ids, self or amazon",
				Value: []string{"self"},
			},
		},
		Action: imagesAction,
	})
}

func imagesAction(ctx context.Context, cmd *cli.Command) error {
	clients, err := newClients(ctx, cmd)
	if err != nil {
		return err
	}

	t, err := ami.ListImages(ctx, clients.EC2, cmd.StringSlice("owners"))
	if err != nil {
		return err
	}
	return render(cmd, t)
}
