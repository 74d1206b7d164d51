// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/config"
	"github.com/aegea/aegea/internal/meta"
)

// InitApp builds the root command with every registered subcommand.
func InitApp(ctx context.Context, args []string) (*cli.Command, error) {
	return initApp(ctx, args, nil)
}

func initApp(ctx context.Context, args []string, clients meta.ClientFactory) (*cli.Command, error) {
	// The arg[1] immediately following the binary (arg[0]) is the aegea
	// subcommand and also represents the namespace key to be used when
	// retrieving config values. arg[1] could be -h/--help, so ignore it if it
	// appears to be a flag.
	var ns string
	if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
		ns = namespace(args[1])
	}

	// A missing config file is fine; flags fall back to built-in defaults.
	cfg, _ := config.Load() //nolint:errcheck
	cfg.Namespace = ns
	config.Config.Namespace = ns

	r := NewRegistry(meta.Meta{
		Args:    args,
		Config:  cfg,
		Context: ctx,
		Clients: clients,
	})
	for _, register := range registrations {
		register(r)
	}

	app := &cli.Command{
		Name:                  "aegea",
		Usage:                 "Amazon Web Services operator interface",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "version",
				Aliases:     []string{"v"},
				Usage:       "aegea version info",
				HideDefault: true,
			},
		},
		Commands: r.Commands(),
	}

	return app, nil
}

// namespace maps a command name to its config section, e.g. build-ami to
// build_ami.
func namespace(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
