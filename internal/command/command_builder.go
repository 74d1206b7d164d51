// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/config"
	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/meta"
)

// CommandBuilder constructs a cli.Command for an aegea subcommand using a
// consistent pattern. The builder wires metadata, appends the global flags,
// applies --log-level and points config lookups at the command's namespace
// before the action runs.
type CommandBuilder struct {
	Name      string
	Usage     string
	UsageText string
	ArgsUsage string
	Flags     []cli.Flag
	Action    func(context.Context, *cli.Command) error
	Meta      meta.Meta
}

// Build returns a configured cli.Command from the builder.
func (cb *CommandBuilder) Build() *cli.Command {
	ns := namespace(cb.Name)
	return &cli.Command{
		Name:      cb.Name,
		Usage:     cb.Usage,
		UsageText: cb.UsageText,
		ArgsUsage: cb.ArgsUsage,
		Metadata: map[string]any{
			"meta": cb.Meta,
		},
		Flags: append(cb.Flags, NewGlobalFlags(ns, cb.Meta.Config.Source)...),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := log.SetLevel(c.String("log-level")); err != nil {
				return ctx, err
			}
			config.Config.Namespace = ns
			log.Debugf("executing %s: args=%v", cb.Name, c.Args().Slice())
			return ctx, GlobalFlagsValidator(ctx, c)
		},
		Action: cb.Action,
	}
}
