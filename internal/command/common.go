// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/aws"
	"github.com/aegea/aegea/internal/filters"
	"github.com/aegea/aegea/internal/meta"
	"github.com/aegea/aegea/internal/output"
)

// GetMeta returns the meta.Meta stored in the command's Metadata. If missing
// or of an unexpected type, it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	if cmd == nil || cmd.Metadata == nil {
		return meta.Meta{}
	}
	if m, ok := cmd.Metadata["meta"].(meta.Meta); ok {
		return m
	}
	return meta.Meta{}
}

// newClients builds the AWS clients for cmd, honoring --profile and --region.
func newClients(ctx context.Context, cmd *cli.Command) (*aws.Clients, error) {
	var opts []aws.Option
	if p := cmd.String("profile"); p != "" {
		opts = append(opts, aws.WithProfile(p))
	}
	if r := cmd.String("region"); r != "" {
		opts = append(opts, aws.WithRegion(r))
	}
	return GetMeta(cmd).NewClients(ctx, opts...)
}

// outputOptions collects the global rendering flags. --json wins over
// --output.
func outputOptions(cmd *cli.Command) output.Options {
	format := cmd.String("output")
	if cmd.Bool("json") {
		format = output.FormatJSON
	}
	return output.Options{
		Format:       format,
		MaxColWidth:  cmd.Int("max-col-width"),
		AutoColWidth: cmd.Bool("auto-col-width"),
		Color:        cmd.Bool("color"),
		Sort:         cmd.String("sort"),
		Writer:       stdout(cmd),
	}
}

// render filters t by --filter and writes it using the global rendering
// flags.
func render(cmd *cli.Command, t output.Table) error {
	return output.Render(filters.Apply(t, cmd.String("filter")), outputOptions(cmd))
}

// stdout is the root command's writer, falling back to os.Stdout.
func stdout(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}

// stderr is the root command's error writer, falling back to os.Stderr.
func stderr(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.ErrWriter != nil {
		return root.ErrWriter
	}
	return os.Stderr
}

// seconds converts a whole number of seconds from a flag to a duration.
func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
