// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/config"
	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/output"
)

// NewGlobalFlags returns the flags every subcommand accepts. ns and path
// locate the config file values that back them.
func NewGlobalFlags(ns, path string) (flags []cli.Flag) {
	flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "auto-col-width",
			Usage: "fit text columns to the terminal width",
			Value: false,
		},
		&cli.BoolFlag{
			Name:    "color",
			Aliases: []string{"c"},
			Usage:   "enable colored text output",
			Value:   false,
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "shorthand for --output json",
			Value: false,
		},
		&cli.StringFlag{
			Name:  "filter",
			Usage: "keep rows matching KEY OP VALUE expressions, e.g. TOTAL>10,Name^aegea-",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (" + strings.Join(log.Levels, ", ") + ")",
			Value: config.Defaults.LogLevel,
			Sources: withConfig(ns, path, "log-level",
				cli.EnvVar("AEGEA_LOG"),
			),
			Validator: func(value string) error {
				return FlagValidators(value, LogLevelValidator)
			},
		},
		&cli.IntFlag{
			Name:    "max-col-width",
			Aliases: []string{"w"},
			Usage:   "truncate text columns to this many characters",
			Value:   config.Defaults.MaxColWidth,
			Sources: withConfig(ns, path, "max-col-width"),
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format (" + strings.Join(output.Formats, ", ") + ")",
			Value:   output.FormatText,
			Sources: withConfig(ns, path, "output"),
			Validator: func(value string) error {
				return FlagValidators(value, OutputValidator)
			},
		},
		&cli.StringFlag{
			Name:    "profile",
			Usage:   "AWS shared config profile",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AWS_PROFILE")),
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "AWS region",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AWS_REGION"), cli.EnvVar("AWS_DEFAULT_REGION")),
		},
		&cli.StringFlag{
			Name:    "sort",
			Aliases: []string{"s"},
			Usage:   "comma-separated list of columns to sort the results by",
		},
	}

	return
}

// withConfig returns a source chain of the given sources followed by the
// namespaced and global config file values for flag. Config keys use
// underscores where flags use dashes.
func withConfig(ns, path, flag string, sources ...cli.ValueSource) cli.ValueSourceChain {
	chain := cli.NewValueSourceChain(sources...)
	if path == "" {
		return chain
	}
	return NameSpacedValueChainFromConfigFile(ns, path, flag, chain)
}

// NameSpacedValueChainFromConfigFile adds namespaced and global config file
// sources for flag to chain.
func NameSpacedValueChainFromConfigFile(ns, path, flag string, chain cli.ValueSourceChain) cli.ValueSourceChain {
	key := strings.ReplaceAll(flag, "-", "_")
	if ns != "" {
		chain.Chain = append(chain.Chain, yaml.YAML(ns+"."+key, altsrc.StringSourcer(path)))
	}
	chain.Chain = append(chain.Chain, yaml.YAML(key, altsrc.StringSourcer(path)))
	return chain
}

// newNoVerifyPEMFlag skips the check that an EC2 key pair has a local PEM
// file.
func newNoVerifyPEMFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:  "no-verify-ssh-key-pem-file",
		Usage: "accept an EC2 key pair whose private key is not in ~/.ssh",
		Value: false,
	}
}
