// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/ami"
	"github.com/aegea/aegea/internal/cacheutil"
	"github.com/aegea/aegea/internal/config"
	"github.com/aegea/aegea/internal/launch"
	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/output"
	"github.com/aegea/aegea/internal/ssm"
	"github.com/aegea/aegea/internal/sshkey"
	"github.com/aegea/aegea/internal/version"
)

func registerBuildAMI(r *Registry) {
	ns, path := "build_ami", r.Meta.Config.Source
	d := config.Defaults.BuildAMI

	r.Register(&CommandBuilder{
		Name:      "build-ami",
		Usage:     "build an EC2 image from a base image or an existing host",
		UsageText: "aegea build-ami [NAME] [options]",
		ArgsUsage: "[NAME]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "architecture",
				Usage:   "builder architecture (" + strings.Join(ami.Architectures, ", ") + ")",
				Value:   d.Architecture,
				Sources: withConfig(ns, path, "architecture"),
				Validator: func(value string) error {
					return FlagValidators(value, ChoiceValidator(ami.Architectures))
				},
			},
			&cli.StringFlag{
				Name:    "base-ami",
				Usage:   "base image id, or auto to use the newest image of --base-ami-distribution",
				Value:   d.BaseAMI,
				Sources: withConfig(ns, path, "base-ami"),
			},
			&cli.StringFlag{
				Name:    "base-ami-distribution",
				Usage:   "DISTRIBUTION:RELEASE used when --base-ami is auto (" + strings.Join(ami.Distributions(), ", ") + ")",
				Value:   d.BaseAMIDistribution,
				Sources: withConfig(ns, path, "base-ami-distribution"),
			},
			&cli.IntFlag{
				Name:    "cloud-init-poll-interval-seconds",
				Usage:   "seconds between cloud-init result checks",
				Value:   d.CloudInitPollIntervalSeconds,
				Sources: withConfig(ns, path, "cloud-init-poll-interval-seconds"),
			},
			&cli.IntFlag{
				Name:    "cloud-init-timeout-seconds",
				Usage:   "seconds to wait for cloud-init to finish cleanly",
				Value:   d.CloudInitTimeoutSeconds,
				Sources: withConfig(ns, path, "cloud-init-timeout-seconds"),
			},
			&cli.StringFlag{
				Name:  "cloud-config-data",
				Usage: "JSON object merged into the builder's cloud-config",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"dryrun"},
				Usage:   "resolve the base image and print the plan without launching",
			},
			&cli.StringFlag{
				Name:    "iam-role",
				Usage:   "instance profile for the builder",
				Value:   d.IAMRole,
				Sources: withConfig(ns, path, "iam-role"),
			},
			&cli.StringFlag{
				Name:  "instance-type",
				Usage: "builder instance type (default from default_builder_instance_type)",
			},
			newNoVerifyPEMFlag(),
			&cli.StringFlag{
				Name:    "root-volume-size",
				Usage:   "root volume size, e.g. 64GB",
				Value:   d.RootVolumeSize,
				Sources: withConfig(ns, path, "root-volume-size"),
			},
			&cli.StringSliceFlag{
				Name:  "rootfs-skel-dirs",
				Usage: "directories copied onto the builder's root filesystem, after build_ami.rootfs_skel_dirs from the config",
			},
			&cli.StringSliceFlag{
				Name:  "security-groups",
				Usage: "security group ids or names for the builder",
			},
			&cli.StringFlag{
				Name:  "snapshot-existing-host",
				Usage: "image this instance (id or Name tag) instead of launching a builder",
			},
			&cli.StringFlag{
				Name:  "ssh-key-name",
				Usage: "EC2 key pair for the builder (default aegea.<user>.<host>)",
			},
			&cli.StringSliceFlag{
				Name:  "tags",
				Usage: "NAME=VALUE tags for the image, after build_ami.tags from the config",
			},
			&cli.BoolFlag{
				Name:  "terminate-on-failure",
				Usage: "terminate a freshly launched builder when the build fails",
			},
		},
		Action: buildAMIAction,
	})
}

func buildAMIAction(ctx context.Context, cmd *cli.Command) error {
	req, err := buildAMIRequest(cmd)
	if err != nil {
		return err
	}

	clients, err := newClients(ctx, cmd)
	if err != nil {
		return err
	}

	keys, err := sshkey.NewManager(clients.EC2)
	if err != nil {
		return err
	}

	ttl, _ := config.GetInt("catalog.cache_ttl_hours", config.Defaults.CatalogTTLHour) //nolint:errcheck

	b := &ami.Builder{
		EC2:      clients.EC2,
		SSM:      ssm.NewRunner(clients.SSM),
		Launcher: &launch.Launcher{Client: clients.EC2, Keys: keys},
		Catalog:  &ami.Catalog{
			Client: clients.EC2,
			Cache:  cacheutil.New("catalog", time.Duration(ttl)*time.Hour),
			Region: clients.Config.Region,
		},
		Identity: clients.STS,
		Version:  version.Version,
		Progress: stderr(cmd),
	}

	res, err := b.Build(ctx, req)
	if err != nil {
		return err
	}
	return output.Result(stdout(cmd), res.Fields())
}

// buildAMIRequest merges the flags and config into one request.
func buildAMIRequest(cmd *cli.Command) (ami.Request, error) {
	req := ami.Request{
		Name:                  cmd.Args().First(),
		Architecture:          cmd.String("architecture"),
		BaseAMI:               cmd.String("base-ami"),
		BaseAMIDistribution:   cmd.String("base-ami-distribution"),
		SnapshotExistingHost:  cmd.String("snapshot-existing-host"),
		InstanceType:          cmd.String("instance-type"),
		CloudInitTimeout:      seconds(cmd.Int("cloud-init-timeout-seconds")),
		CloudInitPollInterval: seconds(cmd.Int("cloud-init-poll-interval-seconds")),
		IAMRole:               cmd.String("iam-role"),
		SecurityGroups:        cmd.StringSlice("security-groups"),
		SSHKeyName:            cmd.String("ssh-key-name"),
		VerifySSHKeyPEM:       !cmd.Bool("no-verify-ssh-key-pem-file"),
		DryRun:                cmd.Bool("dry-run"),
		TerminateOnFailure:    cmd.Bool("terminate-on-failure"),
	}
	if cmd.Args().Len() > 1 {
		return req, fmt.Errorf("build-ami takes at most one NAME, got %v", cmd.Args().Slice())
	}

	if s := cmd.String("root-volume-size"); s != "" {
		size, err := datasize.ParseString(s)
		if err != nil {
			return req, fmt.Errorf("bad --root-volume-size %q: %w", s, err)
		}
		req.RootVolumeSize = size
	}

	cloudConfig, err := config.GetMap("build_ami.cloud_config_data", map[string]any{})
	if err != nil {
		return req, fmt.Errorf("bad build_ami.cloud_config_data in %s: %w", config.Config.Source, err)
	}
	if s := cmd.String("cloud-config-data"); s != "" {
		var flagData map[string]any
		if err := json.Unmarshal([]byte(s), &flagData); err != nil {
			return req, fmt.Errorf("--cloud-config-data must be a JSON object: %w", err)
		}
		cloudConfig = lo.Assign(cloudConfig, flagData)
	}
	req.CloudConfigData = cloudConfig

	skel, _ := config.GetStringSlice("build_ami.rootfs_skel_dirs", nil) //nolint:errcheck
	req.RootfsSkelDirs = append(skel, cmd.StringSlice("rootfs-skel-dirs")...)

	configured, _ := config.GetStringSlice("build_ami.tags", nil) //nolint:errcheck
	req.Tags, err = ami.ParseTags(append(configured, cmd.StringSlice("tags")...))
	if err != nil {
		return req, err
	}

	log.Debugf("build-ami request: name=%s arch=%s base=%s host=%s tags=%v",
		req.Name, req.Architecture, req.BaseAMI, req.SnapshotExistingHost, lo.Keys(req.Tags))
	return req, nil
}
