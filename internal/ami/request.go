// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package ami

import (
	"fmt"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"

	"github.com/aegea/aegea/internal/config"
)

// Architectures are the CPU architectures an image can be built for.
var Architectures = []string{"x86_64", "arm64"}

// Request is one build-ami invocation after flags and config are merged.
type Request struct {
	Name                 string
	Architecture         string
	BaseAMI              string
	BaseAMIDistribution  string
	SnapshotExistingHost string
	InstanceType         string
	Tags                 map[string]string

	CloudInitTimeout      time.Duration
	CloudInitPollInterval time.Duration

	IAMRole         string
	SecurityGroups  []string
	SSHKeyName      string
	VerifySSHKeyPEM bool
	RootVolumeSize  datasize.ByteSize
	CloudConfigData map[string]any
	RootfsSkelDirs  []string

	DryRun             bool
	TerminateOnFailure bool
}

// DefaultName returns aegea-<arch>-YYYY-MM-DD-HH-MM.
func DefaultName(arch string, now time.Time) string {
	return fmt.Sprintf("aegea-%s-%s", arch, now.Format("2006-01-02-15-04"))
}

// ParseTags turns NAME=VALUE pairs into a map. Later pairs win.
func ParseTags(pairs []string) (map[string]string, error) {
	tags := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad tag %q, want NAME=VALUE", p)
		}
		tags[k] = v
	}
	return tags, nil
}

// withDefaults fills the name and builder instance type.
func (r Request) withDefaults(now time.Time) Request {
	if r.Architecture == "" {
		r.Architecture = config.Defaults.BuildAMI.Architecture
	}
	if r.Name == "" {
		r.Name = DefaultName(r.Architecture, now)
	}
	if r.InstanceType == "" {
		r.InstanceType = config.BuilderInstanceType(r.Architecture)
	}
	if r.BaseAMI == "" {
		r.BaseAMI = "auto"
	}
	if r.BaseAMIDistribution == "" {
		r.BaseAMIDistribution = config.Defaults.BuildAMI.BaseAMIDistribution
	}
	return r
}

func (r Request) validate() error {
	if !lo.Contains(Architectures, r.Architecture) {
		return fmt.Errorf("unknown architecture %q, must be one of %v", r.Architecture, Architectures)
	}
	if r.CloudInitPollInterval <= 0 {
		return fmt.Errorf("cloud-init poll interval must be positive, got %s", r.CloudInitPollInterval)
	}
	if r.CloudInitTimeout <= 0 {
		return fmt.Errorf("cloud-init timeout must be positive, got %s", r.CloudInitTimeout)
	}
	if r.InstanceType == "" {
		return fmt.Errorf("no builder instance type configured for %s", r.Architecture)
	}
	return nil
}

// builderHostname names a fresh builder after the image and launch time.
func builderHostname(name string, now time.Time) string {
	h := fmt.Sprintf("aegea-build-ami-%s-%d", name, now.Unix())
	return strings.NewReplacer(".", "-", "_", "-").Replace(h)
}
