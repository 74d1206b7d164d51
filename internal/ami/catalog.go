// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package ami

import (
	"context"
	"fmt"
	"slices"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"

	"github.com/aegea/aegea/internal/cacheutil"
	"github.com/aegea/aegea/internal/log"
)

// ImageAPI is the EC2 call the catalog needs.
type ImageAPI interface {
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

// distribution knows where a Linux distribution publishes its images.
type distribution struct {
	owner string
	// pattern builds a DescribeImages name filter for a release and EC2
	// architecture.
	pattern func(release, arch string) string
}

// debArch maps EC2 architectures to Debian style names.
func debArch(arch string) string {
	if arch == "x86_64" {
		return "amd64"
	}
	return arch
}

var distributions = map[string]distribution{
	"ubuntu": {
		owner: "099720109477",
		pattern: func(release, arch string) string {
			return fmt.Sprintf("ubuntu/images/hvm-ssd*/ubuntu-*-%s-%s-server-*", release, debArch(arch))
		},
	},
	"amazon linux": {
		owner: "137112412989",
		pattern: func(release, arch string) string {
			if release == "2" {
				return fmt.Sprintf("amzn2-ami-hvm-2.0.*-%s-gp2", arch)
			}
			return fmt.Sprintf("al%s-ami-%s.*-kernel-*-%s", release, release, arch)
		},
	},
	"debian": {
		owner: "136693071363",
		pattern: func(release, arch string) string {
			return fmt.Sprintf("debian-%s-%s-*", release, debArch(arch))
		},
	},
}

// Distributions lists the names accepted by ParseDistribution.
func Distributions() []string {
	names := lo.Keys(distributions)
	slices.Sort(names)
	return names
}

// ParseDistribution splits "Ubuntu:22.04" into its distribution and release.
// The distribution name is case insensitive.
func ParseDistribution(s string) (string, string, error) {
	name, release, ok := strings.Cut(s, ":")
	if !ok || name == "" || release == "" {
		return "", "", fmt.Errorf("bad base image distribution %q, want DISTRIBUTION:RELEASE such as Ubuntu:22.04", s)
	}
	if _, known := distributions[strings.ToLower(name)]; !known {
		return "", "", fmt.Errorf("unknown distribution %q, must be one of %v", name, Distributions())
	}
	return name, release, nil
}

// Catalog resolves the newest public image of a distribution release.
type Catalog struct {
	Client ImageAPI
	// Cache holds image ids per region, distribution, release and
	// architecture. Nil disables caching.
	Cache  *cacheutil.Store
	Region string
}

// Locate returns the id of the newest available image matching the
// distribution, release and architecture.
func (c *Catalog) Locate(ctx context.Context, name, release, arch string) (string, error) {
	dist, ok := distributions[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown distribution %q, must be one of %v", name, Distributions())
	}

	key := strings.Join([]string{c.Region, strings.ToLower(name), release, arch}, "/")
	if c.Cache != nil {
		if err := c.Cache.Purge(); err != nil {
			log.WithError(err).Warnf("failed to purge image catalog cache")
		}
		var id string
		if c.Cache.Get(key, &id) && id != "" {
			return id, nil
		}
	}

	pattern := dist.pattern(release, arch)
	out, err := c.Client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{dist.owner},
		Filters: []types.Filter{
			{Name: awsv2.String("name"), Values: []string{pattern}},
			{Name: awsv2.String("architecture"), Values: []string{arch}},
			{Name: awsv2.String("state"), Values: []string{string(types.ImageStateAvailable)}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to search images for %s:%s: %w", name, release, err)
	}
	if len(out.Images) == 0 {
		return "", fmt.Errorf("no %s image found for %s:%s (pattern %s)", arch, name, release, pattern)
	}

	newest := lo.MaxBy(out.Images, func(a, b types.Image) bool {
		return awsv2.ToString(a.CreationDate) > awsv2.ToString(b.CreationDate)
	})
	id := awsv2.ToString(newest.ImageId)
	log.Debugf("located base image: %s:%s/%s -> %s (%s)", name, release, arch, id, awsv2.ToString(newest.Name))

	if c.Cache != nil {
		if err := c.Cache.Put(key, id); err != nil {
			log.WithError(err).Warnf("failed to cache base image lookup")
		}
	}
	return id, nil
}
