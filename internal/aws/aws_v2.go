// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"

	"github.com/aegea/aegea/internal/log"
)

// ErrNoRegion is returned when neither flags, environment nor the shared AWS
// config name a region. The top-level error handler turns it into setup
// instructions.
var ErrNoRegion = errors.New("no AWS region configured")

// options holds optional overrides for AWS config loading.
type options struct {
	profile string
	region  string
	retryer func() awsv2.Retryer
}

// Option customizes how AWS config is loaded.
// Default behavior (no options) inherits the shell environment and shared
// config chain (AWS_PROFILE, ~/.aws/config, ~/.aws/credentials, IMDS, etc.).
type Option func(*options)

// LoadAWSConfig loads AWS SDK v2 config. By default it inherits the shell's
// AWS setup (AWS_PROFILE, shared config, env, IMDS). Options can override
// profile, region, and retryer without changing callers.
func LoadAWSConfig(ctx context.Context, opts ...Option) (awsv2.Config, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log.Debugf("opts applied: profile=%s, region=%s", o.profile, o.region)

	var loadOpts []func(*config.LoadOptions) error
	if o.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(o.profile))
	}
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}
	if o.retryer != nil {
		loadOpts = append(loadOpts, config.WithRetryer(o.retryer))
	}
	log.Debugf("loadOpts built: len=%d", len(loadOpts))

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.Debugf("config load err: err=%v", err)
		return awsv2.Config{}, err
	}
	log.Debugf("config loaded: region=%s", cfg.Region)
	return cfg, nil
}

// Clients bundles the service clients used by aegea commands. They share one
// loaded config.
type Clients struct {
	Config       awsv2.Config
	Profile      string
	EC2          *ec2.Client
	SSM          *ssm.Client
	CostExplorer *costexplorer.Client
	STS          *sts.Client
}

// NewClients loads config and constructs every service client. It fails with
// ErrNoRegion when no region can be resolved.
func NewClients(ctx context.Context, opts ...Option) (*Clients, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := LoadAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		return nil, ErrNoRegion
	}

	c := &Clients{
		Config:       cfg,
		Profile:      ProfileName(o.profile),
		EC2:          ec2.NewFromConfig(cfg),
		SSM:          ssm.NewFromConfig(cfg),
		CostExplorer: costexplorer.NewFromConfig(cfg),
		STS:          sts.NewFromConfig(cfg),
	}
	log.Debugf("aws clients created: profile=%s region=%s", c.Profile, cfg.Region)
	return c, nil
}

// ProfileName returns the effective shared-config profile name: the explicit
// value, else AWS_PROFILE, else "default".
func ProfileName(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("AWS_PROFILE"); p != "" {
		return p
	}
	return "default"
}

// WithProfile sets the shared config profile. Defaults to AWS_PROFILE/env chain.
func WithProfile(profile string) Option {
	return func(o *options) { o.profile = profile }
}

// WithRegion sets the region override. Defaults to env/profile/metadata chain.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithRetryer injects a custom retryer; if not set, SDK defaults are used.
func WithRetryer(newRetryer func() awsv2.Retryer) Option {
	return func(o *options) { o.retryer = newRetryer }
}

// CallerIdentityAPI is the subset of STS used to identify the caller.
type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// CallerUsername returns the IAM user (or assumed-role session) name of the
// current credentials.
func CallerUsername(ctx context.Context, client CallerIdentityAPI) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return UsernameFromARN(awsv2.ToString(out.Arn))
}

// UsernameFromARN extracts the last path element of an IAM or STS principal
// ARN, e.g. "alice" from arn:aws:iam::123456789012:user/ops/alice.
func UsernameFromARN(principal string) (string, error) {
	parsed, err := arn.Parse(principal)
	if err != nil {
		return "", fmt.Errorf("bad principal ARN %q: %w", principal, err)
	}
	parts := strings.Split(parsed.Resource, "/")
	return parts[len(parts)-1], nil
}

// ErrorCode returns the AWS API error code carried by err, or "" if err is
// not an API error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// HasErrorCode reports whether err is an AWS API error with one of codes.
func HasErrorCode(err error, codes ...string) bool {
	code := ErrorCode(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// EC2Tags converts a tag map into EC2 tags ordered by key.
func EC2Tags(m map[string]string) []ec2types.Tag {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return lo.Map(keys, func(k string, _ int) ec2types.Tag {
		return ec2types.Tag{Key: awsv2.String(k), Value: awsv2.String(m[k])}
	})
}

// TagValue returns the value of key in tags, or "".
func TagValue(tags []ec2types.Tag, key string) string {
	for _, t := range tags {
		if awsv2.ToString(t.Key) == key {
			return awsv2.ToString(t.Value)
		}
	}
	return ""
}
