// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package ami

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/aegea/aegea/internal/aws"
	"github.com/aegea/aegea/internal/launch"
	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/poll"
	"github.com/aegea/aegea/internal/ssm"
)

// CloudInitResultCommand prints the cloud-init result document.
const CloudInitResultCommand = "sudo cat /var/lib/cloud/data/result.json"

const (
	imageWaiterDelay    = 10 * time.Second
	imageWaiterAttempts = 120
)

// ErrNoBaseImage means no base image id could be resolved for the builder.
var ErrNoBaseImage = errors.New("no base image resolved")

// errCloudInitIncomplete marks a readable cloud-init result that still lists
// errors or is not yet complete. It is retried like a failed command.
var errCloudInitIncomplete = errors.New("cloud-init result is not clean")

// ProvisioningError is returned when cloud-init never reported success within
// the attempt budget.
type ProvisioningError struct {
	InstanceID string
	Attempts   int
	Last       error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("cloud-init encountered errors on %s after %d attempts: %v", e.InstanceID, e.Attempts, e.Last)
}

func (e *ProvisioningError) Unwrap() error { return e.Last }

// EC2API is the subset of the EC2 client used by Builder.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	CreateImage(ctx context.Context, params *ec2.CreateImageInput, optFns ...func(*ec2.Options)) (*ec2.CreateImageOutput, error)
	DeregisterImage(ctx context.Context, params *ec2.DeregisterImageInput, optFns ...func(*ec2.Options)) (*ec2.DeregisterImageOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// CommandRunner runs a shell command on an instance.
type CommandRunner interface {
	Run(ctx context.Context, instanceID, command string) (string, error)
}

// InstanceLauncher starts a builder instance.
type InstanceLauncher interface {
	Launch(ctx context.Context, spec launch.Spec) (string, error)
}

// BaseLocator resolves "auto" base images.
type BaseLocator interface {
	Locate(ctx context.Context, distribution, release, arch string) (string, error)
}

// Result describes a built image, or the plan of a dry run.
type Result struct {
	ImageID      string
	Name         string
	BaseImageID  string
	InstanceType string
	DryRun       bool
	Tags         map[string]string
}

// Fields flattens the result for printing. Tags sit next to ImageID.
func (r *Result) Fields() map[string]any {
	f := map[string]any{"Name": r.Name}
	for k, v := range r.Tags {
		f[k] = v
	}
	if r.DryRun {
		f["DryRun"] = true
		f["Base"] = r.BaseImageID
		f["InstanceType"] = r.InstanceType
		return f
	}
	f["ImageID"] = r.ImageID
	return f
}

// Builder turns a base image into a new image by booting a builder instance,
// waiting for cloud-init and snapshotting it.
type Builder struct {
	EC2      EC2API
	SSM      CommandRunner
	Launcher InstanceLauncher
	Catalog  BaseLocator
	Identity aws.CallerIdentityAPI
	Version  string

	// Progress receives wait indicators. Nil discards them.
	Progress io.Writer
	// ImageWaiterOptions tune the ImageAvailable waiter.
	ImageWaiterOptions []func(*ec2.ImageAvailableWaiterOptions)
	// AvailablePollInterval spaces the final image state checks. Zero means
	// one second.
	AvailablePollInterval time.Duration

	now func() time.Time
}

// builder is the instance an image is taken from.
type builder struct {
	instanceID  string
	baseImageID string
	launched    bool
}

func (b *Builder) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}

func (b *Builder) progress() io.Writer {
	if b.Progress == nil {
		return io.Discard
	}
	return b.Progress
}

// Build runs the whole build. Errors before image creation leave the builder
// running unless TerminateOnFailure is set and the builder was launched by
// this call. A reused host is only terminated after success.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	req = req.withDefaults(b.clock())
	if err := req.validate(); err != nil {
		return nil, err
	}

	src, err := b.resolveSource(ctx, req)
	if err != nil {
		return nil, err
	}
	if src.baseImageID == "" {
		return nil, ErrNoBaseImage
	}

	base, err := b.describeImage(ctx, src.baseImageID)
	if err != nil {
		return nil, err
	}

	if req.DryRun {
		log.Infof("dry run: would build %s from %s on %s", req.Name, src.baseImageID, req.InstanceType)
		return &Result{
			Name:         req.Name,
			BaseImageID:  src.baseImageID,
			InstanceType: req.InstanceType,
			DryRun:       true,
			Tags:         req.Tags,
		}, nil
	}

	if src.instanceID == "" {
		id, err := b.Launcher.Launch(ctx, launch.Spec{
			Hostname:       builderHostname(req.Name, b.clock()),
			ImageID:        src.baseImageID,
			InstanceType:   req.InstanceType,
			KeyName:        req.SSHKeyName,
			VerifyKeyPEM:   req.VerifySSHKeyPEM,
			IAMRole:        req.IAMRole,
			SecurityGroups: req.SecurityGroups,
			RootDevice:     awsv2.ToString(base.RootDeviceName),
			RootVolumeSize: req.RootVolumeSize,
			CloudConfig:    req.CloudConfigData,
			RootfsSkelDirs: req.RootfsSkelDirs,
			Tags:           req.Tags,
		})
		if err != nil {
			// The launcher may return an id for an instance that never
			// reached running.
			if id != "" {
				b.terminateOnFailure(ctx, req, builder{instanceID: id, launched: true})
			}
			return nil, err
		}
		src.instanceID = id
		src.launched = true
	}

	imageID, tags, err := b.snapshot(ctx, req, src, base)
	if err != nil {
		return nil, err
	}

	if err := b.waitAvailable(ctx, imageID); err != nil {
		return nil, err
	}

	if err := b.terminate(ctx, src.instanceID); err != nil {
		return nil, err
	}

	return &Result{ImageID: imageID, Name: req.Name, BaseImageID: src.baseImageID, InstanceType: req.InstanceType, Tags: tags}, nil
}

// snapshot waits for provisioning and creates and tags the image.
func (b *Builder) snapshot(ctx context.Context, req Request, src builder, base types.Image) (string, map[string]string, error) {
	if err := b.waitProvisioned(ctx, req, src.instanceID); err != nil {
		b.terminateOnFailure(ctx, req, src)
		return "", nil, err
	}

	owner, err := aws.CallerUsername(ctx, b.Identity)
	if err != nil {
		b.terminateOnFailure(ctx, req, src)
		return "", nil, err
	}

	if err := b.deregisterExisting(ctx, req.Name); err != nil {
		b.terminateOnFailure(ctx, req, src)
		return "", nil, err
	}

	// A reused host keeps its current root volume size.
	size := req.RootVolumeSize
	if !src.launched {
		size = 0
	}
	out, err := b.EC2.CreateImage(ctx, &ec2.CreateImageInput{
		InstanceId:          awsv2.String(src.instanceID),
		Name:                awsv2.String(req.Name),
		Description:         awsv2.String("Built by aegea for " + owner),
		BlockDeviceMappings: launch.BlockDeviceMappings(awsv2.ToString(base.RootDeviceName), size),
	})
	if err != nil {
		b.terminateOnFailure(ctx, req, src)
		return "", nil, fmt.Errorf("failed to create image %s from %s: %w", req.Name, src.instanceID, err)
	}
	imageID := awsv2.ToString(out.ImageId)
	log.Infof("creating image %s (%s) from %s", imageID, req.Name, src.instanceID)

	tags := lo.Assign(req.Tags, map[string]string{
		"Owner":           owner,
		"AegeaVersion":    b.Version,
		"Base":            src.baseImageID,
		"BaseName":        awsv2.ToString(base.Name),
		"BaseDescription": awsv2.ToString(base.Description),
	})
	if _, err := b.EC2.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{imageID},
		Tags:      aws.EC2Tags(tags),
	}); err != nil {
		return "", nil, fmt.Errorf("failed to tag image %s: %w", imageID, err)
	}

	return imageID, tags, nil
}

func (b *Builder) resolveSource(ctx context.Context, req Request) (builder, error) {
	if req.SnapshotExistingHost != "" {
		inst, err := b.resolveInstance(ctx, req.SnapshotExistingHost)
		if err != nil {
			return builder{}, err
		}
		return builder{
			instanceID:  awsv2.ToString(inst.InstanceId),
			baseImageID: awsv2.ToString(inst.ImageId),
		}, nil
	}

	if req.BaseAMI != "auto" {
		return builder{baseImageID: req.BaseAMI}, nil
	}

	name, release, err := ParseDistribution(req.BaseAMIDistribution)
	if err != nil {
		return builder{}, err
	}
	id, err := b.Catalog.Locate(ctx, name, release, req.Architecture)
	if err != nil {
		return builder{}, err
	}
	return builder{baseImageID: id}, nil
}

// resolveInstance finds a host by instance id or Name tag.
func (b *Builder) resolveInstance(ctx context.Context, host string) (types.Instance, error) {
	in := &ec2.DescribeInstancesInput{}
	if strings.HasPrefix(host, "i-") {
		in.InstanceIds = []string{host}
	} else {
		in.Filters = []types.Filter{
			{Name: awsv2.String("tag:Name"), Values: []string{host}},
			{Name: awsv2.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		}
	}

	out, err := b.EC2.DescribeInstances(ctx, in)
	if err != nil {
		return types.Instance{}, fmt.Errorf("failed to resolve host %s: %w", host, err)
	}
	instances := lo.FlatMap(out.Reservations, func(r types.Reservation, _ int) []types.Instance {
		return r.Instances
	})
	switch len(instances) {
	case 0:
		return types.Instance{}, fmt.Errorf("host %s not found", host)
	case 1:
		return instances[0], nil
	default:
		ids := lo.Map(instances, func(i types.Instance, _ int) string { return awsv2.ToString(i.InstanceId) })
		return types.Instance{}, fmt.Errorf("host %s is ambiguous: %v", host, ids)
	}
}

func (b *Builder) describeImage(ctx context.Context, id string) (types.Image, error) {
	out, err := b.EC2.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{id}})
	if err != nil {
		return types.Image{}, fmt.Errorf("failed to describe image %s: %w", id, err)
	}
	if len(out.Images) == 0 {
		return types.Image{}, fmt.Errorf("image %s not found", id)
	}
	return out.Images[0], nil
}

// waitProvisioned polls the cloud-init result until it reports no errors.
func (b *Builder) waitProvisioned(ctx context.Context, req Request, instanceID string) error {
	attempts := poll.Attempts(req.CloudInitTimeout, req.CloudInitPollInterval)
	fmt.Fprintf(b.progress(), "Waiting %s for cloud-init on %s ...", req.CloudInitTimeout, instanceID)

	err := poll.Until(ctx, poll.Config{
		Interval:    req.CloudInitPollInterval,
		MaxAttempts: attempts,
		Transient: func(err error) bool {
			return ssm.IsTransient(err) || errors.Is(err, errCloudInitIncomplete)
		},
		Progress: func(attempt int, err error) {
			fmt.Fprint(b.progress(), ".")
			log.Debugf("cloud-init attempt %d/%d on %s: %v", attempt, attempts, instanceID, err)
		},
	}, func(ctx context.Context) error {
		return b.cloudInitClean(ctx, instanceID)
	})

	var exhausted *poll.ExhaustedError
	switch {
	case err == nil:
		fmt.Fprintln(b.progress(), "OK")
		return nil
	case errors.As(err, &exhausted):
		fmt.Fprintln(b.progress())
		return &ProvisioningError{InstanceID: instanceID, Attempts: exhausted.Attempts, Last: exhausted.Last}
	default:
		fmt.Fprintln(b.progress())
		return err
	}
}

// cloudInitClean reads result.json and succeeds when v1.errors is an empty
// array.
func (b *Builder) cloudInitClean(ctx context.Context, instanceID string) error {
	out, err := b.SSM.Run(ctx, instanceID, CloudInitResultCommand)
	if err != nil {
		return err
	}
	if !gjson.Valid(out) {
		return fmt.Errorf("%w: unreadable result", errCloudInitIncomplete)
	}
	errs := gjson.Get(out, "v1.errors")
	if !errs.IsArray() {
		return fmt.Errorf("%w: no v1.errors", errCloudInitIncomplete)
	}
	if n := len(errs.Array()); n > 0 {
		return fmt.Errorf("%w: %d errors: %s", errCloudInitIncomplete, n, errs.Raw)
	}
	return nil
}

// deregisterExisting removes images owned by this account named name.
func (b *Builder) deregisterExisting(ctx context.Context, name string) error {
	out, err := b.EC2.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: []types.Filter{{Name: awsv2.String("name"), Values: []string{name}}},
	})
	if err != nil {
		return fmt.Errorf("failed to look up existing images named %s: %w", name, err)
	}
	for _, img := range out.Images {
		id := awsv2.ToString(img.ImageId)
		log.Infof("deleting existing image %s (%s)", id, name)
		if _, err := b.EC2.DeregisterImage(ctx, &ec2.DeregisterImageInput{ImageId: img.ImageId}); err != nil {
			return fmt.Errorf("failed to deregister %s: %w", id, err)
		}
	}
	return nil
}

// waitAvailable runs the SDK waiter and then checks the image state directly
// until it reads available.
func (b *Builder) waitAvailable(ctx context.Context, imageID string) error {
	log.Infof("waiting for %s to become available", imageID)

	opts := append([]func(*ec2.ImageAvailableWaiterOptions){func(o *ec2.ImageAvailableWaiterOptions) {
		o.MinDelay = imageWaiterDelay
		o.MaxDelay = imageWaiterDelay
	}}, b.ImageWaiterOptions...)
	waiter := ec2.NewImageAvailableWaiter(b.EC2, opts...)
	in := &ec2.DescribeImagesInput{ImageIds: []string{imageID}}
	if err := waiter.Wait(ctx, in, imageWaiterDelay*imageWaiterAttempts); err != nil {
		return fmt.Errorf("image %s did not become available: %w", imageID, err)
	}

	interval := b.AvailablePollInterval
	if interval <= 0 {
		interval = time.Second
	}
	err := poll.Until(ctx, poll.Config{
		Interval:    interval,
		MaxAttempts: poll.Attempts(imageWaiterDelay*imageWaiterAttempts, interval),
		Progress:    func(int, error) { fmt.Fprint(b.progress(), ".") },
	}, func(ctx context.Context) error {
		img, err := b.describeImage(ctx, imageID)
		if err != nil {
			return err
		}
		switch img.State {
		case types.ImageStateAvailable:
			return nil
		case types.ImageStateFailed, types.ImageStateError, types.ImageStateInvalid, types.ImageStateDeregistered:
			return fmt.Errorf("image %s entered state %s", imageID, img.State)
		default:
			return poll.ErrNotReady
		}
	})
	if err != nil {
		return fmt.Errorf("image %s did not become available: %w", imageID, err)
	}
	return nil
}

func (b *Builder) terminate(ctx context.Context, instanceID string) error {
	if _, err := b.EC2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{instanceID}}); err != nil {
		return fmt.Errorf("failed to terminate builder %s: %w", instanceID, err)
	}
	log.Infof("terminated builder %s", instanceID)
	return nil
}

// terminateOnFailure cleans up a launched builder when asked to. Reused hosts
// and interrupted runs are left alone.
func (b *Builder) terminateOnFailure(ctx context.Context, req Request, src builder) {
	if !req.TerminateOnFailure || !src.launched || ctx.Err() != nil {
		if src.instanceID != "" {
			log.Warnf("builder %s left running", src.instanceID)
		}
		return
	}
	if err := b.terminate(ctx, src.instanceID); err != nil {
		log.WithError(err).Warnf("cleanup after failure")
	}
}
