// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package ami

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegea/aegea/internal/aws"
	"github.com/aegea/aegea/internal/launch"
	"github.com/aegea/aegea/internal/ssm"
)

const cleanResult = `{"v1": {"datasource": "DataSourceEc2", "errors": []}}`

type fakeEC2 struct {
	base      types.Image
	instances []types.Instance
	existing  []types.Image
	// imageStates answers DescribeImages for the new image in order,
	// repeating the last entry. Empty means always available.
	imageStates []types.ImageState

	imageDescribes int
	calls        []string
	created      []*ec2.CreateImageInput
	deregistered []string
	tagged       []*ec2.CreateTagsInput
	terminated   []string
}

func newFakeEC2() *fakeEC2 {
	return &fakeEC2{
		base: types.Image{
			ImageId:        awsv2.String("ami-base"),
			Name:           awsv2.String("ubuntu-jammy-22.04"),
			Description:    awsv2.String("Canonical, Ubuntu, 22.04 LTS"),
			RootDeviceName: awsv2.String("/dev/sda1"),
			State:          types.ImageStateAvailable,
		},
	}
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.calls = append(f.calls, "DescribeInstances")
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{{Instances: f.instances}}}, nil
}

func (f *fakeEC2) DescribeImages(_ context.Context, in *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	if slices.Contains(in.Owners, "self") {
		f.calls = append(f.calls, "DescribeImages(self)")
		return &ec2.DescribeImagesOutput{Images: f.existing}, nil
	}
	out := &ec2.DescribeImagesOutput{}
	for _, id := range in.ImageIds {
		if id == awsv2.ToString(f.base.ImageId) {
			out.Images = append(out.Images, f.base)
			continue
		}
		state := types.ImageStateAvailable
		if len(f.imageStates) > 0 {
			state = f.imageStates[min(f.imageDescribes, len(f.imageStates)-1)]
		}
		f.imageDescribes++
		out.Images = append(out.Images, types.Image{ImageId: awsv2.String(id), State: state})
	}
	return out, nil
}

func (f *fakeEC2) CreateImage(_ context.Context, in *ec2.CreateImageInput, _ ...func(*ec2.Options)) (*ec2.CreateImageOutput, error) {
	f.calls = append(f.calls, "CreateImage")
	f.created = append(f.created, in)
	return &ec2.CreateImageOutput{ImageId: awsv2.String("ami-new")}, nil
}

func (f *fakeEC2) DeregisterImage(_ context.Context, in *ec2.DeregisterImageInput, _ ...func(*ec2.Options)) (*ec2.DeregisterImageOutput, error) {
	f.calls = append(f.calls, "DeregisterImage")
	f.deregistered = append(f.deregistered, awsv2.ToString(in.ImageId))
	return &ec2.DeregisterImageOutput{}, nil
}

func (f *fakeEC2) CreateTags(_ context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	f.tagged = append(f.tagged, in)
	return &ec2.CreateTagsOutput{}, nil
}

func (f *fakeEC2) TerminateInstances(_ context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.terminated = append(f.terminated, in.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, nil
}

// scriptedSSM answers attempt n with script[n], repeating the last entry.
type scriptedSSM struct {
	script []func() (string, error)
	calls  int
}

func (s *scriptedSSM) Run(_ context.Context, _, command string) (string, error) {
	i := min(s.calls, len(s.script)-1)
	s.calls++
	return s.script[i]()
}

func clean() (string, error) { return cleanResult, nil }

func unreachable() (string, error) {
	return "", fmt.Errorf("%w: i-new", ssm.ErrInstanceUnreachable)
}

func commandFailed() (string, error) {
	return "", &ssm.CommandFailedError{InstanceID: "i-new", Status: "Failed", ExitCode: 1}
}

func withErrors() (string, error) {
	return `{"v1": {"errors": ["module apt failed"]}}`, nil
}

type fakeLauncher struct {
	specs []launch.Spec
	err   error
}

func (l *fakeLauncher) Launch(_ context.Context, spec launch.Spec) (string, error) {
	l.specs = append(l.specs, spec)
	if l.err != nil {
		return "", l.err
	}
	return "i-new", nil
}

type fakeCatalog struct {
	id    string
	calls int
}

func (c *fakeCatalog) Locate(_ context.Context, _, _, _ string) (string, error) {
	c.calls++
	return c.id, nil
}

type fakeSTS struct{}

func (fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Arn: awsv2.String("arn:aws:iam::123456789012:user/dana")}, nil
}

type harness struct {
	ec2      *fakeEC2
	ssm      *scriptedSSM
	launcher *fakeLauncher
	catalog  *fakeCatalog
	builder  *Builder
}

func newHarness(script ...func() (string, error)) *harness {
	h := &harness{
		ec2:      newFakeEC2(),
		ssm:      &scriptedSSM{script: script},
		launcher: &fakeLauncher{},
		catalog:  &fakeCatalog{id: "ami-base"},
	}
	h.builder = &Builder{
		EC2:                   h.ec2,
		SSM:                   h.ssm,
		Launcher:              h.launcher,
		Catalog:               h.catalog,
		Identity:              fakeSTS{},
		Version:               "1.2.3",
		AvailablePollInterval: time.Millisecond,
		now:                   func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) },
	}
	return h
}

func baseRequest() Request {
	return Request{
		Name:                  "my-image",
		Architecture:          "x86_64",
		BaseAMIDistribution:   "Ubuntu:22.04",
		InstanceType:          "c5.xlarge",
		Tags:                  map[string]string{"Team": "ops"},
		RootfsSkelDirs:        []string{"/srv/skel"},
		CloudInitTimeout:      20 * time.Millisecond,
		CloudInitPollInterval: time.Millisecond,
		IAMRole:               "aegea.build_ami",
		RootVolumeSize:        64 * datasize.GB,
	}
}

func TestBuildSucceedsOnThirdAttempt(t *testing.T) {
	h := newHarness(unreachable, commandFailed, clean)
	h.ec2.existing = []types.Image{{ImageId: awsv2.String("ami-old"), Name: awsv2.String("my-image")}}

	res, err := h.builder.Build(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, 3, h.ssm.calls)
	assert.Equal(t, "ami-new", res.ImageID)
	assert.Equal(t, "my-image", res.Name)

	assert.Equal(t, "dana", res.Tags["Owner"])
	assert.Equal(t, "1.2.3", res.Tags["AegeaVersion"])
	assert.Equal(t, "ami-base", res.Tags["Base"])
	assert.Equal(t, "ubuntu-jammy-22.04", res.Tags["BaseName"])
	assert.Equal(t, "Canonical, Ubuntu, 22.04 LTS", res.Tags["BaseDescription"])
	assert.Equal(t, "ops", res.Tags["Team"])

	assert.Equal(t, []string{"i-new"}, h.ec2.terminated)

	assert.Equal(t, []string{"ami-old"}, h.ec2.deregistered)
	dereg := slices.Index(h.ec2.calls, "DeregisterImage")
	create := slices.Index(h.ec2.calls, "CreateImage")
	require.GreaterOrEqual(t, dereg, 0)
	assert.Less(t, dereg, create, "prior image deregistered before CreateImage")

	require.Len(t, h.ec2.created, 1)
	ci := h.ec2.created[0]
	assert.Equal(t, "i-new", awsv2.ToString(ci.InstanceId))
	assert.Equal(t, "Built by aegea for dana", awsv2.ToString(ci.Description))
	assert.Equal(t, "/dev/sda1", awsv2.ToString(ci.BlockDeviceMappings[0].DeviceName))

	require.Len(t, h.ec2.tagged, 1)
	assert.Equal(t, []string{"ami-new"}, h.ec2.tagged[0].Resources)
	assert.Equal(t, "dana", aws.TagValue(h.ec2.tagged[0].Tags, "Owner"))

	require.Len(t, h.launcher.specs, 1)
	spec := h.launcher.specs[0]
	assert.Equal(t, "ami-base", spec.ImageID)
	assert.Equal(t, "/dev/sda1", spec.RootDevice)
	assert.Equal(t, "aegea-build-ami-my-image-1714555800", spec.Hostname)
	assert.Equal(t, map[string]string{"Team": "ops"}, spec.Tags, "request tags also land on the builder")
	assert.Equal(t, []string{"/srv/skel"}, spec.RootfsSkelDirs)
}

func TestBuildWaitsForImageState(t *testing.T) {
	tests := []struct {
		name          string
		states        []types.ImageState
		wantErr       string
		wantDescribes int
	}{
		{
			name:          "pending after waiter",
			states:        []types.ImageState{types.ImageStateAvailable, types.ImageStatePending, types.ImageStatePending, types.ImageStateAvailable},
			wantDescribes: 4,
		},
		{
			name:          "failed",
			states:        []types.ImageState{types.ImageStateAvailable, types.ImageStatePending, types.ImageStateFailed},
			wantErr:       "entered state failed",
			wantDescribes: 3,
		},
		{
			name:          "error",
			states:        []types.ImageState{types.ImageStateAvailable, types.ImageStateError},
			wantErr:       "entered state error",
			wantDescribes: 2,
		},
		{
			name:          "deregistered",
			states:        []types.ImageState{types.ImageStateAvailable, types.ImageStateDeregistered},
			wantErr:       "entered state deregistered",
			wantDescribes: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(clean)
			h.ec2.imageStates = tt.states
			req := baseRequest()
			req.TerminateOnFailure = true

			res, err := h.builder.Build(context.Background(), req)
			assert.Equal(t, tt.wantDescribes, h.ec2.imageDescribes)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, res)
				assert.Empty(t, h.ec2.terminated, "builder kept for inspection")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ami-new", res.ImageID)
			assert.Equal(t, []string{"i-new"}, h.ec2.terminated)
		})
	}
}

func TestBuildNeverProvisions(t *testing.T) {
	h := newHarness(withErrors)

	_, err := h.builder.Build(context.Background(), baseRequest())

	var perr *ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 20, perr.Attempts)
	assert.Equal(t, 20, h.ssm.calls)
	assert.Equal(t, "i-new", perr.InstanceID)
	assert.Contains(t, err.Error(), "cloud-init encountered errors")

	assert.Empty(t, h.ec2.terminated, "builder left running by default")
	assert.Empty(t, h.ec2.created)
}

func TestBuildTerminateOnFailure(t *testing.T) {
	h := newHarness(commandFailed)
	req := baseRequest()
	req.TerminateOnFailure = true

	_, err := h.builder.Build(context.Background(), req)

	var perr *ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []string{"i-new"}, h.ec2.terminated)
}

func TestBuildFatalProvisioningError(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDeniedException"}
	h := newHarness(func() (string, error) { return "", denied })

	_, err := h.builder.Build(context.Background(), baseRequest())
	require.Error(t, err)

	var perr *ProvisioningError
	assert.False(t, errors.As(err, &perr))
	assert.Equal(t, "AccessDeniedException", aws.ErrorCode(err))
	assert.Equal(t, 1, h.ssm.calls)
	assert.Empty(t, h.ec2.created)
}

func TestBuildExistingHost(t *testing.T) {
	h := newHarness(clean)
	h.ec2.instances = []types.Instance{{InstanceId: awsv2.String("i-host"), ImageId: awsv2.String("ami-base")}}
	req := baseRequest()
	req.SnapshotExistingHost = "build-host"

	res, err := h.builder.Build(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, h.launcher.specs)
	assert.Zero(t, h.catalog.calls)
	assert.Equal(t, "ami-base", res.Tags["Base"])
	assert.Equal(t, []string{"i-host"}, h.ec2.terminated, "reused host terminated after success")
	require.Len(t, h.ec2.created, 1)
	assert.Nil(t, h.ec2.created[0].BlockDeviceMappings[0].Ebs.VolumeSize)
}

func TestBuildExistingHostNotTerminatedOnFailure(t *testing.T) {
	h := newHarness(withErrors)
	h.ec2.instances = []types.Instance{{InstanceId: awsv2.String("i-host"), ImageId: awsv2.String("ami-base")}}
	req := baseRequest()
	req.SnapshotExistingHost = "i-host"
	req.TerminateOnFailure = true

	_, err := h.builder.Build(context.Background(), req)
	var perr *ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, h.ec2.terminated)
}

func TestBuildAmbiguousHost(t *testing.T) {
	h := newHarness(clean)
	h.ec2.instances = []types.Instance{
		{InstanceId: awsv2.String("i-1"), ImageId: awsv2.String("ami-base")},
		{InstanceId: awsv2.String("i-2"), ImageId: awsv2.String("ami-base")},
	}
	req := baseRequest()
	req.SnapshotExistingHost = "web"

	_, err := h.builder.Build(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Zero(t, h.ssm.calls)
}

func TestBuildWithoutBaseImage(t *testing.T) {
	h := newHarness(clean)
	h.catalog.id = ""

	_, err := h.builder.Build(context.Background(), baseRequest())
	require.ErrorIs(t, err, ErrNoBaseImage)
	assert.Empty(t, h.launcher.specs)
	assert.Empty(t, h.ec2.created)
}

func TestBuildExplicitBaseImage(t *testing.T) {
	h := newHarness(clean)
	req := baseRequest()
	req.BaseAMI = "ami-base"

	_, err := h.builder.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, h.catalog.calls)
	require.Len(t, h.launcher.specs, 1)
	assert.Equal(t, "ami-base", h.launcher.specs[0].ImageID)
}

func TestBuildDryRun(t *testing.T) {
	h := newHarness(clean)
	req := baseRequest()
	req.DryRun = true

	res, err := h.builder.Build(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, "ami-base", res.BaseImageID)
	assert.Empty(t, h.launcher.specs)
	assert.Zero(t, h.ssm.calls)

	f := res.Fields()
	assert.Equal(t, true, f["DryRun"])
	assert.NotContains(t, f, "ImageID")
}

func TestBuildLaunchFailure(t *testing.T) {
	h := newHarness(clean)
	h.launcher.err = errors.New("InsufficientInstanceCapacity")

	_, err := h.builder.Build(context.Background(), baseRequest())
	require.Error(t, err)
	assert.Zero(t, h.ssm.calls)
	assert.Empty(t, h.ec2.terminated)
}

func TestBuildDefaultName(t *testing.T) {
	h := newHarness(clean)
	req := baseRequest()
	req.Name = ""

	res, err := h.builder.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "aegea-x86_64-2024-05-01-09-30", res.Name)
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{name: "architecture", mutate: func(r *Request) { r.Architecture = "sparc" }},
		{name: "interval", mutate: func(r *Request) { r.CloudInitPollInterval = 0 }},
		{name: "timeout", mutate: func(r *Request) { r.CloudInitTimeout = 0 }},
		{name: "distribution", mutate: func(r *Request) { r.BaseAMIDistribution = "Gentoo:1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(clean)
			req := baseRequest()
			tt.mutate(&req)
			_, err := h.builder.Build(context.Background(), req)
			require.Error(t, err)
			assert.Empty(t, h.launcher.specs)
		})
	}
}

func TestCloudInitClean(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		wantErr bool
	}{
		{name: "clean", out: cleanResult},
		{name: "errors", out: `{"v1": {"errors": ["x"]}}`, wantErr: true},
		{name: "no errors key", out: `{"v1": {}}`, wantErr: true},
		{name: "garbage", out: `{"v1": `, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Builder{SSM: &scriptedSSM{script: []func() (string, error){
				func() (string, error) { return tt.out, nil },
			}}}
			err := b.cloudInitClean(context.Background(), "i-1")
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errCloudInitIncomplete)
		})
	}
}

func TestParseTags(t *testing.T) {
	tags, err := ParseTags([]string{"Team=ops", "Note=a=b", "Empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Team": "ops", "Note": "a=b", "Empty": ""}, tags)

	_, err = ParseTags([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseTags([]string{"=x"})
	assert.Error(t, err)
}

func TestBuilderHostname(t *testing.T) {
	assert.Equal(t, "aegea-build-ami-img-v1-2-1700000000",
		builderHostname("img_v1.2", time.Unix(1700000000, 0)))
}
