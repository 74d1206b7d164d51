// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package launch

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/aegea/aegea/internal/aws"
	"github.com/aegea/aegea/internal/log"
)

// DefaultMaxWait bounds the wait for a launched instance to reach running.
const DefaultMaxWait = 10 * time.Minute

// ephemeralDevices maps instance-store volumes to their device names.
var ephemeralDevices = []string{"/dev/xvdb", "/dev/xvdc", "/dev/xvdd", "/dev/xvde"}

// API is the subset of the EC2 client used by Launcher.
type API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

// KeyEnsurer makes sure an SSH key pair exists before launch.
type KeyEnsurer interface {
	Ensure(ctx context.Context, name string, verifyPEM bool) (string, error)
}

// Spec describes one instance to launch.
type Spec struct {
	Hostname       string
	ImageID        string
	InstanceType   string
	KeyName        string
	VerifyKeyPEM   bool
	IAMRole        string
	SecurityGroups []string
	// RootDevice is the image's root device name. Looked up when empty.
	RootDevice     string
	RootVolumeSize datasize.ByteSize
	CloudConfig    map[string]any
	// RootfsSkelDirs are copied onto the instance's root filesystem through
	// cloud-config write_files.
	RootfsSkelDirs []string
	Tags           map[string]string
}

// Launcher starts instances and waits for them to run.
type Launcher struct {
	Client API
	Keys   KeyEnsurer
	// MaxWait bounds the running waiter. Zero means DefaultMaxWait.
	MaxWait       time.Duration
	WaiterOptions []func(*ec2.InstanceRunningWaiterOptions)
}

// Launch runs one instance from spec and returns its id once EC2 reports it
// running.
func (l *Launcher) Launch(ctx context.Context, spec Spec) (string, error) {
	keyName := spec.KeyName
	if l.Keys != nil {
		name, err := l.Keys.Ensure(ctx, spec.KeyName, spec.VerifyKeyPEM)
		if err != nil {
			return "", fmt.Errorf("failed to ensure ssh key: %w", err)
		}
		keyName = name
	}

	rootDevice := spec.RootDevice
	if rootDevice == "" {
		var err error
		if rootDevice, err = l.rootDevice(ctx, spec.ImageID); err != nil {
			return "", err
		}
	}

	cloudConfig := lo.Assign(spec.CloudConfig, map[string]any{"hostname": spec.Hostname})
	if len(spec.RootfsSkelDirs) > 0 {
		files, err := SkelFiles(spec.RootfsSkelDirs)
		if err != nil {
			return "", err
		}
		cloudConfig = withWriteFiles(cloudConfig, files)
	}
	userData, err := UserData(cloudConfig)
	if err != nil {
		return "", err
	}

	tags := lo.Assign(map[string]string{"Name": spec.Hostname}, spec.Tags)
	in := &ec2.RunInstancesInput{
		ImageId:             awsv2.String(spec.ImageID),
		InstanceType:        types.InstanceType(spec.InstanceType),
		MinCount:            awsv2.Int32(1),
		MaxCount:            awsv2.Int32(1),
		UserData:            awsv2.String(userData),
		ClientToken:         awsv2.String(uuid.NewString()),
		BlockDeviceMappings: BlockDeviceMappings(rootDevice, spec.RootVolumeSize),
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         aws.EC2Tags(tags),
		}},
	}
	if keyName != "" {
		in.KeyName = awsv2.String(keyName)
	}
	if spec.IAMRole != "" {
		in.IamInstanceProfile = &types.IamInstanceProfileSpecification{Name: awsv2.String(spec.IAMRole)}
	}
	for _, sg := range spec.SecurityGroups {
		if strings.HasPrefix(sg, "sg-") {
			in.SecurityGroupIds = append(in.SecurityGroupIds, sg)
		} else {
			in.SecurityGroups = append(in.SecurityGroups, sg)
		}
	}

	out, err := l.Client.RunInstances(ctx, in)
	if err != nil {
		return "", fmt.Errorf("failed to launch %s from %s: %w", spec.InstanceType, spec.ImageID, err)
	}
	if len(out.Instances) == 0 {
		return "", fmt.Errorf("launch from %s returned no instances", spec.ImageID)
	}
	id := awsv2.ToString(out.Instances[0].InstanceId)
	log.Infof("launched %s (%s) from %s", id, spec.Hostname, spec.ImageID)

	maxWait := l.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	waiter := ec2.NewInstanceRunningWaiter(l.Client, l.WaiterOptions...)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, maxWait); err != nil {
		return id, fmt.Errorf("instance %s did not reach running: %w", id, err)
	}
	log.Debugf("instance running: id=%s", id)

	return id, nil
}

func (l *Launcher) rootDevice(ctx context.Context, imageID string) (string, error) {
	out, err := l.Client.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{imageID}})
	if err != nil {
		return "", fmt.Errorf("failed to describe image %s: %w", imageID, err)
	}
	if len(out.Images) == 0 {
		return "", fmt.Errorf("image %s not found", imageID)
	}
	return awsv2.ToString(out.Images[0].RootDeviceName), nil
}

// UserData renders cfg as a #cloud-config document, gzips it and returns it
// base64 encoded as RunInstances expects.
func UserData(cfg map[string]any) (string, error) {
	doc, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to render cloud-config: %w", err)
	}

	return gzipBase64(append([]byte("#cloud-config\n"), doc...))
}

func gzipBase64(b []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return "", fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to compress: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// BlockDeviceMappings returns a gp3 root volume of size on rootDevice followed
// by the instance-store volumes. A zero size keeps the image's root volume
// size.
func BlockDeviceMappings(rootDevice string, size datasize.ByteSize) []types.BlockDeviceMapping {
	var bdm []types.BlockDeviceMapping
	if rootDevice != "" {
		ebs := &types.EbsBlockDevice{
			VolumeType:          types.VolumeTypeGp3,
			DeleteOnTermination: awsv2.Bool(true),
		}
		if size > 0 {
			ebs.VolumeSize = awsv2.Int32(int32(math.Ceil(size.GBytes())))
		}
		bdm = append(bdm, types.BlockDeviceMapping{DeviceName: awsv2.String(rootDevice), Ebs: ebs})
	}
	for i, dev := range ephemeralDevices {
		bdm = append(bdm, types.BlockDeviceMapping{
			DeviceName:  awsv2.String(dev),
			VirtualName: awsv2.String(fmt.Sprintf("ephemeral%d", i)),
		})
	}
	return bdm
}
