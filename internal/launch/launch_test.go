// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package launch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/aegea/aegea/internal/aws"
)

type fakeEC2 struct {
	runErr  error
	run     []*ec2.RunInstancesInput
	images  int
	waitFor []string
}

func (f *fakeEC2) RunInstances(_ context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.run = append(f.run, in)
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &ec2.RunInstancesOutput{Instances: []types.Instance{{InstanceId: awsv2.String("i-0abc")}}}, nil
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.waitFor = append(f.waitFor, in.InstanceIds...)
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{{
		Instances: []types.Instance{{
			InstanceId: awsv2.String("i-0abc"),
			State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
		}},
	}}}, nil
}

func (f *fakeEC2) DescribeImages(_ context.Context, _ *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	f.images++
	return &ec2.DescribeImagesOutput{Images: []types.Image{{RootDeviceName: awsv2.String("/dev/sda1")}}}, nil
}

type fakeKeys struct {
	calls []string
	err   error
}

func (k *fakeKeys) Ensure(_ context.Context, name string, _ bool) (string, error) {
	k.calls = append(k.calls, name)
	if name == "" {
		name = "aegea.test.host"
	}
	return name, k.err
}

func decodeUserData(t *testing.T, s string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(b)
}

func TestLaunch(t *testing.T) {
	f := &fakeEC2{}
	keys := &fakeKeys{}
	l := &Launcher{Client: f, Keys: keys}

	id, err := l.Launch(context.Background(), Spec{
		Hostname:       "aegea-build-ami-test-1700000000",
		ImageID:        "ami-base",
		InstanceType:   "c5.xlarge",
		IAMRole:        "aegea.build_ami",
		SecurityGroups: []string{"sg-123", "default"},
		RootVolumeSize: 64 * datasize.GB,
		CloudConfig:    map[string]any{"packages": []string{"jq"}},
		Tags:           map[string]string{"Purpose": "build"},
	})
	require.NoError(t, err)
	assert.Equal(t, "i-0abc", id)

	assert.Equal(t, []string{""}, keys.calls)
	assert.Equal(t, 1, f.images, "root device looked up")
	assert.Equal(t, []string{"i-0abc"}, f.waitFor)

	require.Len(t, f.run, 1)
	in := f.run[0]
	assert.Equal(t, "ami-base", awsv2.ToString(in.ImageId))
	assert.Equal(t, types.InstanceType("c5.xlarge"), in.InstanceType)
	assert.Equal(t, "aegea.test.host", awsv2.ToString(in.KeyName))
	assert.Equal(t, "aegea.build_ami", awsv2.ToString(in.IamInstanceProfile.Name))
	assert.Equal(t, []string{"sg-123"}, in.SecurityGroupIds)
	assert.Equal(t, []string{"default"}, in.SecurityGroups)
	assert.Len(t, awsv2.ToString(in.ClientToken), 36)

	require.Len(t, in.TagSpecifications, 1)
	tags := in.TagSpecifications[0].Tags
	assert.Equal(t, "aegea-build-ami-test-1700000000", aws.TagValue(tags, "Name"))
	assert.Equal(t, "build", aws.TagValue(tags, "Purpose"))

	require.NotEmpty(t, in.BlockDeviceMappings)
	assert.Equal(t, "/dev/sda1", awsv2.ToString(in.BlockDeviceMappings[0].DeviceName))
	assert.Equal(t, int32(64), awsv2.ToInt32(in.BlockDeviceMappings[0].Ebs.VolumeSize))

	ud := decodeUserData(t, awsv2.ToString(in.UserData))
	assert.Equal(t, "#cloud-config\nhostname: aegea-build-ami-test-1700000000\npackages:\n    - jq\n", ud)
}

func TestLaunchClientTokensDiffer(t *testing.T) {
	f := &fakeEC2{}
	l := &Launcher{Client: f}
	spec := Spec{Hostname: "h", ImageID: "ami-1", InstanceType: "t3.micro", RootDevice: "/dev/xvda"}

	_, err := l.Launch(context.Background(), spec)
	require.NoError(t, err)
	_, err = l.Launch(context.Background(), spec)
	require.NoError(t, err)

	require.Len(t, f.run, 2)
	assert.NotEqual(t, awsv2.ToString(f.run[0].ClientToken), awsv2.ToString(f.run[1].ClientToken))
	assert.Zero(t, f.images, "explicit root device skips lookup")
	assert.Nil(t, f.run[0].IamInstanceProfile)
	assert.Nil(t, f.run[0].KeyName)
}

func TestLaunchErrors(t *testing.T) {
	t.Run("key", func(t *testing.T) {
		f := &fakeEC2{}
		l := &Launcher{Client: f, Keys: &fakeKeys{err: errors.New("conflict")}}
		_, err := l.Launch(context.Background(), Spec{ImageID: "ami-1"})
		require.Error(t, err)
		assert.Empty(t, f.run)
	})

	t.Run("run", func(t *testing.T) {
		f := &fakeEC2{runErr: errors.New("InsufficientInstanceCapacity")}
		l := &Launcher{Client: f}
		_, err := l.Launch(context.Background(), Spec{ImageID: "ami-1", RootDevice: "/dev/xvda"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "InsufficientInstanceCapacity")
		assert.Empty(t, f.waitFor)
	})
}

func TestBlockDeviceMappings(t *testing.T) {
	bdm := BlockDeviceMappings("/dev/xvda", 100*datasize.GB)
	require.Len(t, bdm, 5)

	root := bdm[0]
	assert.Equal(t, "/dev/xvda", awsv2.ToString(root.DeviceName))
	assert.Equal(t, types.VolumeTypeGp3, root.Ebs.VolumeType)
	assert.Equal(t, int32(100), awsv2.ToInt32(root.Ebs.VolumeSize))

	for i, dev := range []string{"/dev/xvdb", "/dev/xvdc", "/dev/xvdd", "/dev/xvde"} {
		assert.Equal(t, dev, awsv2.ToString(bdm[i+1].DeviceName))
		assert.Equal(t, "ephemeral"+string(rune('0'+i)), awsv2.ToString(bdm[i+1].VirtualName))
		assert.Nil(t, bdm[i+1].Ebs)
	}

	noSize := BlockDeviceMappings("/dev/xvda", 0)
	assert.Nil(t, noSize[0].Ebs.VolumeSize)

	assert.Len(t, BlockDeviceMappings("", 0), 4)
}

func TestUserData(t *testing.T) {
	ud, err := UserData(map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)
	assert.Equal(t, "#cloud-config\na: x\nb: 1\n", decodeUserData(t, ud))
}

func TestLaunchHostnameWins(t *testing.T) {
	f := &fakeEC2{}
	l := &Launcher{Client: f}

	_, err := l.Launch(context.Background(), Spec{
		Hostname:     "builder",
		ImageID:      "ami-1",
		InstanceType: "t3.micro",
		RootDevice:   "/dev/xvda",
		CloudConfig:  map[string]any{"hostname": "other"},
	})
	require.NoError(t, err)
	require.Len(t, f.run, 1)
	assert.Equal(t, "#cloud-config\nhostname: builder\n", decodeUserData(t, awsv2.ToString(f.run[0].UserData)))
}

func writeSkel(t *testing.T, dir, rel, content string, mode os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func decodeFile(t *testing.T, entry map[string]any) string {
	t.Helper()
	content, ok := entry["content"].(string)
	require.True(t, ok)
	return decodeUserData(t, content)
}

func TestSkelFiles(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeSkel(t, first, "etc/motd", "hello", 0o644)
	writeSkel(t, first, "usr/local/bin/tool", "#!/bin/sh", 0o755)
	writeSkel(t, second, "etc/motd", "override", 0o600)

	files, err := SkelFiles([]string{first, second})
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "/etc/motd", files[0]["path"])
	assert.Equal(t, "0600", files[0]["permissions"])
	assert.Equal(t, "gz+b64", files[0]["encoding"])
	assert.Equal(t, "override", decodeFile(t, files[0]))

	assert.Equal(t, "/usr/local/bin/tool", files[1]["path"])
	assert.Equal(t, "0755", files[1]["permissions"])
	assert.Equal(t, "#!/bin/sh", decodeFile(t, files[1]))

	_, err = SkelFiles([]string{filepath.Join(first, "missing")})
	require.Error(t, err)
}

func TestLaunchRootfsSkel(t *testing.T) {
	dir := t.TempDir()
	writeSkel(t, dir, "etc/motd", "hello", 0o644)

	f := &fakeEC2{}
	l := &Launcher{Client: f}
	_, err := l.Launch(context.Background(), Spec{
		Hostname:       "builder",
		ImageID:        "ami-1",
		InstanceType:   "t3.micro",
		RootDevice:     "/dev/xvda",
		CloudConfig:    map[string]any{"write_files": []any{map[string]any{"path": "/etc/issue", "content": "x"}}},
		RootfsSkelDirs: []string{dir},
	})
	require.NoError(t, err)
	require.Len(t, f.run, 1)

	var doc struct {
		Hostname   string `yaml:"hostname"`
		WriteFiles []struct {
			Path     string `yaml:"path"`
			Encoding string `yaml:"encoding"`
		} `yaml:"write_files"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(decodeUserData(t, awsv2.ToString(f.run[0].UserData))), &doc))
	assert.Equal(t, "builder", doc.Hostname)
	require.Len(t, doc.WriteFiles, 2)
	assert.Equal(t, "/etc/issue", doc.WriteFiles[0].Path)
	assert.Equal(t, "/etc/motd", doc.WriteFiles[1].Path)
	assert.Equal(t, "gz+b64", doc.WriteFiles[1].Encoding)
}
