// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package ami

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegea/aegea/internal/cacheutil"
)

type fakeImages struct {
	images []types.Image
	inputs []*ec2.DescribeImagesInput
}

func (f *fakeImages) DescribeImages(_ context.Context, in *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	f.inputs = append(f.inputs, in)
	return &ec2.DescribeImagesOutput{Images: f.images}, nil
}

func filterValue(in *ec2.DescribeImagesInput, name string) string {
	for _, f := range in.Filters {
		if awsv2.ToString(f.Name) == name {
			return f.Values[0]
		}
	}
	return ""
}

func TestParseDistribution(t *testing.T) {
	tests := []struct {
		in          string
		wantName    string
		wantRelease string
		wantErr     bool
	}{
		{in: "Ubuntu:22.04", wantName: "Ubuntu", wantRelease: "22.04"},
		{in: "Amazon Linux:2023", wantName: "Amazon Linux", wantRelease: "2023"},
		{in: "debian:12", wantName: "debian", wantRelease: "12"},
		{in: "Ubuntu", wantErr: true},
		{in: "Ubuntu:", wantErr: true},
		{in: "Gentoo:1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, release, err := ParseDistribution(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantRelease, release)
		})
	}
}

func TestLocatePicksNewest(t *testing.T) {
	f := &fakeImages{images: []types.Image{
		{ImageId: awsv2.String("ami-old"), CreationDate: awsv2.String("2024-01-01T00:00:00.000Z")},
		{ImageId: awsv2.String("ami-new"), CreationDate: awsv2.String("2024-03-01T00:00:00.000Z")},
		{ImageId: awsv2.String("ami-mid"), CreationDate: awsv2.String("2024-02-01T00:00:00.000Z")},
	}}
	c := &Catalog{Client: f, Region: "us-east-1"}

	id, err := c.Locate(context.Background(), "Ubuntu", "22.04", "arm64")
	require.NoError(t, err)
	assert.Equal(t, "ami-new", id)

	require.Len(t, f.inputs, 1)
	assert.Equal(t, []string{"099720109477"}, f.inputs[0].Owners)
	assert.Equal(t, "ubuntu/images/hvm-ssd*/ubuntu-*-22.04-arm64-server-*", filterValue(f.inputs[0], "name"))
	assert.Equal(t, "arm64", filterValue(f.inputs[0], "architecture"))
}

func TestLocatePatterns(t *testing.T) {
	tests := []struct {
		name, release, arch string
		wantOwner           string
		wantPattern         string
	}{
		{"Ubuntu", "20.04", "x86_64", "099720109477", "ubuntu/images/hvm-ssd*/ubuntu-*-20.04-amd64-server-*"},
		{"Amazon Linux", "2", "x86_64", "137112412989", "amzn2-ami-hvm-2.0.*-x86_64-gp2"},
		{"Amazon Linux", "2023", "arm64", "137112412989", "al2023-ami-2023.*-kernel-*-arm64"},
		{"Debian", "12", "x86_64", "136693071363", "debian-12-amd64-*"},
	}
	for _, tt := range tests {
		t.Run(tt.name+":"+tt.release, func(t *testing.T) {
			f := &fakeImages{images: []types.Image{{ImageId: awsv2.String("ami-1")}}}
			c := &Catalog{Client: f}
			_, err := c.Locate(context.Background(), tt.name, tt.release, tt.arch)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantOwner}, f.inputs[0].Owners)
			assert.Equal(t, tt.wantPattern, filterValue(f.inputs[0], "name"))
		})
	}
}

func TestLocateNotFound(t *testing.T) {
	c := &Catalog{Client: &fakeImages{}}
	_, err := c.Locate(context.Background(), "Ubuntu", "99.04", "x86_64")
	assert.Error(t, err)

	_, err = c.Locate(context.Background(), "Gentoo", "1", "x86_64")
	assert.Error(t, err)
}

func TestLocateUsesCache(t *testing.T) {
	t.Setenv("AEGEA_CACHE_DIR", t.TempDir())
	t.Setenv("AEGEA_CACHE", "")

	f := &fakeImages{images: []types.Image{{ImageId: awsv2.String("ami-cached")}}}
	c := &Catalog{Client: f, Region: "eu-west-1", Cache: cacheutil.New("catalog", time.Hour)}

	for range 3 {
		id, err := c.Locate(context.Background(), "Ubuntu", "22.04", "x86_64")
		require.NoError(t, err)
		assert.Equal(t, "ami-cached", id)
	}
	assert.Len(t, f.inputs, 1)

	c.Region = "us-west-2"
	_, err := c.Locate(context.Background(), "Ubuntu", "22.04", "x86_64")
	require.NoError(t, err)
	assert.Len(t, f.inputs, 2, "region is part of the key")
}

func TestLocatePurgesExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AEGEA_CACHE_DIR", dir)
	t.Setenv("AEGEA_CACHE", "")

	bucket := filepath.Join(dir, "catalog")
	require.NoError(t, os.MkdirAll(bucket, 0o755))
	stale := filepath.Join(bucket, "stale")
	fresh := filepath.Join(bucket, "fresh")
	require.NoError(t, os.WriteFile(stale, []byte(`"ami-gone"`), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte(`"ami-kept"`), 0o600))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	f := &fakeImages{images: []types.Image{{ImageId: awsv2.String("ami-1")}}}
	c := &Catalog{Client: f, Region: "eu-west-1", Cache: cacheutil.New("catalog", 24*time.Hour)}
	_, err := c.Locate(context.Background(), "Ubuntu", "22.04", "x86_64")
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func TestImageTable(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	tbl := imageTable([]types.Image{
		{
			ImageId:      awsv2.String("ami-1"),
			Name:         awsv2.String("older"),
			CreationDate: awsv2.String("2024-03-01T00:00:00.000Z"),
			State:        types.ImageStateAvailable,
		},
		{
			ImageId:      awsv2.String("ami-2"),
			Name:         awsv2.String("newer"),
			CreationDate: awsv2.String("2024-03-09T00:00:00.000Z"),
			Architecture: types.ArchitectureValuesArm64,
			Tags: []types.Tag{
				{Key: awsv2.String("Owner"), Value: awsv2.String("dana")},
				{Key: awsv2.String("Base"), Value: awsv2.String("ami-base")},
			},
		},
	}, now)

	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "ami-2", tbl.Rows[0]["ImageId"], "newest first")
	assert.Equal(t, "1 day ago", tbl.Rows[0]["Created"])
	assert.Equal(t, "dana", tbl.Rows[0]["Owner"])
	assert.Equal(t, "arm64", tbl.Rows[0]["Architecture"])
	assert.Equal(t, "available", tbl.Rows[1]["State"])
}

func TestListImagesDefaultsToSelf(t *testing.T) {
	f := &fakeImages{}
	_, err := ListImages(context.Background(), f, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"self"}, f.inputs[0].Owners)
}
