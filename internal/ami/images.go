// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package ami

import (
	"context"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/dustin/go-humanize"

	"github.com/aegea/aegea/internal/aws"
	"github.com/aegea/aegea/internal/output"
)

// ImageColumns are the images listing columns.
var ImageColumns = []string{"ImageId", "Name", "State", "Architecture", "Created", "Base", "Owner", "AegeaVersion"}

// ListImages returns the images owned by owners (default self), newest first.
func ListImages(ctx context.Context, client ImageAPI, owners []string) (output.Table, error) {
	if len(owners) == 0 {
		owners = []string{"self"}
	}
	out, err := client.DescribeImages(ctx, &ec2.DescribeImagesInput{Owners: owners})
	if err != nil {
		return output.Table{}, fmt.Errorf("failed to describe images: %w", err)
	}
	return imageTable(out.Images, time.Now()), nil
}

func imageTable(images []types.Image, now time.Time) output.Table {
	t := output.Table{Columns: ImageColumns}
	for _, img := range images {
		created := awsv2.ToString(img.CreationDate)
		if ts, err := time.Parse(time.RFC3339, created); err == nil {
			created = humanize.RelTime(ts, now, "ago", "from now")
		}
		t.Rows = append(t.Rows, output.Row{
			"ImageId":      awsv2.ToString(img.ImageId),
			"Name":         awsv2.ToString(img.Name),
			"State":        string(img.State),
			"Architecture": string(img.Architecture),
			"Created":      created,
			"CreationDate": awsv2.ToString(img.CreationDate),
			"Base":         aws.TagValue(img.Tags, "Base"),
			"Owner":        aws.TagValue(img.Tags, "Owner"),
			"AegeaVersion": aws.TagValue(img.Tags, "AegeaVersion"),
		})
	}
	output.SortRows(t.Rows, "-CreationDate")
	return t
}
