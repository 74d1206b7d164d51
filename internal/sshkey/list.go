// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package sshkey

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/dustin/go-humanize"

	"github.com/aegea/aegea/internal/output"
)

// ListColumns are the key-pairs listing columns.
var ListColumns = []string{"KeyName", "KeyPairId", "KeyType", "KeyFingerprint", "Created", "Local"}

// List returns every EC2 key pair as a table. Local reports whether the
// private half exists in Dir.
func (m *Manager) List(ctx context.Context) (output.Table, error) {
	out, err := m.Client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{})
	if err != nil {
		return output.Table{}, fmt.Errorf("failed to describe key pairs: %w", err)
	}

	local, err := m.localNames()
	if err != nil {
		return output.Table{}, err
	}
	return keyPairTable(out.KeyPairs, local, time.Now()), nil
}

func keyPairTable(pairs []types.KeyPairInfo, local map[string]bool, now time.Time) output.Table {
	t := output.Table{Columns: ListColumns}
	for _, kp := range pairs {
		name := awsv2.ToString(kp.KeyName)
		created := "-"
		if kp.CreateTime != nil {
			created = humanize.RelTime(*kp.CreateTime, now, "ago", "from now")
		}
		t.Rows = append(t.Rows, output.Row{
			"KeyName":        name,
			"KeyPairId":      awsv2.ToString(kp.KeyPairId),
			"KeyType":        string(kp.KeyType),
			"KeyFingerprint": awsv2.ToString(kp.KeyFingerprint),
			"Created":        created,
			"Local":          yesNo(local[name]),
		})
	}
	return t
}

func (m *Manager) localNames() (map[string]bool, error) {
	matches, err := filepath.Glob(filepath.Join(m.Dir, "*.pem"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", m.Dir, err)
	}
	names := make(map[string]bool, len(matches))
	for _, p := range matches {
		names[strings.TrimSuffix(filepath.Base(p), ".pem")] = true
	}
	return names, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
