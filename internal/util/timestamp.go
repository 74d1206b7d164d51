// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampHelp describes the accepted ParseTimestamp forms for flag usage.
const TimestampHelp = "a date (2024-01-31), an RFC3339 time, a unix epoch, " +
	"or a duration relative to now such as -7d, -12h or 2w"

var relativeRe = regexp.MustCompile(`^([+-]?)(\d+)([smhdw])$`)

var units = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// ParseTimestamp turns a user-supplied time specification into a time,
// resolving relative values against now. A leading "-" means the past; an
// unsigned or "+" value means the future.
func ParseTimestamp(spec string, now time.Time) (time.Time, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if m := relativeRe.FindStringSubmatch(spec); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, fmt.Errorf("bad relative timestamp %q: %w", spec, err)
		}
		d := time.Duration(n) * units[m[3]]
		if m[1] == "-" {
			d = -d
		}
		return now.Add(d), nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, spec); err == nil {
			return t, nil
		}
	}

	if epoch, err := strconv.ParseInt(spec, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("cannot parse timestamp %q: expected %s", spec, TimestampHelp)
}

// ISODate formats t as YYYY-MM-DD in UTC, the form billing APIs expect.
func ISODate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
