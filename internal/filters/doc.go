// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package filters narrows tabular results with --filter expressions.
//
// A filter is KEY OPERATOR VALUE where KEY is a column name. Several filters
// are joined with commas (or AEGEA_FILTER_DELIM) and a row is kept only when
// it matches all of them.
//
// Operators:
//
//   - = : exact match, numeric for numeric cells
//   - ~ : case-insensitive match
//   - ^ : prefix match
//   - < : less than, numeric for numeric cells
//   - > : greater than, numeric for numeric cells
//   - @ : contains substring
//   - / : regular expression match
//
// Any operator can be negated with a leading '!'.
//
// Examples:
//
//   - "State=available"
//   - "Name^aegea-"
//   - "TOTAL>10"
//   - "Local!=yes"
package filters
