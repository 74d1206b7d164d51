// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/output"
)

// filterRegex splits a filter expression into key, operator and target.
// Operators are one of = ^ ~ < > @ or /, optionally prefixed with '!'.
// Examples: "Name=web", "State!=available", "TOTAL>10".
var filterRegex = regexp.MustCompile(`^([^!=^~<>@/]*)(!?[=^~<>@/])(.*)$`)

// Filter is a single parsed --filter expression.
type Filter struct {
	Key     string
	Negate  bool
	Operand string
	Value   string
}

// BuildFilters parses a filter specification string into a slice of Filter.
// Malformed entries are logged and skipped.
func BuildFilters(spec string) []Filter {
	//nolint:prealloc
	var filters []Filter

	if spec == "" {
		return filters
	}

	// Default delimiter is ",", allow an override for situations where the value
	// contains commas.
	delim := ","
	if d, ok := os.LookupEnv("AEGEA_FILTER_DELIM"); ok && d != "" {
		delim = d
	}

	for _, filterSpec := range strings.Split(spec, delim) {
		filterSpec = strings.TrimSpace(filterSpec)
		if filterSpec == "" {
			continue
		}

		parts := filterRegex.FindStringSubmatch(filterSpec)
		if parts == nil {
			log.Warnf("invalid filter, no operator: %s", filterSpec)
			continue
		}

		key := strings.TrimSpace(parts[1])
		if key == "" {
			log.Warnf("invalid filter, empty key: %s", filterSpec)
			continue
		}

		operand := parts[2]
		negate := strings.HasPrefix(operand, "!")

		filters = append(filters, Filter{
			Key:     key,
			Negate:  negate,
			Operand: strings.TrimPrefix(operand, "!"),
			Value:   parts[3],
		})
	}

	return filters
}

// Apply returns t with only the rows that match every filter in spec.
// Filters naming an unknown column are reported and ignored.
func Apply(t output.Table, spec string) output.Table {
	filters := BuildFilters(spec)
	if len(filters) == 0 {
		return t
	}

	filters = lo.Filter(filters, func(f Filter, _ int) bool {
		if lo.Contains(t.Columns, f.Key) {
			return true
		}
		log.Warnf("filter key not found: %s, columns are %v", f.Key, t.Columns)
		return false
	})

	t.Rows = lo.Filter(t.Rows, func(row output.Row, _ int) bool {
		return matches(row, filters)
	})
	return t
}

// matches reports whether row passes every filter.
func matches(row output.Row, filters []Filter) bool {
	for _, filter := range filters {
		value, ok := row[filter.Key]
		if !ok || value == nil {
			return false
		}

		var result bool
		switch v := value.(type) {
		case string:
			result = checkStringOperand(v, filter)
		case bool:
			result = checkStringOperand(strconv.FormatBool(v), filter)
		default:
			if num, ok := toFloat64(v); ok {
				result = checkNumericOperand(num, filter)
			} else {
				result = checkStringOperand(fmt.Sprintf("%v", v), filter)
			}
		}

		if !result {
			return false
		}
	}

	return true
}

// checkNumericOperand compares a numeric value against the filter value using
// numeric semantics. Supported operands: =, >, < and their negations. Other
// operands fall back to string comparison of the formatted number.
func checkNumericOperand(value float64, filter Filter) bool {
	switch filter.Operand {
	case "=", ">", "<":
	default:
		return checkStringOperand(strconv.FormatFloat(value, 'f', -1, 64), filter)
	}

	tgt, err := strconv.ParseFloat(strings.TrimSpace(filter.Value), 64)
	if err != nil {
		log.Warnf("invalid numeric filter value: %s", filter.Value)
		return false
	}

	switch filter.Operand {
	case "=":
		return (value == tgt) == !filter.Negate
	case ">":
		return (value > tgt) == !filter.Negate
	default:
		return (value < tgt) == !filter.Negate
	}
}

// checkStringOperand evaluates a string comparison style filter against the
// provided value using the operand semantics.
func checkStringOperand(value string, filter Filter) bool {
	switch filter.Operand {
	case "=":
		return value == filter.Value == !filter.Negate
	case "~":
		return strings.EqualFold(value, filter.Value) == !filter.Negate
	case "^":
		return strings.HasPrefix(value, filter.Value) == !filter.Negate
	case ">":
		return value > filter.Value == !filter.Negate
	case "<":
		return value < filter.Value == !filter.Negate
	case "@":
		return strings.Contains(value, filter.Value) == !filter.Negate
	case "/":
		matched, err := regexp.MatchString(filter.Value, value)
		if err != nil {
			log.Warnf("invalid filter regex: %s", filter.Value)
			return false
		}
		return matched == !filter.Negate
	default:
		log.Warnf("unsupported filter operand: %s", filter.Operand)
		return false
	}
}

// toFloat64 normalizes the numeric cell types to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
