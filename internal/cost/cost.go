// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cost

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/samber/lo"

	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/output"
	"github.com/aegea/aegea/internal/util"
)

// TotalColumn holds the per-group sum of all period cells.
const TotalColumn = "TOTAL"

// tagPrefix selects a cost allocation tag instead of a dimension in
// --group-by, e.g. TAG:team.
const tagPrefix = "TAG:"

// Accepted flag values.
var (
	Granularities = []string{"HOURLY", "DAILY", "MONTHLY"}
	Metrics       = []string{
		"AmortizedCost", "BlendedCost", "NetAmortizedCost", "NetUnblendedCost",
		"NormalizedUsageAmount", "UnblendedCost", "UsageQuantity",
	}
	ForecastMetrics = []string{
		"USAGE_QUANTITY", "UNBLENDED_COST", "NET_UNBLENDED_COST", "AMORTIZED_COST",
		"NET_AMORTIZED_COST", "BLENDED_COST", "NORMALIZED_USAGE_AMOUNT",
	}
	Dimensions = []string{
		"AZ", "INSTANCE_TYPE", "LEGAL_ENTITY_NAME", "LINKED_ACCOUNT", "OPERATION", "PLATFORM",
		"PURCHASE_TYPE", "SERVICE", "TENANCY", "USAGE_TYPE", "REGION",
	}
)

// API is the subset of the Cost Explorer client used here.
type API interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
	GetCostForecast(ctx context.Context, params *costexplorer.GetCostForecastInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostForecastOutput, error)
}

// Query selects a cost-and-usage report.
type Query struct {
	Start       time.Time
	End         time.Time
	Granularity string
	Metrics     []string
	GroupBy     []string
	MinTotal    float64
	Profile     string
}

// Validate checks flag values against the accepted choices.
func (q Query) Validate() error {
	if !lo.Contains(Granularities, q.Granularity) {
		return fmt.Errorf("unknown granularity %q, must be one of %v", q.Granularity, Granularities)
	}
	if len(q.Metrics) == 0 {
		return fmt.Errorf("at least one metric is required")
	}
	if bad := lo.Without(q.Metrics, Metrics...); len(bad) > 0 {
		return fmt.Errorf("unknown metrics %v, must be among %v", bad, Metrics)
	}
	if len(q.GroupBy) == 0 || len(q.GroupBy) > 2 { //nolint:mnd
		return fmt.Errorf("group by takes one or two keys, got %d", len(q.GroupBy))
	}
	for _, g := range q.GroupBy {
		if !strings.HasPrefix(g, tagPrefix) && !lo.Contains(Dimensions, g) {
			return fmt.Errorf("unknown group by %q, must be %sKEY or one of %v", g, tagPrefix, Dimensions)
		}
	}
	if !q.End.After(q.Start) {
		return fmt.Errorf("time period end %s is not after start %s", util.ISODate(q.End), util.ISODate(q.Start))
	}
	return nil
}

// Title is the first column header: the first grouping and the profile.
func (q Query) Title() string {
	return fmt.Sprintf("%s (%s)", q.GroupBy[0], q.Profile)
}

func groupDefinitions(keys []string) []types.GroupDefinition {
	return lo.Map(keys, func(k string, _ int) types.GroupDefinition {
		if tag, ok := strings.CutPrefix(k, tagPrefix); ok {
			return types.GroupDefinition{Type: types.GroupDefinitionTypeTag, Key: awsv2.String(tag)}
		}
		return types.GroupDefinition{Type: types.GroupDefinitionTypeDimension, Key: awsv2.String(k)}
	})
}

// Report returns one row per group with a cell per period and a TOTAL. Rows
// whose total does not exceed MinTotal are dropped; the rest are ordered by
// total, largest first.
func Report(ctx context.Context, client API, q Query) (output.Table, error) {
	if err := q.Validate(); err != nil {
		return output.Table{}, err
	}

	title := q.Title()
	metric := q.Metrics[0]
	in := &costexplorer.GetCostAndUsageInput{
		Granularity: types.Granularity(q.Granularity),
		TimePeriod: &types.DateInterval{
			Start: awsv2.String(util.ISODate(q.Start)),
			End:   awsv2.String(util.ISODate(q.End)),
		},
		Metrics: q.Metrics,
		GroupBy: groupDefinitions(q.GroupBy),
	}

	var (
		periods []string
		order   []string
		rows    = map[string]output.Row{}
	)
	for page := 1; ; page++ {
		out, err := client.GetCostAndUsage(ctx, in)
		if err != nil {
			return output.Table{}, fmt.Errorf("failed to get cost and usage: %w", err)
		}
		log.Debugf("cost page %d: periods=%d", page, len(out.ResultsByTime))

		for _, result := range out.ResultsByTime {
			start := awsv2.ToString(result.TimePeriod.Start)
			if !lo.Contains(periods, start) {
				periods = append(periods, start)
			}
			for _, group := range result.Groups {
				key := strings.Join(group.Keys, "/")
				row, ok := rows[key]
				if !ok {
					row = output.Row{title: key, TotalColumn: 0.0}
					rows[key] = row
					order = append(order, key)
				}
				value := cellValue(group.Metrics[metric])
				if f, ok := value.(float64); ok {
					row[TotalColumn] = row[TotalColumn].(float64) + f
				}
				row[start] = value
			}
		}

		if out.NextPageToken == nil || *out.NextPageToken == "" {
			break
		}
		in.NextPageToken = out.NextPageToken
	}

	t := output.Table{
		Columns:    append(append([]string{title}, periods...), TotalColumn),
		Transforms: map[string]output.Transform{TotalColumn: output.FormatFloat},
	}
	for _, p := range periods {
		t.Transforms[p] = output.FormatFloat
	}
	for _, key := range order {
		row := rows[key]
		if row[TotalColumn].(float64) > q.MinTotal {
			t.Rows = append(t.Rows, row)
		}
	}
	output.SortRows(t.Rows, "-"+TotalColumn)
	return t, nil
}

// cellValue parses a metric amount. Amounts that are not numbers are kept as
// text and do not count toward the total.
func cellValue(m types.MetricValue) any {
	amount := awsv2.ToString(m.Amount)
	if f, err := strconv.ParseFloat(amount, 64); err == nil {
		return f
	}
	return amount
}
