// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cost

import (
	"context"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/samber/lo"

	"github.com/aegea/aegea/internal/output"
	"github.com/aegea/aegea/internal/util"
)

// PredictionIntervalLevel is the confidence of the forecast bounds.
const PredictionIntervalLevel = 75

// ForecastColumns are the cost-forecast columns.
var ForecastColumns = []string{"TimePeriod.Start", "MeanValue", "PredictionIntervalLowerBound", "PredictionIntervalUpperBound"}

// ForecastQuery selects a cost forecast.
type ForecastQuery struct {
	Start       time.Time
	End         time.Time
	Granularity string
	Metric      string
	Profile     string
}

// Validate checks flag values against the accepted choices.
func (q ForecastQuery) Validate() error {
	if !lo.Contains(Granularities, q.Granularity) {
		return fmt.Errorf("unknown granularity %q, must be one of %v", q.Granularity, Granularities)
	}
	if !lo.Contains(ForecastMetrics, q.Metric) {
		return fmt.Errorf("unknown metric %q, must be one of %v", q.Metric, ForecastMetrics)
	}
	if !q.End.After(q.Start) {
		return fmt.Errorf("time period end %s is not after start %s", util.ISODate(q.End), util.ISODate(q.Start))
	}
	return nil
}

// Forecast returns one row per forecast period followed by a TOTAL row
// holding the overall predicted amount.
func Forecast(ctx context.Context, client API, q ForecastQuery) (output.Table, error) {
	if err := q.Validate(); err != nil {
		return output.Table{}, err
	}

	out, err := client.GetCostForecast(ctx, &costexplorer.GetCostForecastInput{
		Granularity: types.Granularity(q.Granularity),
		Metric:      types.Metric(q.Metric),
		TimePeriod: &types.DateInterval{
			Start: awsv2.String(util.ISODate(q.Start)),
			End:   awsv2.String(util.ISODate(q.End)),
		},
		PredictionIntervalLevel: awsv2.Int32(PredictionIntervalLevel),
	})
	if err != nil {
		return output.Table{}, fmt.Errorf("failed to get cost forecast: %w", err)
	}

	t := output.Table{
		Columns: ForecastColumns,
		Transforms: map[string]output.Transform{
			"MeanValue":                    output.FormatFloat,
			"PredictionIntervalLowerBound": output.FormatFloat,
			"PredictionIntervalUpperBound": output.FormatFloat,
		},
	}
	for _, r := range out.ForecastResultsByTime {
		start := ""
		if r.TimePeriod != nil {
			start = awsv2.ToString(r.TimePeriod.Start)
		}
		t.Rows = append(t.Rows, output.Row{
			"TimePeriod.Start":             start,
			"MeanValue":                    amount(r.MeanValue),
			"PredictionIntervalLowerBound": amount(r.PredictionIntervalLowerBound),
			"PredictionIntervalUpperBound": amount(r.PredictionIntervalUpperBound),
		})
	}

	total := output.Row{"TimePeriod.Start": fmt.Sprintf("TOTAL (%s)", q.Profile)}
	if out.Total != nil {
		total["MeanValue"] = amount(out.Total.Amount)
	}
	t.Rows = append(t.Rows, total)
	return t, nil
}

func amount(s *string) any {
	return cellValue(types.MetricValue{Amount: s})
}
