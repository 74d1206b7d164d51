// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/config"
	"github.com/aegea/aegea/internal/cost"
)

func registerCostForecast(r *Registry) {
	ns, path := "cost_forecast", r.Meta.Config.Source
	d := config.Defaults.Cost

	r.Register(&CommandBuilder{
		Name:      "cost-forecast",
		Usage:     "list AWS cost forecasts",
		UsageText: "aegea cost-forecast [options]",
		Flags: append(timePeriodFlags(ns, path, d.ForecastStart, d.ForecastEnd, "cost forecast"),
			&cli.StringFlag{
				Name:    "metric",
				Usage:   "forecast metric (" + strings.Join(cost.ForecastMetrics, ", ") + ")",
				Value:   d.ForecastMetric,
				Sources: withConfig(ns, path, "metric"),
				Validator: func(value string) error {
					return FlagValidators(value, ChoiceValidator(cost.ForecastMetrics))
				},
			},
		),
		Action: costForecastAction,
	})
}

func costForecastAction(ctx context.Context, cmd *cli.Command) error {
	q, err := forecastQuery(cmd, time.Now())
	if err != nil {
		return err
	}

	clients, err := newClients(ctx, cmd)
	if err != nil {
		return err
	}
	q.Profile = clients.Profile

	t, err := cost.Forecast(ctx, clients.CostExplorer, q)
	if err != nil {
		return err
	}
	return render(cmd, t)
}

func forecastQuery(cmd *cli.Command, now time.Time) (cost.ForecastQuery, error) {
	start, end, err := timePeriod(cmd, now)
	if err != nil {
		return cost.ForecastQuery{}, err
	}
	q := cost.ForecastQuery{
		Start:       start,
		End:         end,
		Granularity: cmd.String("granularity"),
		Metric:      cmd.String("metric"),
	}
	return q, q.Validate()
}
