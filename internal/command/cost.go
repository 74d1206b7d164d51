// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/config"
	"github.com/aegea/aegea/internal/cost"
	"github.com/aegea/aegea/internal/util"
)

func registerCost(r *Registry) {
	ns, path := "cost", r.Meta.Config.Source
	d := config.Defaults.Cost

	r.Register(&CommandBuilder{
		Name:      "cost",
		Usage:     "list AWS costs per group and period",
		UsageText: "aegea cost [options]",
		Flags: append(timePeriodFlags(ns, path, d.Start, d.End, "cost history"),
			&cli.StringSliceFlag{
				Name:  "group-by",
				Usage: "one or two of " + strings.Join(cost.Dimensions, ", ") + " or TAG:KEY",
				Value: d.GroupBy,
			},
			&cli.StringSliceFlag{
				Name:  "metrics",
				Usage: "cost metrics (" + strings.Join(cost.Metrics, ", ") + "); the first fills the table",
				Value: d.Metrics,
				Validator: func(value []string) error {
					return FlagValidators(value, ChoicesValidator(cost.Metrics))
				},
			},
			&cli.FloatFlag{
				Name:    "min-total",
				Usage:   "omit rows whose total is not above this amount",
				Value:   d.MinTotal,
				Sources: withConfig(ns, path, "min-total"),
			},
		),
		Action: costAction,
	})
}

func costAction(ctx context.Context, cmd *cli.Command) error {
	q, err := costQuery(cmd, time.Now())
	if err != nil {
		return err
	}

	clients, err := newClients(ctx, cmd)
	if err != nil {
		return err
	}
	q.Profile = clients.Profile

	t, err := cost.Report(ctx, clients.CostExplorer, q)
	if err != nil {
		return err
	}
	return render(cmd, t)
}

func costQuery(cmd *cli.Command, now time.Time) (cost.Query, error) {
	start, end, err := timePeriod(cmd, now)
	if err != nil {
		return cost.Query{}, err
	}
	q := cost.Query{
		Start:       start,
		End:         end,
		Granularity: cmd.String("granularity"),
		Metrics:     cmd.StringSlice("metrics"),
		GroupBy:     cmd.StringSlice("group-by"),
		MinTotal:    cmd.Float("min-total"),
	}
	return q, q.Validate()
}

// timePeriodFlags are the window and granularity flags shared by cost and
// cost-forecast.
func timePeriodFlags(ns, path, start, end, what string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "granularity",
			Usage:   "period length (" + strings.Join(cost.Granularities, ", ") + ")",
			Value:   config.Defaults.Cost.Granularity,
			Sources: withConfig(ns, path, "granularity"),
			Validator: func(value string) error {
				return FlagValidators(value, ChoiceValidator(cost.Granularities))
			},
		},
		&cli.StringFlag{
			Name:  "time-period-end",
			Usage: "time to end " + what + ": " + util.TimestampHelp,
			Value: end,
		},
		&cli.StringFlag{
			Name:  "time-period-start",
			Usage: "time to start " + what + ": " + util.TimestampHelp,
			Value: start,
		},
	}
}

func timePeriod(cmd *cli.Command, now time.Time) (start, end time.Time, err error) {
	if start, err = util.ParseTimestamp(cmd.String("time-period-start"), now); err != nil {
		return start, end, fmt.Errorf("bad --time-period-start: %w", err)
	}
	if end, err = util.ParseTimestamp(cmd.String("time-period-end"), now); err != nil {
		return start, end, fmt.Errorf("bad --time-period-end: %w", err)
	}
	return start, end, nil
}
