// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/output"
)

type FlagValidatorType func(any) error

func FlagValidators(value any, validators ...FlagValidatorType) error {
	for _, v := range validators {
		if err := v(value); err != nil {
			return err
		}
	}
	return nil
}

// GlobalFlagsValidator checks combinations of global flags that single-flag
// validators cannot see.
func GlobalFlagsValidator(_ context.Context, c *cli.Command) error {
	if c.Bool("json") && c.IsSet("output") && c.String("output") != output.FormatJSON {
		return fmt.Errorf("--json conflicts with --output %s", c.String("output"))
	}
	if c.Int("max-col-width") < 0 {
		return fmt.Errorf("--max-col-width must not be negative")
	}
	return nil
}

func OutputValidator(value any) error {
	return ChoiceValidator(output.Formats)(value)
}

func LogLevelValidator(value any) error {
	return ChoiceValidator(log.Levels)(value)
}

// ChoiceValidator accepts a string from choices.
func ChoiceValidator(choices []string) FlagValidatorType {
	return func(value any) error {
		s, _ := value.(string)
		if !lo.Contains(choices, s) {
			return fmt.Errorf("must be one of %v", choices)
		}
		return nil
	}
}

// ChoicesValidator accepts a list whose members are all from choices.
func ChoicesValidator(choices []string) FlagValidatorType {
	return func(value any) error {
		values, _ := value.([]string)
		if bad := lo.Without(values, choices...); len(bad) > 0 {
			return fmt.Errorf("%v: must be among %v", bad, choices)
		}
		return nil
	}
}
