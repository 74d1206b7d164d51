// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package config

// BuildAMIDefaults are the built-in values for build-ami flags.
type BuildAMIDefaults struct {
	Architecture                 string
	BaseAMI                      string
	BaseAMIDistribution          string
	CloudInitTimeoutSeconds      int
	CloudInitPollIntervalSeconds int
	IAMRole                      string
	RootVolumeSize               string
	BuilderInstanceTypes         map[string]string
}

// CostDefaults are the built-in values for cost and cost-forecast flags.
type CostDefaults struct {
	Start          string
	End            string
	ForecastStart  string
	ForecastEnd    string
	Granularity    string
	Metrics        []string
	ForecastMetric string
	GroupBy        []string
	MinTotal       float64
}

// Settings is the typed root of all built-in defaults.
type Settings struct {
	LogLevel       string
	MaxColWidth    int
	CatalogTTLHour int
	BuildAMI       BuildAMIDefaults
	Cost           CostDefaults
}

// Defaults are the values every flag starts from before the config file,
// environment and command line are overlaid.
var Defaults = Settings{
	LogLevel:       "warn",
	MaxColWidth:    32,
	CatalogTTLHour: 24,
	BuildAMI: BuildAMIDefaults{
		Architecture:                 "x86_64",
		BaseAMI:                      "auto",
		BaseAMIDistribution:          "Ubuntu:22.04",
		CloudInitTimeoutSeconds:      600,
		CloudInitPollIntervalSeconds: 20,
		IAMRole:                      "aegea.build_ami",
		RootVolumeSize:               "64GB",
		BuilderInstanceTypes: map[string]string{
			"x86_64": "c5.xlarge",
			"arm64":  "c6gd.xlarge",
		},
	},
	Cost: CostDefaults{
		Start:          "-7d",
		End:            "-1d",
		ForecastStart:  "1d",
		ForecastEnd:    "7d",
		Granularity:    "DAILY",
		Metrics:        []string{"AmortizedCost"},
		ForecastMetric: "AMORTIZED_COST",
		GroupBy:        []string{"SERVICE"},
		MinTotal:       1,
	},
}

// BuilderInstanceType returns the builder instance type for an architecture,
// preferring build_ami.default_builder_instance_type from the config file.
func BuilderInstanceType(arch string) string {
	types, err := GetStringMap("build_ami.default_builder_instance_type")
	if err == nil {
		if t, ok := types[arch]; ok && t != "" {
			return t
		}
	}
	return Defaults.BuildAMI.BuilderInstanceTypes[arch]
}
