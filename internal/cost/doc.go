// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package cost turns Cost Explorer responses into tables.
//
// Report groups cost and usage by one or two dimensions (or TAG:KEY cost
// allocation tags), with one column per period and a TOTAL column. Forecast
// lists predicted spend per period with its 75% prediction interval.
package cost
