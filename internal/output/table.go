// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// Row is one record of a Table. Cell order comes from Table.Columns.
type Row map[string]any

// Transform renders a cell value for text output.
type Transform func(any) string

// Table is the uniform shape every listing command produces. Renderers read
// cells in Columns order; Transforms apply to text output only so JSON and
// YAML keep raw values.
type Table struct {
	Columns    []string
	Rows       []Row
	Transforms map[string]Transform
}

// Cell returns the text form of row[col], using the column transform if one
// is registered.
func (t Table) Cell(row Row, col string) string {
	v, ok := row[col]
	if !ok {
		return "-"
	}
	if fn, ok := t.Transforms[col]; ok && fn != nil {
		return fn(v)
	}
	return InterfaceToString(v, "-")
}

// FormatFloat renders numeric values with two decimals. Strings that parse as
// numbers are formatted too; anything else passes through untouched.
func FormatFloat(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', 2, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', 2, 64)
	case int:
		return strconv.FormatFloat(float64(n), 'f', 2, 64)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
		return n
	default:
		return InterfaceToString(v, "-")
	}
}

// InterfaceToString converts supported primitive or composite values to a
// string. A custom empty value may be provided.
func InterfaceToString(value interface{}, emptyValue ...string) string {
	if len(emptyValue) == 0 {
		emptyValue = []string{""}
	}

	if value == nil || reflect.ValueOf(value).IsZero() {
		return emptyValue[0]
	}

	switch value := value.(type) {
	case string:
		return value
	case int:
		return strconv.Itoa(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case fmt.Stringer:
		return value.String()
	default:
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(jsonBytes)
	}
}

// Truncate shortens s to at most width runes, marking the cut with "..".
// A width below 1 disables truncation.
func Truncate(s string, width int) string {
	r := []rune(s)
	if width < 1 || len(r) <= width {
		return s
	}
	if width <= 2 {
		return string(r[:width])
	}
	return string(r[:width-2]) + ".."
}
