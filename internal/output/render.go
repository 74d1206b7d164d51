// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/tidwall/gjson"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"

	"github.com/aegea/aegea/internal/config"
	"github.com/aegea/aegea/internal/log"
)

// Output formats accepted by --output.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the valid --output values.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// Options selects a renderer and its text layout.
type Options struct {
	Format       string
	MaxColWidth  int
	AutoColWidth bool
	Color        bool
	Sort         string
	// TermWidth overrides terminal detection for --auto-col-width.
	TermWidth int
	Writer    io.Writer
}

// Render sorts and writes t in the selected format.
func Render(t Table, opts Options) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	SortRows(t.Rows, opts.Sort)

	switch opts.Format {
	case FormatJSON:
		b, err := marshalOrderedJSON(t)
		if err != nil {
			return fmt.Errorf("failed to marshal json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case FormatYAML:
		b, err := yaml.Marshal(orderedYAML(t))
		if err != nil {
			return fmt.Errorf("failed to marshal yaml: %w", err)
		}
		_, err = w.Write(b)
		return err
	case FormatText, "":
		TableWriter(t, opts, w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q, must be one of %v", opts.Format, Formats)
	}
}

// Result prints a machine-style result as indented JSON. A top-level
// ResponseMetadata or ResultMetadata envelope is dropped.
func Result(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if gjson.ParseBytes(raw).IsObject() {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("failed to reshape result: %w", err)
		}
		delete(obj, "ResponseMetadata")
		delete(obj, "ResultMetadata")
		raw, err = json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out.String())
	return err
}

// TableWriter renders the table in text form honoring color and column width
// options. Output is written to w. If w is nil, os.Stdout is used.
func TableWriter(t Table, opts Options, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}

	if len(t.Columns) == 0 {
		return
	}

	width := columnWidth(len(t.Columns), opts)

	var (
		headerStyle  = lipgloss.NewStyle().Align(lipgloss.Left).Bold(true)
		cellStyle    = lipgloss.NewStyle().Padding(0, 0).Align(lipgloss.Left)
		evenRowStyle = cellStyle
		oddRowStyle  = cellStyle
	)

	if opts.Color {
		headerColor, evenColor, oddColor := getColors("colors")

		headerStyle = headerStyle.Foreground(headerColor)
		evenRowStyle = evenRowStyle.Foreground(evenColor)
		oddRowStyle = oddRowStyle.Foreground(oddColor)
	}

	headers := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		headers = append(headers, Truncate(col, width))
	}

	rows := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make([]string, 0, len(t.Columns))
		for _, col := range t.Columns {
			row = append(row, Truncate(t.Cell(r, col), width))
		}
		rows = append(rows, row)
	}

	tbl := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			var style lipgloss.Style
			switch {
			case row == table.HeaderRow:
				style = headerStyle
			case row%2 == 0:
				style = evenRowStyle
			default:
				style = oddRowStyle
			}

			if col > 0 {
				style = style.PaddingLeft(1)
			}

			return style
		}).
		Headers(headers...).
		Rows(rows...)

	fmt.Fprintln(w, tbl)
}

// columnWidth picks the per-column character limit. --auto-col-width splits
// the terminal width evenly; otherwise --max-col-width applies.
func columnWidth(columns int, opts Options) int {
	if !opts.AutoColWidth {
		return opts.MaxColWidth
	}

	tw := opts.TermWidth
	if tw <= 0 {
		var err error
		tw, _, err = term.GetSize(int(os.Stdout.Fd()))
		if err != nil || tw <= 0 {
			log.Debugf("terminal width unavailable, using max-col-width: err=%v", err)
			return opts.MaxColWidth
		}
	}

	// One column of padding between cells.
	w := (tw - (columns - 1)) / columns
	if w < 4 { //nolint:mnd
		w = 4
	}
	return w
}

// marshalOrderedJSON writes rows as JSON objects whose keys follow Columns.
func marshalOrderedJSON(t Table) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range t.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(col)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(row[col])
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// orderedYAML converts rows to yaml.v2 MapSlices so keys keep column order.
func orderedYAML(t Table) []yaml.MapSlice {
	out := make([]yaml.MapSlice, 0, len(t.Rows))
	for _, row := range t.Rows {
		ms := make(yaml.MapSlice, 0, len(t.Columns))
		for _, col := range t.Columns {
			ms = append(ms, yaml.MapItem{Key: col, Value: row[col]})
		}
		out = append(out, ms)
	}
	return out
}

// getColors returns configured color values for table rendering. Each color is
// selected based on terminal background color so that output is reasonably
// visible for common terminal themes.
func getColors(key string) (header, even, odd color.Color) {
	isDark := lipgloss.HasDarkBackground(os.Stdin, os.Stdout)

	// Use the explicit color if found in the config and leave it up to the user
	// to choose appropriate colors for their theme.
	resolveColor := func(key string, light string, dark string) color.Color {
		colorCfg, err := config.GetString(key)
		if err == nil {
			return lipgloss.Color(colorCfg)
		}

		if isDark {
			return lipgloss.Color(dark)
		}
		return lipgloss.Color(light)
	}

	header = resolveColor(key+".title", "#b08800", "#f6be00")
	even = resolveColor(key+".even", "#333333", "#ffffff")
	odd = resolveColor(key+".odd", "#0088a0", "#00c8f0")

	return
}
