// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		debug   bool
		wantErr bool
	}{
		{name: "empty defaults to warn", level: "", debug: false},
		{name: "debug", level: "debug", debug: true},
		{name: "trace implies debug", level: "TRACE", debug: true},
		{name: "info", level: "info", debug: false},
		{name: "error", level: "error", debug: false},
		{name: "unknown", level: "verbose", wantErr: true},
		{name: "only listed names", level: "warning", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.wantErr && tt.level != "" {
				assert.Contains(t, Levels, strings.ToLower(tt.level), "accepted names are advertised")
			}
			require.NoError(t, SetLevel("warn"))
			err := SetLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, IsDebug(), "level must be unchanged")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.debug, IsDebug())
		})
	}
}

func TestCustomHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &CustomHandler{Writer: &buf}

	err := h.HandleLog(&log.Entry{Level: log.WarnLevel, Message: "hello", Fields: log.Fields{}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), " W hello\n")

	buf.Reset()
	err = h.HandleLog(&log.Entry{Level: log.DebugLevel, Message: "TRACE: deep", Fields: log.Fields{}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), " T deep\n")

	buf.Reset()
	err = h.HandleLog(&log.Entry{
		Level:   log.ErrorLevel,
		Message: "failed",
		Fields:  log.Fields{"error": errors.New("boom")},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), " E failed: boom\n")
}
