package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: DebugLevel},
		{in: " WARN ", want: WarnLevel},
		{in: "warning", want: WarnLevel},
		{in: "", want: InfoLevel},
		{in: "error", want: ErrorLevel},
		{in: "loud", want: InfoLevel, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: InfoLevel, JSONOutput: true, Stderr: &buf})

	l.Debug("hidden")
	l.Warn("return destination not on call stack", "addr", Hex(0x300), "event", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "return destination not on call stack", entry.Message)
	assert.Equal(t, "0x300", entry.Fields["addr"])
	assert.Equal(t, float64(3), entry.Fields["event"])
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: ErrorLevel, Stderr: &buf})

	l.Info("quiet")
	assert.Empty(t, buf.String())

	l.SetLevel(DebugLevel)
	l.Debug("pushed frame", "depth", 1)
	assert.Contains(t, buf.String(), "pushed frame")
	assert.Contains(t, buf.String(), "depth")
}

func TestFields_OddArgument(t *testing.T) {
	f := fields("lonely", "k", 1)
	assert.Equal(t, "lonely", f["detail"])
	assert.Equal(t, 1, f["k"])
}
