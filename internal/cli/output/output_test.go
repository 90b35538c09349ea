package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"", FormatTable, false},
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestPrintTable(t *testing.T) {
	data := NewTableData("SEQ", "OUTCOME")
	data.AddRow("0", "Allowed")
	data.AddRow("1", "Denied")

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, data))

	out := buf.String()
	assert.Contains(t, out, "SEQ")
	assert.Contains(t, out, "Allowed")
	assert.Contains(t, out, "Denied")
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatJSON, false)

	require.NoError(t, p.Print(map[string]int{"entries": 3}))
	assert.Contains(t, buf.String(), `"entries": 3`)
}

func TestPrinterYAML(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatYAML, false)

	require.NoError(t, p.Print(map[string]string{"state": "committed"}))
	assert.Equal(t, "state: committed", strings.TrimSpace(buf.String()))
}
