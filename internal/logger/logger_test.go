package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function restoring the original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		defer SetLevel("INFO")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "debug message")
		assert.Contains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("WarnLevelFiltersLower", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARN")
		defer SetLevel("INFO")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("InvalidLevelIgnored", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("VERBOSE")

		Info("still visible")
		assert.Contains(t, buf.String(), "still visible")
	})
}

func TestStructuredFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	Info("staging step", KeyTxnID, "txn-1", KeyPath, "/work/a.txt")

	out := buf.String()
	assert.Contains(t, out, "txn_id=txn-1")
	assert.Contains(t, out, "path=/work/a.txt")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	defer SetFormat("text")

	Info("committed", KeyTxnID, "txn-2", KeySequence, int64(7))

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))

	assert.Equal(t, "committed", record["msg"])
	assert.Equal(t, "txn-2", record["txn_id"])
	assert.Equal(t, float64(7), record["seq"])
}

func TestContextFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	oc := NewOpContext("txn-3", "cap-9")
	ctx := WithContext(context.Background(), oc.WithOp("write-file"))

	InfoCtx(ctx, "step done")

	out := buf.String()
	assert.Contains(t, out, "txn_id=txn-3")
	assert.Contains(t, out, "capability=cap-9")
	assert.Contains(t, out, "op=write-file")
}

func TestContextFieldsAbsent(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	InfoCtx(context.Background(), "no scoping")

	out := buf.String()
	assert.Contains(t, out, "no scoping")
	assert.NotContains(t, out, "txn_id")
}
