package observability

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)
	fn()
	return buf.String()
}

func TestStandardLogger_Levels(t *testing.T) {
	logger := NewStandardLogger("test")

	out := captureLog(t, func() {
		logger.Debug("hidden", nil)
		logger.Info("shown", nil)
	})
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")

	debugLogger := NewStandardLoggerWithLevel("test", LogLevelDebug)
	out = captureLog(t, func() {
		debugLogger.Debug("visible now", nil)
	})
	assert.Contains(t, out, "visible now")
}

func TestStandardLogger_WithFields(t *testing.T) {
	logger := NewStandardLogger("search").With(map[string]interface{}{
		"tenant_id":  "t1",
		"request_id": "r1",
	})

	out := captureLog(t, func() {
		logger.Info("pipeline complete", map[string]interface{}{"stage1Count": 512})
	})
	assert.Contains(t, out, "tenant_id=t1")
	assert.Contains(t, out, "request_id=r1")
	assert.Contains(t, out, "stage1Count=512")
	assert.Contains(t, out, "[search]")
}

func TestStandardLogger_FieldsSortedDeterministically(t *testing.T) {
	logger := NewStandardLogger("test")
	first := captureLog(t, func() {
		logger.Info("msg", map[string]interface{}{"b": 2, "a": 1, "c": 3})
	})
	second := captureLog(t, func() {
		logger.Info("msg", map[string]interface{}{"c": 3, "a": 1, "b": 2})
	})
	assert.True(t, strings.HasSuffix(first, "msg a=1 b=2 c=3\n"), "got: %q", first)
	assert.True(t, strings.HasSuffix(second, "msg a=1 b=2 c=3\n"), "got: %q", second)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("unknown"))
}
