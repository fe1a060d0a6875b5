package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextFormatter(t *testing.T) {
	f := NewTextFormatter()
	entry := &LogEntry{
		Time:     time.Now(),
		Level:    LogLevelInfo,
		Category: "Test",
		Message:  "Hello",
		Fields:   []Field{{Key: "key", Value: "val"}},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)

	str := string(out)
	assert.Contains(t, str, "INFO")
	assert.Contains(t, str, "[Test]")
	assert.Contains(t, str, "Hello")
	assert.Contains(t, str, "key=val")
	assert.True(t, strings.HasSuffix(str, "\n"))
}

func TestJsonFormatter(t *testing.T) {
	f := NewJsonFormatter()
	entry := &LogEntry{
		Time:     time.Now(),
		Level:    LogLevelWarn,
		Category: "Test",
		Message:  "Hello",
		Fields:   []Field{F("key", "val"), F("err", errors.New("boom"))},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)

	var data map[string]any
	require.NoError(t, json.Unmarshal(out, &data))

	assert.Equal(t, "WARN", data["level"])
	assert.Equal(t, "Test", data["category"])
	fields, ok := data["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "val", fields["key"])
	assert.Equal(t, "boom", fields["err"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace": LogLevelTrace,
		"DEBUG": LogLevelDebug,
		"":      LogLevelInfo,
		"warn":  LogLevelWarn,
		"off":   LogLevelNone,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerMinimumLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggingBuilder().
		SetMinimumLevel(LogLevelWarn).
		AddConsole(ConsoleLoggerOptions{Output: &buf, Formatter: &TextFormatter{}}).
		Build().
		CreateLogger("di")

	logger.Debug("hidden")
	logger.Warn("shown", F("n", 1))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN [di] shown {n=1}")
	assert.False(t, logger.Enabled(LogLevelInfo))
	assert.True(t, logger.Enabled(LogLevelError))
}

func TestLoggerWithFieldsDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggingBuilder().
		SetMinimumLevel(LogLevelTrace).
		AddConsole(ConsoleLoggerOptions{Output: &buf, Formatter: &TextFormatter{}}).
		Build().
		CreateLogger("base")

	a := base.WithFields(F("a", 1))
	b := base.WithFields(F("b", 2))
	a.Info("from a")
	b.WithCategory("other").Info("from b")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[base] from a {a=1}")
	assert.Contains(t, lines[1], "[other] from b {b=2}")
}

func TestNopLogger(t *testing.T) {
	l := Nop()
	l.Error("ignored")
	assert.False(t, l.Enabled(LogLevelError))
	assert.NotNil(t, l.WithFields(F("k", "v")))
}

func TestAsyncWriter(t *testing.T) {
	writer := &syncWriter{}
	asyncWriter := NewAsyncWriter(writer, NewJsonFormatter(), 10)

	for i := 0; i < 5; i++ {
		asyncWriter.WriteLog(&LogEntry{Time: time.Now(), Level: LogLevelInfo, Message: "Async"})
	}
	require.NoError(t, asyncWriter.Close())

	lines := strings.Split(strings.TrimSpace(writer.String()), "\n")
	assert.Len(t, lines, 5)
}

type syncWriter struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
