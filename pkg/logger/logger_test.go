package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestInitJSONHandlerWritesStructuredOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	Init(slog.LevelInfo, f, "json")
	Get().Info("hello", "key", "value")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"hello"`)
	assert.Contains(t, string(content), `"key":"value"`)
}

func TestFilteringHandlerSuppressesUnknownCallerBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	fh := &filteringHandler{handler: base, minLevel: slog.LevelInfo}

	// PC 0 mimics a record whose caller can't be resolved, the same way a
	// vendored dependency's logger call would look to runtime.FuncForPC.
	record := slog.NewRecord(recordTime, slog.LevelInfo, "from somewhere else", 0)
	require.NoError(t, fh.Handle(context.Background(), record))
	assert.Empty(t, buf.String())
}

func TestFilteringHandlerAllowsEverythingAtDebug(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	fh := &filteringHandler{handler: base, minLevel: slog.LevelDebug}
	l := slog.New(fh)

	l.Debug("visible at debug")
	assert.True(t, strings.Contains(buf.String(), "visible at debug"))
}

func TestOpenLogFileCreatesAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	f, cleanup, err := OpenLogFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("line one\n")
	require.NoError(t, err)
	cleanup()

	f2, cleanup2, err := OpenLogFile(path)
	require.NoError(t, err)
	_, err = f2.WriteString("line two\n")
	require.NoError(t, err)
	cleanup2()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(content))
}

func TestGetInitializesDefaultWhenUnset(t *testing.T) {
	defaultLogger = nil
	l := Get()
	assert.NotNil(t, l)
}
