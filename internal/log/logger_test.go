package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(&LoggerConfig{Level: "loud"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level      string
		wantDebug  bool
		wantInfo   bool
		debugLines int
	}{
		{"debug", true, true, 1},
		{"info", false, true, 0},
		{"warn", false, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(&LoggerConfig{Level: tt.level, Pattern: "%level %msg"}, &buf)
			require.NoError(t, err)

			assert.Equal(t, tt.wantDebug, l.IsDebugEnabled())
			assert.Equal(t, tt.wantInfo, l.IsInfoEnabled())

			l.Debug("probe")
			assert.Equal(t, tt.debugLines, strings.Count(buf.String(), "DEBUG probe"))
		})
	}
}

func TestFormatterPattern(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&LoggerConfig{Level: "info", Pattern: "[%level] %field | %msg%n"}, &buf)
	require.NoError(t, err)

	l.WithFields(map[string]interface{}{"queue": "vrt", "cap": 10000}).Warn("queue is full, dropping item")

	assert.Equal(t, "[WARNING] cap=10000,queue=vrt | queue is full, dropping item\n", buf.String())
}

func TestFormatterAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&LoggerConfig{Pattern: "%msg"}, &buf)
	require.NoError(t, err)

	l.Info("a")
	l.Info("b")
	assert.Equal(t, "a\nb\n", buf.String())
}

func TestFormatterCaller(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&LoggerConfig{Pattern: "%caller %func %msg"}, &buf)
	require.NoError(t, err)

	l.Info("here")
	assert.True(t, strings.HasPrefix(buf.String(), "log/logger_test.go:"), buf.String())
	assert.Contains(t, buf.String(), "TestFormatterCaller here")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&LoggerConfig{Pattern: "%field %msg"}, &buf)
	require.NoError(t, err)

	l.WithError(errors.New("boom")).Error("send failed")
	assert.Equal(t, "error=boom send failed\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestMultiWriterKeepsWritingAfterFailure(t *testing.T) {
	var a, b bytes.Buffer
	w := NewMultiWriter().Add(&a).Add(failingWriter{}).Add(&b)

	n, err := w.Write([]byte("line"))
	assert.Equal(t, 4, n)
	assert.Error(t, err)
	assert.Equal(t, "line", a.String())
	assert.Equal(t, "line", b.String())
}

func TestInitWithFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")

	err := Init(&LoggerConfig{
		Level:   "debug",
		Pattern: "%msg",
		File:    FileAppenderOpt{Enabled: true, Filename: path, MaxSize: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close() })

	GetLogger().Info("written to file")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "written to file\n", string(data))
}

func TestGetLoggerBeforeInit(t *testing.T) {
	assert.NotNil(t, GetLogger())
}
