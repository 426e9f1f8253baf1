package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")

	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	l.Info("hello", zap.String("k", "v"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestActivityLog_TagsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")

	l, err := NewActivityLog(path)
	require.NoError(t, err)
	l.Info("sync started")
	l.Error("sync failed", zap.String("error", "boom"))
	require.NoError(t, l.Sync())

	lines, err := TailFile(path, 10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INFO")
	assert.Contains(t, lines[1], "ERROR")
	assert.Contains(t, lines[1], "boom")
}

func TestTail(t *testing.T) {
	input := "1\n2\n3\n4\n5\n"

	got, err := tail(strings.NewReader(input), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4", "5"}, got)

	got, err = tail(strings.NewReader(input), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, got)
}

func TestTailFile_ReadsOnlyTheEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	var b strings.Builder
	for i := 1; i <= 500; i++ {
		fmt.Fprintf(&b, "line %03d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	prev := tailChunk
	tailChunk = 16
	t.Cleanup(func() { tailChunk = prev })

	lines, err := TailFile(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 498", "line 499", "line 500"}, lines)

	window, err := readTail(strings.NewReader(b.String()), int64(b.Len()), 3)
	require.NoError(t, err)
	assert.Less(t, len(window), 100)

	lines, err = TailFile(path, 1000)
	require.NoError(t, err)
	assert.Len(t, lines, 500)
	assert.Equal(t, "line 001", lines[0])
}

func TestTailFile_Missing(t *testing.T) {
	lines, err := TailFile(filepath.Join(t.TempDir(), "nope.log"), 5)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestTee(t *testing.T) {
	a, err := New(&Config{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "a.log")})
	require.NoError(t, err)
	assert.NotNil(t, Tee(a, nil, zap.NewNop()))
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("anything"))
}
