package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	assert.True(t, strings.HasSuffix(path, filepath.Join(".foldrank", "logs", "server.log")))
	assert.Equal(t, DefaultLogDir(), filepath.Dir(path))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

// =============================================================================
// Setup
// =============================================================================

func TestSetup_StderrOnly(t *testing.T) {
	// Given: a stderr-only config at warn level
	var buf bytes.Buffer
	logger, cleanup, err := Setup(Config{Level: "warn", Stderr: &buf})
	require.NoError(t, err)
	defer cleanup()

	// When: logging at two levels
	logger.Info("hidden")
	logger.Warn("shown", slog.String("key", "value"))

	// Then: only the warning is written
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "key=value")
}

func TestSetup_FileAndStderr(t *testing.T) {
	// Given: file and stderr output
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path, Stderr: &buf})
	require.NoError(t, err)

	// When: logging once
	logger.With(slog.String("component", "ranker")).Debug("rank_completed", slog.Int("returned", 2))
	cleanup()

	// Then: both sinks receive the record, the file as JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"rank_completed"`)
	assert.Contains(t, string(data), `"component":"ranker"`)
	assert.Contains(t, buf.String(), "rank_completed")
}

func TestSetup_NoSinksDiscards(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()

	assert.NotPanics(t, func() { logger.Info("nowhere") })
}

func TestSetupServerMode_StdioNeverWritesStderr(t *testing.T) {
	// Given: stdio transport with a stderr writer available
	prev := slog.Default()
	defer slog.SetDefault(prev)
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "server.log")

	// When: setting up server logging
	cleanup, err := SetupServerMode("info", path, true, &stderr)
	require.NoError(t, err)
	slog.Info("tool_called")
	cleanup()

	// Then: the file has the record and stderr stays empty
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tool_called")
	assert.Empty(t, stderr.String())
}

func TestSetupServerMode_HTTPAlsoWritesStderr(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	var stderr bytes.Buffer

	cleanup, err := SetupServerMode("info", filepath.Join(t.TempDir(), "server.log"), false, &stderr)
	require.NoError(t, err)
	slog.Info("tool_called")
	cleanup()

	assert.Contains(t, stderr.String(), "tool_called")
}

// =============================================================================
// RotatingWriter
// =============================================================================

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a writer with a 100 byte limit
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := newRotatingWriterBytes(path, 100, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: writing more than the limit
	line := strings.Repeat("x", 60) + "\n"
	for i := 0; i < 3; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	// Then: older content moved to .1 and .2
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, line, string(data))
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := newRotatingWriterBytes(path, 10, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	for i := 0; i < 6; i++ {
		_, err := fmt.Fprintf(w, "entry-%02d\n", i)
		require.NoError(t, err)
	}

	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
	data, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "entry-04\n", string(data))
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "server.log"), 1, 2)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Sync())
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = fmt.Fprintf(w, "line-%d\n", i)
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 20)
}
