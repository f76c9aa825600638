package logging

import (
	"io"
	"log/slog"
)

// SetupServerMode installs the default logger for `foldrank serve`.
//
// With the stdio transport stdout carries JSON-RPC, and MCP clients often
// show stderr as an error stream, so logs go only to the file at path
// (DefaultLogPath when empty). The http transport also logs to stderr.
func SetupServerMode(level, path string, stdio bool, stderr io.Writer) (func(), error) {
	if path == "" {
		path = DefaultLogPath()
	}
	cfg := Config{
		Level:     level,
		FilePath:  path,
		MaxSizeMB: 10,
		MaxFiles:  5,
	}
	if !stdio {
		cfg.Stderr = stderr
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("server_logging_initialized",
		slog.String("log_file", path),
		slog.String("level", level),
		slog.Bool("stderr", cfg.Stderr != nil))

	return cleanup, nil
}
