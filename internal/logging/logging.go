// Package logging builds the run's zerolog.Logger: console plus, when a
// logs directory is configured, a debug-and-above file and an
// error-and-above file. With no logs directory the logger is silenced.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// New builds the root logger for a run. logsDir may be empty, in which
// case all output is discarded (the original's NullHandler branch).
func New(logsDir string) (zerolog.Logger, error) {
	if logsDir == "" {
		return zerolog.New(io.Discard), nil
	}

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return zerolog.Logger{}, fmt.Errorf("creating logs dir %s: %w", logsDir, err)
	}

	debugFile, err := os.OpenFile(filepath.Join(logsDir, "logs.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("opening logs.log: %w", err)
	}

	errorFile, err := os.OpenFile(filepath.Join(logsDir, "error_logs.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("opening error_logs.log: %w", err)
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}

	writer := zerolog.MultiLevelWriter(
		console,
		debugFile,
		levelFiltered{w: errorFile, min: zerolog.ErrorLevel},
	)

	return zerolog.New(writer).With().Timestamp().Logger(), nil
}

// levelFiltered drops writes below min, turning a plain io.Writer into a
// per-level sink when wrapped by zerolog.MultiLevelWriter.
type levelFiltered struct {
	w   io.Writer
	min zerolog.Level
}

func (l levelFiltered) Write(p []byte) (int, error) {
	return len(p), nil
}

func (l levelFiltered) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < l.min {
		return len(p), nil
	}
	return l.w.Write(p)
}
