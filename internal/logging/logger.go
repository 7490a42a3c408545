// Copyright (c) 2025 DataSender
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// FileNameLayout names a run's log file after its start time.
	FileNameLayout = "20060102_150405"
	// LineTimeLayout prefixes every log line.
	LineTimeLayout = "15:04:05"
)

// RunLog is the log stream of one pipeline run.
type RunLog struct {
	Logger *zap.Logger
	Path   string
	file   *os.File
}

// Close flushes the logger and closes the underlying file.
// It is safe to call more than once.
func (l *RunLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.Logger.Sync()
	err := l.file.Close()
	l.file = nil
	return err
}

// OpenRunLog creates <dir>/<yyyyMMdd_HHmmss>.log and a logger writing to it.
// Every line is "HH:mm:ss <message>", followed by structured fields if any.
// When echo is not nil, lines are also written there.
func OpenRunLog(dir string, start time.Time, echo io.Writer) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create log directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, start.Format(FileNameLayout)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %q: %w", path, err)
	}

	cores := []zapcore.Core{newLineCore(zapcore.AddSync(f))}
	if echo != nil {
		cores = append(cores, newLineCore(zapcore.AddSync(echo)))
	}

	return &RunLog{
		Logger: zap.New(zapcore.NewTee(cores...)),
		Path:   path,
		file:   f,
	}, nil
}

// NewLineLogger returns a logger with the run log line format writing to w.
func NewLineLogger(w io.Writer) *zap.Logger {
	return zap.New(newLineCore(zapcore.AddSync(w)))
}

func newLineCore(ws zapcore.WriteSyncer) zapcore.Core {
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout(LineTimeLayout),
		ConsoleSeparator: " ",
	})
	return zapcore.NewCore(encoder, ws, zapcore.DebugLevel)
}
