// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type SetupParams struct {
	Level       string
	Format      string // "json" or "console"
	FileName    string
	ToStdout    bool
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Compression bool
}

// New returns a logger writing to stdout, to a rotated file, or to both.
// With no file and ToStdout unset, stdout is used anyway.
func New(params SetupParams) (*zap.Logger, error) {
	level, err := ParseLevel(params.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	if params.FileName != "" {
		maxSize := params.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   params.FileName,
			MaxSize:    maxSize,
			MaxBackups: params.MaxBackups,
			MaxAge:     params.MaxAgeDays,
			Compress:   params.Compression,
		})
	}
	if params.ToStdout || params.FileName == "" {
		writers = append(writers, os.Stdout)
	}

	return NewWithWriters(level, params.Format, writers...), nil
}

// NewWithWriters builds a logger that tees every entry into each writer.
func NewWithWriters(level zapcore.Level, format string, writers ...io.Writer) *zap.Logger {
	encoder := newEncoder(format)
	cores := make([]zapcore.Core, 0, len(writers))
	for _, w := range writers {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func newEncoder(format string) zapcore.Encoder {
	if strings.EqualFold(format, "json") {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
