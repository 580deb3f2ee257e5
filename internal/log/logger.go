package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	filePrefix = "server_"
	fileSuffix = ".log"
)

// New builds a zerolog logger with the given level string (debug, info, warn, error).
func New(level string) *zerolog.Logger {
	logger := newLogger(level, consoleWriter(os.Stdout))
	return &logger
}

// NewWithFile logs to the console and to a daily file <dir>/server_YYYYMMDD.log.
// The returned closer closes the file.
func NewWithFile(level, dir string, now time.Time) (*zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, FileName(now))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	out := zerolog.MultiLevelWriter(consoleWriter(os.Stdout), f)
	logger := newLogger(level, out)
	return &logger, f, nil
}

// FileName returns the log file name for the day of t.
func FileName(t time.Time) string {
	return filePrefix + t.Format("20060102") + fileSuffix
}

// CleanupOldLogs deletes log files in dir last modified more than days before now
// and returns the removed names.
func CleanupOldLogs(dir string, days int, now time.Time) ([]string, error) {
	if days <= 0 {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}

	cutoff := now.AddDate(0, 0, -days)
	var removed []string
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("remove %s: %w", path, err)
			}
			removed = append(removed, filepath.Base(path))
		}
	}
	return removed, nil
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
}

func newLogger(level string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(out).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
