package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the handler built by Configure.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is json (default) or text.
	Format string
	// File routes output to a size-rotated file instead of Output.
	File string
	// Output defaults to os.Stdout.
	Output io.Writer
}

var (
	mu     sync.Mutex
	logger *slog.Logger
)

// Configure initializes the shared logger and installs it as the slog default.
// Only the first successful call takes effect; later calls return the existing logger.
func Configure(opts Options) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		return logger, nil
	}

	l, err := New(opts)
	if err != nil {
		return nil, err
	}
	logger = l
	slog.SetDefault(l)
	return logger, nil
}

// New builds a logger without touching the shared instance.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.File != "" {
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(opts.Format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(out, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}
}

// Logger returns the configured slog logger, configuring JSON-to-stdout on first use if necessary.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}
