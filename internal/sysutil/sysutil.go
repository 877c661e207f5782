// Package sysutil holds process bootstrap helpers shared by the API and
// worker binaries.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures the process logger.
type LogOptions struct {
	Level   string
	Pretty  bool
	File    string // optional; rotated by lumberjack when set
	Service string
	Role    string

	// Rotation; zero values use lumberjack defaults except MaxSizeMB (100).
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SetLogLevel configures the global zerolog level based on a string value.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// SetupLogger sets the global level and builds the process logger. Output
// goes to stdout (console format when Pretty) and, when File is set, also to
// a size-rotated JSON file. The logger becomes zerolog's default context
// logger so zerolog.Ctx works on contexts that never had one attached.
//
// The returned closer releases the log file; it is a no-op without one.
func SetupLogger(opts LogOptions) (zerolog.Logger, func() error) {
	return setupLogger(opts, os.Stdout)
}

func setupLogger(opts LogOptions, stdout io.Writer) (zerolog.Logger, func() error) {
	SetLogLevel(opts.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var console io.Writer = stdout
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}

	out := console
	closer := func() error { return nil }
	if f := strings.TrimSpace(opts.File); f != "" {
		size := opts.MaxSizeMB
		if size <= 0 {
			size = 100
		}
		lj := &lumberjack.Logger{
			Filename:   f,
			MaxSize:    size,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, lj)
		closer = lj.Close
	}

	lctx := zerolog.New(out).With().Timestamp()
	if opts.Service != "" {
		lctx = lctx.Str("service", opts.Service)
	}
	if opts.Role != "" {
		lctx = lctx.Str("role", opts.Role)
	}
	logger := lctx.Logger()
	zerolog.DefaultContextLogger = &logger
	return logger, closer
}

// FirstNonEmpty returns the first non-empty string from a variadic list.
// If all values are empty, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
