package sysutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	// no args -> ""
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("FirstNonEmpty() = %q; want \"\"", got)
	}
	// only empties -> ""
	if got := FirstNonEmpty(" ", "\t", "\n"); got != "" {
		t.Fatalf("FirstNonEmpty(empties) = %q; want \"\"", got)
	}
	// picks first non-empty (preserves original spacing)
	if got := FirstNonEmpty("   ", "  hello  ", "world"); got != "  hello  " {
		t.Fatalf("FirstNonEmpty(...) = %q; want %q", got, "  hello  ")
	}
	// first already non-empty
	if got := FirstNonEmpty("alpha", "beta"); got != "alpha" {
		t.Fatalf("FirstNonEmpty(...) = %q; want %q", got, "alpha")
	}
}

func TestSetupLogger_StdoutAndFile(t *testing.T) {
	origLevel, origCtx := zerolog.GlobalLevel(), zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		zerolog.DefaultContextLogger = origCtx
	})

	path := filepath.Join(t.TempDir(), "voucher.log")
	var stdout bytes.Buffer
	logger, closeFn := setupLogger(LogOptions{
		Level:   "warn",
		File:    path,
		Service: "go-voucher-gift",
		Role:    "worker",
	}, &stdout)

	logger.Info().Msg("dropped")
	logger.Warn().Str("voucherId", "v1").Msg("kept")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &line); err != nil {
		t.Fatalf("stdout should hold exactly one JSON line, got %q: %v", stdout.String(), err)
	}
	if line["message"] != "kept" || line["service"] != "go-voucher-gift" || line["role"] != "worker" {
		t.Fatalf("unexpected stdout line: %v", line)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"voucherId":"v1"`) || strings.Contains(string(data), "dropped") {
		t.Fatalf("unexpected file contents: %s", data)
	}

	if zerolog.DefaultContextLogger == nil {
		t.Fatalf("expected default context logger to be set")
	}
}

func TestSetupLogger_PrettyWithoutFile(t *testing.T) {
	origLevel, origCtx := zerolog.GlobalLevel(), zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		zerolog.DefaultContextLogger = origCtx
	})

	var stdout bytes.Buffer
	logger, closeFn := setupLogger(LogOptions{Level: "info", Pretty: true}, &stdout)
	logger.Info().Msg("hello console")
	if err := closeFn(); err != nil {
		t.Fatalf("no-op close returned %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "hello console") || strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console formatted output, got %q", out)
	}
}
