package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dc.log")
	l, err := New(Options{Level: "info", Format: "json", File: true, Path: path})
	if err != nil { t.Fatalf("New: %v", err) }
	l.Info("shot_submit_ok", zap.String("match_id", "m-1"))
	l.Debug("hidden")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	if err != nil { t.Fatalf("read log: %v", err) }
	s := string(raw)
	if !strings.Contains(s, `"msg":"shot_submit_ok"`) || !strings.Contains(s, `"match_id":"m-1"`) {
		t.Fatalf("unexpected log output: %s", s)
	}
	if strings.Contains(s, "hidden") { t.Fatalf("debug entry leaked at info level") }
}

func TestSetNilFallsBackToNop(t *testing.T) {
	prev := L()
	defer Set(prev)
	Set(nil)
	if L() == nil { t.Fatalf("L must never be nil") }
	L().Info("dropped")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{"debug": zapcore.DebugLevel, " WARN ": zapcore.WarnLevel, "warning": zapcore.WarnLevel, "error": zapcore.ErrorLevel, "": zapcore.InfoLevel, "bogus": zapcore.InfoLevel}
	for in, want := range cases {
		if got := parseLevel(in); got != want { t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want) }
	}
}

func TestOptionsFromEnvDefaults(t *testing.T) {
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_TO_CONSOLE", "")
	o := OptionsFromEnv()
	if o.Path != DefaultLogFile || o.File || !o.Console { t.Fatalf("options = %+v", o) }
}
