package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "text": FormatText, "JSON": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestLevelString(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error"} {
		level, _ := ParseLevel(name)
		if got := LevelString(level); got != name {
			t.Errorf("LevelString(%v) = %q, want %q", level, got, name)
		}
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings("debug", "json", "file", "/tmp/x.log", 10, 2, 7)
	if err != nil {
		t.Fatalf("FromSettings: %v", err)
	}
	if cfg.Level != LevelDebug || cfg.Format != FormatJSON || cfg.Output != "file" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	rot := cfg.rotation()
	if rot.MaxBytes != 10<<20 || rot.MaxBackups != 2 || rot.MaxAge != 7*24*time.Hour {
		t.Errorf("unexpected rotation: %+v", rot)
	}

	if _, err := FromSettings("loud", "text", "stderr", "", 1, 1, 1); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := FromSettings("info", "xml", "stderr", "", 1, 1, 1); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"api_key", true},
		{"auth_token", true},
		{"bearer", true},
		{"private_key", true},
		{"cookie", true},
		{"file", false},
		{"sha256", false},
		{"key", false},
		{"trust_score", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, got, test.expected)
			}
		})
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:     LevelInfo,
		Format:    FormatJSON,
		Writer:    &buf,
		Component: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.WithRequestID("req-1").Info("analysis complete", "trust_score", 64, "api_key", "hunter2")
	logger.Debug("hidden")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not a single JSON record: %v\n%s", err, buf.String())
	}
	if rec["component"] != "test" || rec["request_id"] != "req-1" {
		t.Errorf("missing attrs: %v", rec)
	}
	if rec["trust_score"] != float64(64) {
		t.Errorf("trust_score = %v", rec["trust_score"])
	}
	if rec["api_key"] != "[REDACTED]" {
		t.Errorf("api_key not redacted: %v", rec["api_key"])
	}
}

func TestNewRequestID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Writer = &bytes.Buffer{}
	cfg.Component = "test"

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	id1 := logger.NewRequestID()
	id2 := logger.WithComponent("child").NewRequestID()
	if id1 == id2 {
		t.Error("NewRequestID returned duplicate IDs")
	}
	if !strings.HasPrefix(id1, "test-") {
		t.Errorf("NewRequestID should start with component name, got %q", id1)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-456")
	if got := RequestIDFromContext(ctx); got != "req-456" {
		t.Errorf("expected req-456, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	//nolint:staticcheck // nil context is handled
	if got := RequestIDFromContext(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelInfo, Format: FormatText, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := ContextWithRequestID(context.Background(), "req-789")
	logger.WithContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "request_id=req-789") {
		t.Errorf("request id missing from %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "truthsig.log")
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = path

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("written to file")
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestFileRotatorRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	rotator, err := NewFileRotator(Rotation{Path: path, MaxBytes: 32, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}
	defer rotator.Close()

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rotator.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	line := []byte("0123456789abcdef0123\n") // 21 bytes
	for i := 0; i < 5; i++ {
		if _, err := rotator.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	backups, err := rotator.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(backups) != 2 {
		t.Errorf("expected backups capped at 2, got %d: %v", len(backups), backups)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat live file: %v", err)
	}
	if info.Size() != int64(len(line)) {
		t.Errorf("live file size = %d, want %d", info.Size(), len(line))
	}
}

func TestFileRotatorDailyAndCompress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.log")
	rotator, err := NewFileRotator(Rotation{Path: path, Compress: true})
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}
	defer rotator.Close()

	day := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	rotator.now = func() time.Time { return day }
	rotator.openedAt = day

	rotator.Write([]byte("first day\n"))
	day = day.Add(2 * time.Hour)
	rotator.Write([]byte("second day\n"))

	backups, _ := rotator.Backups()
	if len(backups) != 1 || !strings.HasSuffix(backups[0], ".log.gz") {
		t.Fatalf("expected one compressed backup, got %v", backups)
	}
}

func TestNewFileRotatorRequiresPath(t *testing.T) {
	if _, err := NewFileRotator(Rotation{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestAuditLogger(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")

	audit, err := NewAuditLogger(AuditLoggerConfig{FilePath: auditPath, Component: "test"})
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer audit.Close()

	ctx := ContextWithRequestID(context.Background(), "req-1")
	checks := []error{
		audit.LogStartup(ctx, "1.0.0", nil),
		audit.LogAnalysis(ctx, "photo.png", "id-1", "abc", 64, "MEDIUM"),
		audit.LogAnalysisFailed(ctx, "gone.png", os.ErrNotExist),
		audit.LogSignalsRejected(ctx, "signals.json", errors.New("bad enum")),
		audit.LogConfigChange(ctx, "config.toml", map[string]any{"prior": 50}),
		audit.LogError(ctx, "store", errors.New("disk full"), nil),
		audit.LogShutdown(ctx, "signal"),
	}
	for i, err := range checks {
		if err != nil {
			t.Errorf("event %d: %v", i, err)
		}
	}
	audit.Sync()

	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(checks) {
		t.Fatalf("expected %d lines, got %d", len(checks), len(lines))
	}

	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("line 2 is not valid JSON: %v", err)
	}
	if ev.EventType != AuditEventAnalysis || ev.Resource != "photo.png" || ev.RequestID != "req-1" || ev.Component != "test" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Details["label"] != "MEDIUM" {
		t.Errorf("label detail = %v", ev.Details["label"])
	}

	if err := json.Unmarshal([]byte(lines[2]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Result != "failure" || ev.Error == "" {
		t.Errorf("failed analysis not recorded as failure: %+v", ev)
	}
}

func TestNilAuditLogger(t *testing.T) {
	var audit *AuditLogger
	if err := audit.LogAnalysis(context.Background(), "f", "id", "x", 1, "LOW"); err != nil {
		t.Errorf("nil audit logger returned %v", err)
	}
	if err := audit.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}

func TestCrashHandler(t *testing.T) {
	var stderr bytes.Buffer
	var seen []CrashReport
	handler := NewCrashHandler(CrashHandlerConfig{
		CrashDir:  t.TempDir(),
		Version:   "1.0.0",
		Component: "test",
		Stderr:    &stderr,
		OnCrash:   func(r CrashReport) { seen = append(seen, r) },
	})

	ok := handler.RecoverWithContext(map[string]any{"file": "a.png"}, func() {
		panic("boom")
	})
	if ok {
		t.Error("RecoverWithContext reported normal return after panic")
	}
	handler.Recover(func() { panic("again") })

	reports, err := handler.CrashReports()
	if err != nil {
		t.Fatalf("CrashReports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if len(seen) != 2 || seen[0].PanicValue != "boom" || seen[0].Context["file"] != "a.png" {
		t.Errorf("OnCrash saw %+v", seen)
	}
	if seen[0].Version != "1.0.0" || seen[0].Component != "test" {
		t.Errorf("unexpected report header: %+v", seen[0])
	}
	if !strings.Contains(stderr.String(), "=== CRASH REPORT ===") {
		t.Errorf("stderr summary missing: %q", stderr.String())
	}

	if !handler.RecoverWithContext(nil, func() {}) {
		t.Error("RecoverWithContext reported panic for a clean run")
	}
}

func TestCrashHandlerCleanupOld(t *testing.T) {
	handler := NewCrashHandler(CrashHandlerConfig{CrashDir: t.TempDir(), Stderr: &bytes.Buffer{}})
	handler.HandlePanic("old", nil)

	handler.now = func() time.Time { return time.Now().Add(time.Hour) }
	if err := handler.CleanupOldCrashReports(time.Minute); err != nil {
		t.Fatalf("CleanupOldCrashReports: %v", err)
	}
	reports, _ := handler.CrashReports()
	if len(reports) != 0 {
		t.Errorf("expected old reports removed, %d left", len(reports))
	}
}

func TestCrashHandlerWithoutDir(t *testing.T) {
	var stderr bytes.Buffer
	handler := NewCrashHandler(CrashHandlerConfig{Stderr: &stderr})
	report := handler.HandlePanic(errors.New("x"), nil)
	if report.PanicValue != "x" {
		t.Errorf("PanicValue = %q", report.PanicValue)
	}
	if reports, err := handler.CrashReports(); err != nil || reports != nil {
		t.Errorf("expected no stored reports, got %v %v", reports, err)
	}
}
