package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// CrashDir is the directory to write crash dumps. Empty keeps reports
	// on stderr only.
	CrashDir string

	// Version is the application version.
	Version string

	// Component is the component name.
	Component string

	// Stderr receives the human-readable summary. Defaults to os.Stderr.
	Stderr io.Writer

	// OnCrash is called after a crash is recorded.
	OnCrash func(CrashReport)
}

// CrashHandler turns panics in worker goroutines into crash reports.
type CrashHandler struct {
	mu  sync.Mutex
	cfg CrashHandlerConfig
	seq int
	now func() time.Time
}

// NewCrashHandler creates a CrashHandler.
func NewCrashHandler(cfg CrashHandlerConfig) *CrashHandler {
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Component == "" {
		cfg.Component = "truthsig"
	}
	return &CrashHandler{cfg: cfg, now: time.Now}
}

// Recover runs fn and records any panic it raises.
func (h *CrashHandler) Recover(fn func()) {
	h.RecoverWithContext(nil, fn)
}

// RecoverWithContext runs fn, attaching contextInfo to any crash report.
// It reports whether fn returned normally.
func (h *CrashHandler) RecoverWithContext(contextInfo map[string]any, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.HandlePanic(r, contextInfo)
			ok = false
		}
	}()
	fn()
	return true
}

// HandlePanic records a panic value and the current stack.
func (h *CrashHandler) HandlePanic(panicValue any, contextInfo map[string]any) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    h.now().UTC(),
		Version:      h.cfg.Version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.cfg.Component,
		Context:      contextInfo,
	}

	path, err := h.writeCrashDump(report)

	fmt.Fprintf(h.cfg.Stderr, "\n=== CRASH REPORT ===\n")
	fmt.Fprintf(h.cfg.Stderr, "Time: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(h.cfg.Stderr, "Panic: %s\n", report.PanicValue)
	switch {
	case err != nil:
		fmt.Fprintf(h.cfg.Stderr, "Crash dump not written: %v\n", err)
	case path != "":
		fmt.Fprintf(h.cfg.Stderr, "Crash dump written to: %s\n", path)
	}

	if h.cfg.OnCrash != nil {
		h.cfg.OnCrash(report)
	}
	return report
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	if h.cfg.CrashDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(h.cfg.CrashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}

	h.seq++
	name := fmt.Sprintf("crash-%s-%s-%03d.json",
		report.Component,
		report.Timestamp.Format("20060102-150405"),
		h.seq)
	path := filepath.Join(h.cfg.CrashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports returns the reports stored in the crash directory.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	if h.cfg.CrashDir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.cfg.CrashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// CleanupOldCrashReports removes crash reports older than maxAge.
func (h *CrashHandler) CleanupOldCrashReports(maxAge time.Duration) error {
	if h.cfg.CrashDir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(h.cfg.CrashDir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := h.now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
