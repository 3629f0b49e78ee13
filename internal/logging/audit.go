package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventStartup         AuditEventType = "startup"
	AuditEventShutdown        AuditEventType = "shutdown"
	AuditEventConfigChange    AuditEventType = "config_change"
	AuditEventAnalysis        AuditEventType = "analysis"
	AuditEventSignalsRejected AuditEventType = "signals_rejected"
	AuditEventError           AuditEventType = "error"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Result    string         `json:"result"` // "success" or "failure"
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSizeMB is the size in MB that triggers rotation.
	MaxSizeMB int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// MaxAgeDays is the maximum age in days of rotated files.
	MaxAgeDays int

	// Component is stamped on events that do not name one.
	Component string
}

// AuditLogger appends JSON lines to a rotating audit file.
type AuditLogger struct {
	config  AuditLoggerConfig
	rotator *FileRotator
	mu      sync.Mutex
	now     func() time.Time
}

// NewAuditLogger opens the audit trail at cfg.FilePath.
func NewAuditLogger(cfg AuditLoggerConfig) (*AuditLogger, error) {
	if cfg.Component == "" {
		cfg.Component = "truthsig"
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}

	rotator, err := NewFileRotator(Rotation{
		Path:       cfg.FilePath,
		MaxBytes:   int64(cfg.MaxSizeMB) << 20,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		Compress:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}

	return &AuditLogger{config: cfg, rotator: rotator, now: time.Now}, nil
}

// Log writes an audit event. A nil AuditLogger drops the event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	data = append(data, '\n')
	if _, err := a.rotator.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogAnalysis records a completed analysis.
func (a *AuditLogger) LogAnalysis(ctx context.Context, file, id, sha256 string, score int, label string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventAnalysis,
		Action:    "analysis_completed",
		Resource:  file,
		Result:    "success",
		Details: map[string]any{
			"analysis_id": id,
			"sha256":      sha256,
			"trust_score": score,
			"label":       label,
		},
	})
}

// LogAnalysisFailed records an analysis that could not run.
func (a *AuditLogger) LogAnalysisFailed(ctx context.Context, file string, err error) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventAnalysis,
		Action:    "analysis_failed",
		Resource:  file,
		Result:    "failure",
		Error:     errString(err),
	})
}

// LogSignalsRejected records an external signals file that failed
// validation.
func (a *AuditLogger) LogSignalsRejected(ctx context.Context, path string, err error) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventSignalsRejected,
		Action:    "signals_rejected",
		Resource:  path,
		Result:    "failure",
		Error:     errString(err),
	})
}

// LogConfigChange logs a configuration reload.
func (a *AuditLogger) LogConfigChange(ctx context.Context, path string, details map[string]any) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    "config_reloaded",
		Resource:  path,
		Result:    "success",
		Details:   details,
	})
}

// LogError logs a failed operation.
func (a *AuditLogger) LogError(ctx context.Context, operation string, err error, details map[string]any) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventError,
		Action:    operation,
		Result:    "failure",
		Error:     errString(err),
		Details:   details,
	})
}

// LogStartup logs the start of a long-running command.
func (a *AuditLogger) LogStartup(ctx context.Context, version string, details map[string]any) error {
	if details == nil {
		details = make(map[string]any)
	}
	details["version"] = version
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventStartup,
		Action:    "watch_started",
		Result:    "success",
		Details:   details,
	})
}

// LogShutdown logs the end of a long-running command.
func (a *AuditLogger) LogShutdown(ctx context.Context, reason string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventShutdown,
		Action:    "watch_stopped",
		Result:    "success",
		Details:   map[string]any{"reason": reason},
	})
}

// Sync flushes the audit file.
func (a *AuditLogger) Sync() error {
	if a == nil {
		return nil
	}
	return a.rotator.Sync()
}

// Close closes the audit file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	return a.rotator.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
