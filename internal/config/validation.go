package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"truthsig/internal/fusion"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrInvalidConfig) match any non-empty collection.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && len(e) > 0
}

// Fields returns the offending field names in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateForensics(&c.Forensics)...)
	errs = append(errs, validateFusion(&c.Fusion)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateWatch(&c.Watch)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateForensics(f *ForensicsConfig) ValidationErrors {
	var errs ValidationErrors

	if f.JPEGQuality < 1 || f.JPEGQuality > 100 {
		errs = append(errs, *RangeError("forensics.jpeg_quality", 1, 100))
	}
	if f.Amplification < 1 {
		errs = append(errs, ValidationError{
			Field:   "forensics.amplification",
			Message: "amplification must be at least 1",
		})
	}
	if f.AnomalyThreshold <= 0 || f.AnomalyThreshold > 255 {
		errs = append(errs, ValidationError{
			Field:   "forensics.anomaly_threshold",
			Message: "threshold must be within (0, 255]",
		})
	}
	if f.FrameCount < 1 || f.FrameCount > 120 {
		errs = append(errs, *RangeError("forensics.frame_count", 1, 120))
	}
	if f.ProbeTimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "forensics.probe_timeout_sec",
			Message: "probe timeout must be at least 1 second",
		})
	}
	if f.FrameTimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "forensics.frame_timeout_sec",
			Message: "frame timeout must be at least 1 second",
		})
	}

	return errs
}

func validateFusion(f *fusion.Config) ValidationErrors {
	var errs ValidationErrors

	if f.Prior < 0 || f.Prior > 100 {
		errs = append(errs, *RangeError("fusion.prior", 0, 100))
	}
	if f.MediumThreshold < 0 || f.MediumThreshold > 100 {
		errs = append(errs, *RangeError("fusion.medium_threshold", 0, 100))
	}
	if f.HighThreshold < 0 || f.HighThreshold > 100 {
		errs = append(errs, *RangeError("fusion.high_threshold", 0, 100))
	}
	if f.HighThreshold < f.MediumThreshold {
		errs = append(errs, ValidationError{
			Field:   "fusion.high_threshold",
			Message: "high threshold cannot be below the medium threshold",
		})
	}
	if f.MaxReasons < 1 {
		errs = append(errs, ValidationError{
			Field:   "fusion.max_reasons",
			Message: "at least one reason must be reported",
		})
	}
	if b := f.Weights.CompletenessBaseline; b < 0 || b > 3 {
		errs = append(errs, *RangeError("fusion.weights.completeness_baseline", 0, 3))
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Path == "" {
		errs = append(errs, *RequiredFieldError("storage.path"))
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %q (valid: stdout, stderr, file)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if m.Enabled {
		if _, _, err := net.SplitHostPort(m.ListenAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics.listen_addr",
				Message: fmt.Sprintf("invalid listen address %q: %v", m.ListenAddr, err),
			})
		}
	}

	return errs
}

func validateWatch(w *WatchConfig) ValidationErrors {
	var errs ValidationErrors

	for i, path := range w.Paths {
		if expandPath(path) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("watch.paths[%d]", i),
				Message: "path cannot be empty",
			})
		}
	}

	if w.DebounceMs < 100 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Message: "debounce must be at least 100ms",
		})
	}
	if w.DebounceMs > 60000 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Message: "debounce cannot exceed 60000ms (1 minute)",
		})
	}
	if w.Parallel < 1 {
		errs = append(errs, ValidationError{
			Field:   "watch.parallel",
			Message: "parallelism must be at least 1",
		})
	}

	return errs
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
