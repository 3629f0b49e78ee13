// Package config handles configuration loading, validation, and management for truthsig.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"truthsig/internal/forensics"
	"truthsig/internal/fusion"
)

// Version is the current configuration schema version.
const Version = 1

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRUTHSIG_"

// Config holds the complete configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Forensics tunes error-level analysis and frame sampling.
	Forensics ForensicsConfig `toml:"forensics" json:"forensics" yaml:"forensics"`

	// Fusion holds the prior, label thresholds and weight table.
	Fusion fusion.Config `toml:"fusion" json:"fusion" yaml:"fusion"`

	// Storage configuration for the analysis archive.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics exposition configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Watch configuration for drop-folder intake.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// ForensicsConfig holds visual forensics configuration.
type ForensicsConfig struct {
	// ArtifactDir is the root for heatmaps and extracted frames.
	ArtifactDir string `toml:"artifact_dir" json:"artifact_dir" yaml:"artifact_dir"`

	// JPEGQuality is the recompression quality used for error-level analysis.
	JPEGQuality int `toml:"jpeg_quality" json:"jpeg_quality" yaml:"jpeg_quality"`

	// Amplification scales the per-pixel difference.
	Amplification int `toml:"amplification" json:"amplification" yaml:"amplification"`

	// AnomalyThreshold is the mean difference at which media is SUSPICIOUS.
	AnomalyThreshold float64 `toml:"anomaly_threshold" json:"anomaly_threshold" yaml:"anomaly_threshold"`

	// FrameCount is the number of frames sampled from a video.
	FrameCount int `toml:"frame_count" json:"frame_count" yaml:"frame_count"`

	ProbeTimeoutSec int `toml:"probe_timeout_sec" json:"probe_timeout_sec" yaml:"probe_timeout_sec"`
	FrameTimeoutSec int `toml:"frame_timeout_sec" json:"frame_timeout_sec" yaml:"frame_timeout_sec"`

	// FFmpegPath and FFprobePath override PATH lookup.
	FFmpegPath  string `toml:"ffmpeg_path" json:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path" json:"ffprobe_path" yaml:"ffprobe_path"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// SaveByDefault archives every analysis without --save.
	SaveByDefault bool `toml:"save_by_default" json:"save_by_default" yaml:"save_by_default"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// AuditPath is the JSON-lines audit trail of analyses. Empty disables it.
	AuditPath string `toml:"audit_path" json:"audit_path" yaml:"audit_path"`

	// CrashDir receives crash reports from recovered panics.
	CrashDir string `toml:"crash_dir" json:"crash_dir" yaml:"crash_dir"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	// Enabled serves /metrics while watching.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ListenAddr is the address of the metrics HTTP server.
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// WatchConfig holds drop-folder configuration.
type WatchConfig struct {
	// Paths is a list of directories to monitor.
	Paths []string `toml:"paths" json:"paths" yaml:"paths"`

	// DebounceMs is how long a file must be stable before analysis.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// Parallel caps concurrent analyses.
	Parallel int `toml:"parallel" json:"parallel" yaml:"parallel"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Forensics: ForensicsConfig{
			ArtifactDir:      filepath.Join(PlatformCacheDir(), "artifacts"),
			JPEGQuality:      forensics.DefaultJPEGQuality,
			Amplification:    forensics.DefaultAmplification,
			AnomalyThreshold: forensics.DefaultAnomalyThreshold,
			FrameCount:       forensics.DefaultFrameCount,
			ProbeTimeoutSec:  int(forensics.DefaultProbeTimeout / time.Second),
			FrameTimeoutSec:  int(forensics.DefaultFrameTimeout / time.Second),
		},
		Fusion: fusion.DefaultConfig(),
		Storage: StorageConfig{
			Path: filepath.Join(dir, "truthsig.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "truthsig.log"),
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			AuditPath:  filepath.Join(PlatformLogDir(), "audit.log"),
			CrashDir:   filepath.Join(PlatformLogDir(), "crashes"),
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
		Watch: WatchConfig{
			Paths:      []string{},
			DebounceMs: 2000,
			Parallel:   2,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base data directory.
// TRUTHSIG_DATA_DIR overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv(EnvPrefix + "DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		c.Forensics.ArtifactDir,
	}
	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	if c.Logging.AuditPath != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.AuditPath))
	}
	if c.Logging.CrashDir != "" {
		dirs = append(dirs, c.Logging.CrashDir)
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with TRUTHSIG_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Forensics overrides
	if v := os.Getenv(EnvPrefix + "ARTIFACT_DIR"); v != "" {
		c.Forensics.ArtifactDir = v
	}
	if v := os.Getenv(EnvPrefix + "FFMPEG"); v != "" {
		c.Forensics.FFmpegPath = v
	}
	if v := os.Getenv(EnvPrefix + "FFPROBE"); v != "" {
		c.Forensics.FFprobePath = v
	}

	// Storage overrides
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Logging overrides
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_PATH"); v != "" {
		c.Logging.Output = "file"
		c.Logging.FilePath = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "AUDIT_PATH"); ok {
		if v == "off" {
			v = ""
		}
		c.Logging.AuditPath = v
	}
	if v := os.Getenv(EnvPrefix + "CRASH_DIR"); v != "" {
		c.Logging.CrashDir = v
	}

	// Metrics overrides
	if v := os.Getenv(EnvPrefix + "METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.ListenAddr = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:   c.Version,
		Forensics: c.Forensics,
		Fusion:    c.Fusion,
		Storage:   c.Storage,
		Logging:   c.Logging,
		Metrics:   c.Metrics,
		Watch:     c.Watch,
	}
	clone.Watch.Paths = append([]string{}, c.Watch.Paths...)

	return clone
}

// ForensicsOptions converts the forensics section into analyzer options.
func (c *Config) ForensicsOptions() forensics.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f := c.Forensics
	return forensics.Options{
		ArtifactDir:      expandPath(f.ArtifactDir),
		JPEGQuality:      f.JPEGQuality,
		Amplification:    f.Amplification,
		AnomalyThreshold: f.AnomalyThreshold,
		FrameCount:       f.FrameCount,
		ProbeTimeout:     time.Duration(f.ProbeTimeoutSec) * time.Second,
		FrameTimeout:     time.Duration(f.FrameTimeoutSec) * time.Second,
	}
}

// Toolchain returns the ffmpeg/ffprobe toolchain the configuration selects.
func (c *Config) Toolchain() *forensics.ExecToolchain {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return forensics.NewExecToolchain(expandPath(c.Forensics.FFmpegPath), expandPath(c.Forensics.FFprobePath))
}

// Debounce returns the watch debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// DatabasePath returns the storage path with ~ expanded.
func (c *Config) DatabasePath() string {
	return expandPath(c.Storage.Path)
}

// SaveConfig writes cfg to path, choosing the encoding by extension.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := encodeConfig(cfg, filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
