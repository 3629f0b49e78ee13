package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"truthsig/internal/config"
	"truthsig/internal/forensics"
	"truthsig/internal/fusion"
	"truthsig/internal/logging"
	"truthsig/internal/metrics"
	"truthsig/internal/pipeline"
	"truthsig/internal/schema"
	"truthsig/internal/store"
)

// appEnv is everything a command needs, built from the configuration.
type appEnv struct {
	cfg       *config.Config
	log       *logging.Logger
	audit     *logging.AuditLogger
	crashes   *logging.CrashHandler
	metrics   *metrics.Metrics
	schema    *schema.Validator
	analyzer  *pipeline.Analyzer
	requestID string
}

// configFile returns the config path in use: --config, then the first
// config.<format> found locally or in the config directory.
func configFile() string {
	if rootFlags.configPath != "" {
		return rootFlags.configPath
	}
	if path := config.FindConfigFile(); path != "" {
		return path
	}
	return config.ConfigPath()
}

// loadConfig reads .env, the config file and the environment, applies the
// global flag overrides and validates the result.
func loadConfig() (*config.Config, error) {
	config.LoadDotEnv()

	cfg, err := config.Load(configFile())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if rootFlags.logLevel != "" {
		cfg.Logging.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.Logging.Format = rootFlags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, lc config.LoggingConfig) (*logging.Logger, error) {
	lcfg, err := logging.FromSettings(lc.Level, lc.Format, lc.Output, lc.FilePath, lc.MaxSizeMB, lc.MaxBackups, lc.MaxAgeDays)
	if err != nil {
		return nil, err
	}
	if lc.Output == "" || lc.Output == "stderr" {
		lcfg.Writer = cmd.ErrOrStderr()
	}
	return logging.New(lcfg)
}

func newAnalyzer(cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) *pipeline.Analyzer {
	fa := forensics.NewAnalyzer(cfg.ForensicsOptions(), cfg.Toolchain(), logger.WithComponent("forensics").Logger)
	engine := fusion.NewEngineWithConfig(cfg.Fusion)
	return pipeline.NewAnalyzer(fa, engine, m, logger.Logger)
}

func newEnv(cmd *cobra.Command) (*appEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	base, err := newLogger(cmd, cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	requestID := base.NewRequestID()
	log := base.WithRequestID(requestID)
	logging.SetDefault(log)

	env := &appEnv{
		cfg:       cfg,
		log:       log,
		metrics:   metrics.New(),
		requestID: requestID,
		crashes: logging.NewCrashHandler(logging.CrashHandlerConfig{
			CrashDir: cfg.Logging.CrashDir,
			Version:  version,
			Stderr:   cmd.ErrOrStderr(),
		}),
	}

	if cfg.Logging.AuditPath != "" {
		env.audit, err = logging.NewAuditLogger(logging.AuditLoggerConfig{
			FilePath:   cfg.Logging.AuditPath,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		if err != nil {
			log.Warn("audit trail disabled", "error", err)
		}
	}

	env.schema, err = schema.Default()
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	env.analyzer = newAnalyzer(cfg, env.metrics, log)
	return env, nil
}

// context tags ctx with the request ID of this invocation.
func (e *appEnv) context(ctx context.Context) context.Context {
	return logging.ContextWithRequestID(ctx, e.requestID)
}

// loadSignals reads and validates an external signals file. An empty path
// means no external signals.
func (e *appEnv) loadSignals(ctx context.Context, path string) (*pipeline.ExternalSignals, error) {
	if path == "" {
		return nil, nil
	}
	sig, err := pipeline.LoadSignals(e.schema, path)
	if err != nil {
		e.audit.LogSignalsRejected(ctx, path, err)
		return nil, err
	}
	return sig, nil
}

func (e *appEnv) openStore() (*store.Store, error) {
	st, err := store.Open(e.cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return st, nil
}

// record archives a successful analysis and writes the audit line.
func (e *appEnv) record(ctx context.Context, st *store.Store, path string, an *pipeline.Analysis) error {
	e.audit.LogAnalysis(ctx, path, an.ID, an.SHA256, an.TrustScore, string(an.Label))
	if st == nil {
		return nil
	}
	if err := pipeline.Archive(st, an); err != nil {
		e.audit.LogError(ctx, "archive", err, map[string]any{"analysis_id": an.ID})
		return fmt.Errorf("archive %s: %w", path, err)
	}
	return nil
}

// recordFailure logs, audits and archives a file that could not be analyzed.
func (e *appEnv) recordFailure(ctx context.Context, st *store.Store, path string, cause error) {
	e.log.Error("analysis failed", "file", path, "error", cause)
	e.audit.LogAnalysisFailed(ctx, path, cause)
	if st == nil {
		return
	}
	if err := pipeline.ArchiveFailure(st, path, cause); err != nil {
		e.log.Warn("archive failure event", "file", path, "error", err)
	}
}

func (e *appEnv) Close() {
	if err := e.audit.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close audit trail: %v\n", err)
	}
	e.log.Close()
}
