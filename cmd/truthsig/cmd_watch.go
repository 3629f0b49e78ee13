package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"truthsig/internal/config"
	"truthsig/internal/logging"
	"truthsig/internal/pipeline"
	"truthsig/internal/store"
	"truthsig/internal/watcher"
)

var watchFlags struct {
	signals     string
	metricsAddr string
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]...",
	Short: "Analyze and archive media dropped into inbox directories",
	Long: `Watch inbox directories and analyze every image or video once it has stopped
changing. Each analysis is archived and a one-line verdict is printed.

Directories default to watch.paths from the config. The config file is
reloaded on change; new forensics and fusion settings apply to the next file.
With metrics enabled (or --metrics-addr) Prometheus metrics are served on
/metrics.`,
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchFlags.signals, "signals", "", "External signals JSON applied to every file")
	f.StringVar(&watchFlags.metricsAddr, "metrics-addr", "", "Serve /metrics on this address (overrides config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	paths := args
	if len(paths) == 0 {
		paths = env.cfg.Watch.Paths
	}
	if len(paths) == 0 {
		return errors.New("no directories to watch: pass them as arguments or set watch.paths")
	}

	ctx, stop := signal.NotifyContext(env.context(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ext, err := env.loadSignals(ctx, watchFlags.signals)
	if err != nil {
		return err
	}

	st, err := env.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var current atomic.Pointer[pipeline.Analyzer]
	current.Store(env.analyzer)
	if loader := env.watchConfig(ctx, &current); loader != nil {
		defer loader.Close()
	}

	if srv := env.serveMetrics(); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	w, err := watcher.New(paths, env.cfg.Debounce(), pipeline.IsMediaFile)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	env.audit.LogStartup(ctx, version, map[string]any{"paths": paths})
	env.log.Info("watching", "paths", paths, "debounce", env.cfg.Debounce())

	out := &lockedWriter{w: cmd.OutOrStdout()}
	g := new(errgroup.Group)
	g.SetLimit(env.cfg.Watch.Parallel)

	for {
		select {
		case <-ctx.Done():
			g.Wait()
			env.audit.LogShutdown(context.WithoutCancel(ctx), context.Cause(ctx).Error())
			env.log.Info("watch stopped")
			return nil

		case err := <-w.Errors():
			env.log.Warn("watcher error", "error", err)

		case ev := <-w.Events():
			g.Go(func() error {
				env.crashes.RecoverWithContext(map[string]any{"file": ev.Path}, func() {
					env.processEvent(ctx, current.Load(), st, ev, ext, out)
				})
				return nil
			})
		}
	}
}

// processEvent analyzes one file emitted by the watcher.
func (e *appEnv) processEvent(ctx context.Context, a *pipeline.Analyzer, st *store.Store, ev watcher.Event, ext *pipeline.ExternalSignals, out io.Writer) {
	ctx = logging.ContextWithRequestID(ctx, e.log.NewRequestID())

	an, err := a.Analyze(ctx, ev.Path, "", ext)
	if err != nil {
		e.recordFailure(ctx, st, ev.Path, err)
		return
	}
	if err := e.record(ctx, st, ev.Path, an); err != nil {
		e.log.Error("archive analysis", "file", ev.Path, "error", err)
	}
	fmt.Fprintf(out, "%s\t%d\t%s\t%s\n", an.Filename, an.TrustScore, an.Label, an.OneLineRationale)
}

// watchConfig hot-reloads the config file, swapping in an analyzer built from
// the new settings. It returns nil when there is no file to watch.
func (e *appEnv) watchConfig(ctx context.Context, current *atomic.Pointer[pipeline.Analyzer]) *config.Loader {
	path := configFile()
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	loader := config.NewLoader(path)
	if _, err := loader.Load(); err != nil {
		e.log.Warn("config hot reload disabled", "path", path, "error", err)
		return nil
	}
	loader.OnChange(func(cfg *config.Config) {
		current.Store(newAnalyzer(cfg, e.metrics, e.log))
		e.audit.LogConfigChange(ctx, path, map[string]any{
			"high_threshold":   cfg.Fusion.HighThreshold,
			"medium_threshold": cfg.Fusion.MediumThreshold,
			"prior":            cfg.Fusion.Prior,
		})
		e.log.Info("config reloaded", "path", path)
	})
	if err := loader.Watch(); err != nil {
		e.log.Warn("config hot reload disabled", "path", path, "error", err)
		loader.Close()
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				e.log.Warn("config reload rejected", "path", path, "error", err)
			}
		}
	}()
	return loader
}

// serveMetrics starts the Prometheus endpoint when enabled.
func (e *appEnv) serveMetrics() *http.Server {
	addr := watchFlags.metricsAddr
	if addr == "" && e.cfg.Metrics.Enabled {
		addr = e.cfg.Metrics.ListenAddr
	}
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	e.log.Info("serving metrics", "addr", addr)
	return srv
}

// lockedWriter serializes verdict lines from concurrent workers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
