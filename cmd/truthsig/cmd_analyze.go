package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"truthsig/internal/pipeline"
	"truthsig/internal/report"
	"truthsig/internal/store"
)

var analyzeFlags struct {
	signals  string
	format   string
	save     bool
	parallel int
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Analyze images or videos and print their trust assessment",
	Long: `Run visual forensics on each file, check video containers with ffprobe and
fuse the results with the optional external signals into a trust score.

Usage:
  truthsig analyze photo.jpg
  truthsig analyze clip.mp4 --signals signals.json --format markdown
  truthsig analyze inbox/*.jpg --format json --save

Files are analyzed in parallel (see --parallel). A file that cannot be read
is reported and the others still complete; the command then exits non-zero.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.signals, "signals", "", "External signals JSON (provenance, metadata, AI disclosure)")
	f.StringVarP(&analyzeFlags.format, "format", "f", "text", "Output format: text, markdown or json")
	f.BoolVar(&analyzeFlags.save, "save", false, "Archive the analyses in the local database")
	f.IntVarP(&analyzeFlags.parallel, "parallel", "p", 0, "Concurrent analyses (default: watch.parallel from config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(analyzeFlags.format)
	if err != nil {
		return err
	}

	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()
	ctx := env.context(cmd.Context())

	ext, err := env.loadSignals(ctx, analyzeFlags.signals)
	if err != nil {
		return err
	}

	var st *store.Store
	if analyzeFlags.save || env.cfg.Storage.SaveByDefault {
		if st, err = env.openStore(); err != nil {
			return err
		}
		defer st.Close()
	}

	parallel := analyzeFlags.parallel
	if parallel <= 0 {
		parallel = env.cfg.Watch.Parallel
	}

	results := env.analyzer.AnalyzeAll(ctx, args, ext, parallel)

	var analyses []*pipeline.Analysis
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			env.recordFailure(ctx, st, r.Path, r.Err)
			continue
		}
		if err := env.record(ctx, st, r.Path, r.Analysis); err != nil {
			return err
		}
		analyses = append(analyses, r.Analysis)
	}

	if err := writeAnalyses(cmd.OutOrStdout(), format, analyses, len(args) == 1); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be analyzed", failed, len(args))
	}
	return nil
}

// writeAnalyses renders the analyses. JSON output is a single object when one
// file was requested and an array otherwise.
func writeAnalyses(w io.Writer, f report.Format, analyses []*pipeline.Analysis, single bool) error {
	if f == report.FormatJSON {
		if single && len(analyses) == 1 {
			return report.WriteJSON(w, analyses[0])
		}
		if analyses == nil {
			analyses = []*pipeline.Analysis{}
		}
		return report.WriteJSON(w, analyses)
	}

	for i, an := range analyses {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := report.Write(w, f, an); err != nil {
			return err
		}
	}
	return nil
}
