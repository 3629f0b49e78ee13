package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of analyzing one path of a batch.
type BatchResult struct {
	Path     string
	Analysis *Analysis
	Err      error
}

// AnalyzeAll analyzes paths with at most parallel analyses in flight.
// Results keep the order of paths; a failing file does not stop the others.
func (a *Analyzer) AnalyzeAll(ctx context.Context, paths []string, ext *ExternalSignals, parallel int) []BatchResult {
	if parallel <= 0 {
		parallel = 1
	}

	results := make([]BatchResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = BatchResult{Path: p, Err: err}
				return nil
			}
			an, err := a.Analyze(gctx, p, "", ext)
			results[i] = BatchResult{Path: p, Analysis: an, Err: err}
			return nil
		})
	}
	_ = g.Wait() // errors captured per result

	return results
}
