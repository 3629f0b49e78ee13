package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"truthsig/internal/pipeline"
	"truthsig/internal/report"
	"truthsig/internal/store"
)

var historyFlags struct {
	limit  int
	sha256 string
	id     string
	verify bool
	format string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived analyses",
	Long: `List analyses saved with 'analyze --save' or by 'watch', newest first.

Usage:
  truthsig history --limit 50
  truthsig history --sha256 <hex>        # every analysis of the same content
  truthsig history --id <analysis-id>    # full report of one analysis
  truthsig history --verify              # re-hash archived payloads`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.IntVarP(&historyFlags.limit, "limit", "n", 20, "Maximum rows to list (0 for all)")
	f.StringVar(&historyFlags.sha256, "sha256", "", "Only analyses of content with this SHA-256")
	f.StringVar(&historyFlags.id, "id", "", "Show the full report of one analysis")
	f.BoolVar(&historyFlags.verify, "verify", false, "Check archived payloads against their stored hashes")
	f.StringVarP(&historyFlags.format, "format", "f", "text", "Output format: text, markdown or json")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(historyFlags.format)
	if err != nil {
		return err
	}

	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	st, err := env.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	switch {
	case historyFlags.verify:
		corrupted, err := st.VerifyAllAnalyses()
		if err != nil {
			return fmt.Errorf("verify archive: %w", err)
		}
		if len(corrupted) > 0 {
			for _, id := range corrupted {
				fmt.Fprintf(out, "corrupted: %s\n", id)
			}
			return fmt.Errorf("%d archived analyses failed verification", len(corrupted))
		}
		fmt.Fprintln(out, "All archived analyses verified.")
		return nil

	case historyFlags.id != "":
		rec, err := st.GetAnalysis(historyFlags.id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no archived analysis with id %s", historyFlags.id)
		}
		if err != nil {
			return err
		}
		an, err := pipeline.LoadArchived(rec)
		if err != nil {
			return err
		}
		return report.Write(out, format, an)
	}

	var records []store.AnalysisRecord
	if historyFlags.sha256 != "" {
		records, err = st.FindBySHA256(strings.ToLower(historyFlags.sha256))
	} else {
		records, err = st.ListAnalyses(historyFlags.limit)
	}
	if err != nil {
		return err
	}
	return report.PrintHistory(out, format, records)
}
