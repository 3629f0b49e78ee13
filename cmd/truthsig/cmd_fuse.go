package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"truthsig/internal/fusion"
	"truthsig/internal/report"
)

var fuseFlags struct {
	signals       string
	visual        string
	visualSummary string
	container     string
	format        string
}

var fuseCmd = &cobra.Command{
	Use:   "fuse",
	Short: "Fuse external signals into a trust assessment without touching media",
	Long: `Score a set of externally extracted signals. The visual and container
verdicts that analyze would compute are given as flags instead.

Usage:
  truthsig fuse --signals signals.json
  truthsig fuse --signals signals.json --visual SUSPICIOUS --container ANOMALY --format json`,
	Args: cobra.NoArgs,
	RunE: runFuse,
}

func init() {
	f := fuseCmd.Flags()
	f.StringVar(&fuseFlags.signals, "signals", "", "External signals JSON")
	f.StringVar(&fuseFlags.visual, "visual", string(fusion.VisualNotAvailable), "Visual forensics status: CLEAR, SUSPICIOUS, NOT_AVAILABLE or ERROR")
	f.StringVar(&fuseFlags.visualSummary, "visual-summary", "", "Summary sentence for the visual verdict")
	f.StringVar(&fuseFlags.container, "container", "", "Container status: OK, ANOMALY or NOT_AVAILABLE (default: no container signal)")
	f.StringVarP(&fuseFlags.format, "format", "f", "text", "Output format: text, markdown or json")
}

func parseVisualStatus(s string) (fusion.VisualStatus, error) {
	switch v := fusion.VisualStatus(strings.ToUpper(s)); v {
	case fusion.VisualClear, fusion.VisualSuspicious, fusion.VisualNotAvailable, fusion.VisualError:
		return v, nil
	}
	return "", fmt.Errorf("unknown visual status %q", s)
}

func parseContainerStatus(s string) (fusion.ContainerStatus, error) {
	switch v := fusion.ContainerStatus(strings.ToUpper(s)); v {
	case fusion.ContainerOK, fusion.ContainerAnomaly, fusion.ContainerNotAvailable:
		return v, nil
	}
	return "", fmt.Errorf("unknown container status %q", s)
}

func runFuse(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(fuseFlags.format)
	if err != nil {
		return err
	}
	visual, err := parseVisualStatus(fuseFlags.visual)
	if err != nil {
		return err
	}
	var container *fusion.ContainerAnomalies
	if fuseFlags.container != "" {
		status, err := parseContainerStatus(fuseFlags.container)
		if err != nil {
			return err
		}
		container = &fusion.ContainerAnomalies{Status: status}
	}

	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ext, err := env.loadSignals(env.context(cmd.Context()), fuseFlags.signals)
	if err != nil {
		return err
	}

	in := ext.Inputs(container, &fusion.VisualForensics{
		Status:  visual,
		Summary: fuseFlags.visualSummary,
	})
	assessment := env.analyzer.Engine().Fuse(in)
	env.log.Debug("fused signals", "trust_score", assessment.TrustScore, "label", assessment.Label)

	return report.PrintAssessment(cmd.OutOrStdout(), format, assessment)
}
