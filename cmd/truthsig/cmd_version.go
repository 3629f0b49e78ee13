package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"truthsig/internal/forensics"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and media toolchain availability",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "truthsig %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)

		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(out, "config: %v\n", err)
			return nil
		}
		tools := cfg.Toolchain()
		for _, name := range []string{forensics.ToolFFmpeg, forensics.ToolFFprobe} {
			state := "missing"
			if tools.Available(name) {
				state = "available"
			}
			fmt.Fprintf(out, "%-8s %s\n", name+":", state)
		}
		return nil
	},
}
