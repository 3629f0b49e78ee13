// truthsig scores how far a photo or video can be trusted. It runs error
// level analysis and video frame sampling locally and fuses the verdict with
// provenance and metadata signals extracted upstream.
//
// Usage:
//
//	truthsig analyze <file>... [--signals=<json>] [--format=text|markdown|json] [--save]
//	truthsig fuse [--signals=<json>] [--visual=<status>] [--container=<status>]
//	truthsig history [--limit=N] [--sha256=<hex>] [--id=<analysis-id>] [--verify]
//	truthsig watch [<dir>...] [--signals=<json>]
//	truthsig version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

var rootCmd = &cobra.Command{
	Use:   "truthsig",
	Short: "Media trust scoring from forensics, provenance and metadata signals",
	Long: `truthsig analyzes images and videos for signs of editing, then fuses the
visual verdict with content credential, metadata and AI disclosure signals
into a 0-100 trust score with a HIGH, MEDIUM or LOW label.

Configuration is read from the platform config directory (see --config) and
TRUTHSIG_* environment variables, including a .env file in the working
directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Config file, TOML/JSON/YAML (default: platform config dir)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json (overrides config)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(fuseCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
