// Command devenv captures and restores a developer's local environment
// — jj repositories, loose config files, and AI-agent session
// directories — to and from an S3-compatible object store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sjawhar/devenv/internal/applog"
)

var (
	flagConfigFile string
	flagTimeout    int
	flagLogFile    string

	logSink *applog.Sink
)

var rootCmd = &cobra.Command{
	Use:   "devenv",
	Short: "Capture and restore a developer environment across machines",
	Long: `devenv captures the jj repositories, loose configuration files, and
AI-agent session directories under a root directory into a manifest and
an object-store backup, and restores them on another machine.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logSink = applog.NewSink(applog.Options{LogFile: flagLogFile})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default ~/.config/devenv/config.toml)")
	rootCmd.PersistentFlags().IntVar(&flagTimeout, "timeout", 120, "overall deadline for the invocation, in seconds")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "rotate logs through this file in addition to stderr")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(listBackupsCmd)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
