// Package main implements the automation CLI entry point and command
// registration hub. Command implementations are split across cmd_*.go
// files, mirroring the teacher's cmd/nerd layout.
//
// # File Index
//
//   - main.go            - rootCmd, global flags, init()
//   - app.go             - bootstrap(), the app struct bundling collaborators
//   - driver.go          - openBrowser()
//   - cmd_submit.go       - submitCmd, one-shot transcript run
//   - cmd_job.go          - jobCmd, JobManager inspection
//   - cmd_schedule.go     - scheduleCmd, blocking cron scheduler
//   - cmd_knowledge.go    - knowledgeCmd, export/import
package main

import (
	"fmt"
	"os"

	"github.com/flowforge/autoflow/internal/obslog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "automation",
	Short: "Turn browser-recorder transcripts into a learning, executed automation",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return obslog.Configure(jsonLogs, verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		obslog.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the process configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON instead of console format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
