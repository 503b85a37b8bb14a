package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/flowforge/autoflow/internal/knowledge"
	"github.com/spf13/cobra"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Export or import the learned selector/skill/site/URL aggregates",
}

var knowledgeExportCmd = &cobra.Command{
	Use:   "export <out.json>",
	Short: "Write the current knowledge base to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(configPath)
		if err != nil {
			return err
		}
		snap := a.kb.Snapshot()
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(args[0], out, 0o644)
	},
}

var knowledgeImportCmd = &cobra.Command{
	Use:   "import <in.json>",
	Short: "Merge a previously exported knowledge base into the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(configPath)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		var snap knowledge.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}
		return a.kb.Import(snap)
	},
}

func init() {
	knowledgeCmd.AddCommand(knowledgeExportCmd, knowledgeImportCmd)
	rootCmd.AddCommand(knowledgeCmd)
}
