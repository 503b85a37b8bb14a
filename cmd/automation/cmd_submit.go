package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/flowforge/autoflow/internal/executor"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/spf13/cobra"
)

var submitHeadlessOverride bool

var submitCmd = &cobra.Command{
	Use:   "submit <recorder.json>",
	Short: "Run a browser-recorder transcript through the pipeline once",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().BoolVar(&submitHeadlessOverride, "headless", true, "run the browser headless")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	var transcript model.RecordingTranscript
	if err := json.Unmarshal(raw, &transcript); err != nil {
		return fmt.Errorf("parse transcript: %w", err)
	}

	a, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	a.cfg.Playwright.Headless = submitHeadlessOverride

	job := a.jobs.Submit(transcript, 0, nil)
	a.jobs.Transition(job.ID, model.JobRunning, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	d, page, err := openBrowser(ctx, a.cfg, transcript.URL)
	if err != nil {
		a.jobs.Transition(job.ID, model.JobFailed, err.Error())
		return fmt.Errorf("open browser: %w", err)
	}
	defer d.Close(ctx)

	outcome := a.pipeline.Run(ctx, page, *job, transcript, executor.Options{
		Site:        model.Host(transcript.URL),
		ExpectedURL: transcript.URL,
	})

	if outcome.Result.Status == model.JobSuccess {
		a.jobs.Transition(job.ID, model.JobSuccess, "")
	} else {
		msg := "execution did not reach success"
		if len(outcome.Result.KnowledgeGaps) > 0 {
			msg = outcome.Result.KnowledgeGaps[0]
		}
		a.jobs.Transition(job.ID, outcome.Result.Status, msg)
	}
	a.jobs.SetResult(job.ID, outcome.Result)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(outcome.Result)
}
