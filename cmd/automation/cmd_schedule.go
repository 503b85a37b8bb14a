package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowforge/autoflow/internal/executor"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"github.com/flowforge/autoflow/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <bindings.json>",
	Short: "Run the cron scheduler against a bindings file until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

// fileBindingSource re-reads the bindings file on every reload tick, so
// edits to it take effect without restarting the process.
type fileBindingSource struct {
	path string
}

func (s fileBindingSource) ListBindings() ([]scheduler.Binding, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read bindings: %w", err)
	}
	var bindings []scheduler.Binding
	if err := json.Unmarshal(raw, &bindings); err != nil {
		return nil, fmt.Errorf("parse bindings: %w", err)
	}
	return bindings, nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(configPath)
	if err != nil {
		return err
	}

	source := fileBindingSource{path: args[0]}
	log := obslog.Get(obslog.CategoryScheduler)

	sched := scheduler.New(source, func(ctx context.Context, b scheduler.Binding) {
		targetURL := b.TargetURL
		transcript := model.RecordingTranscript{URL: targetURL}
		job := a.jobs.Submit(transcript, 0, []string{b.ID})
		a.jobs.Transition(job.ID, model.JobRunning, "")

		d, page, err := openBrowser(ctx, a.cfg, targetURL)
		if err != nil {
			a.jobs.Transition(job.ID, model.JobFailed, err.Error())
			log.Error("scheduled trigger failed to open browser", zap.String("bindingId", b.ID), zap.Error(err))
			return
		}
		defer d.Close(ctx)

		outcome := a.pipeline.Run(ctx, page, *job, transcript, executor.Options{
			Site:        model.Host(targetURL),
			ExpectedURL: targetURL,
		})
		a.jobs.Transition(job.ID, outcome.Result.Status, "")
		a.jobs.SetResult(job.ID, outcome.Result)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	log.Info("scheduler started", zap.String("bindingsFile", args[0]))

	<-ctx.Done()
	log.Info("scheduler shutting down")
	sched.Stop()
	return nil
}
