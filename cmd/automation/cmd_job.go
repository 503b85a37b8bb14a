package main

import (
	"encoding/json"
	"fmt"

	"github.com/flowforge/autoflow/internal/api"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect job state tracked by this process",
}

var jobListCmd = &cobra.Command{
	Use:   "list <status>",
	Short: "List jobs in a given status (pending, running, success, failed, retrying, blocked, captcha)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(configPath)
		if err != nil {
			return err
		}
		jobs := a.jobs.ListByStatus(model.JobStatus(args[0]))
		statuses := make([]api.JobStatus, 0, len(jobs))
		for _, j := range jobs {
			statuses = append(statuses, api.FromJob(j))
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	},
}

var jobGetCmd = &cobra.Command{
	Use:   "get <jobID>",
	Short: "Print a single job's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(configPath)
		if err != nil {
			return err
		}
		job, ok := a.jobs.Get(args[0])
		if !ok {
			return fmt.Errorf("no such job %q", args[0])
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(api.FromJob(job))
	},
}

func init() {
	jobCmd.AddCommand(jobListCmd, jobGetCmd)
	rootCmd.AddCommand(jobCmd)
}
