// Package main implements the automation CLI entry point and command
// registration hub. Command implementations are split across cmd_*.go
// files, mirroring the teacher's cmd/nerd layout.
package main

import (
	"fmt"

	"github.com/flowforge/autoflow/internal/appconfig"
	"github.com/flowforge/autoflow/internal/executor"
	"github.com/flowforge/autoflow/internal/healer"
	"github.com/flowforge/autoflow/internal/knowledge"
	"github.com/flowforge/autoflow/internal/knowledge/storage/file"
	"github.com/flowforge/autoflow/internal/knowledge/storage/sql"
	"github.com/flowforge/autoflow/internal/performance"
	"github.com/flowforge/autoflow/internal/pipeline"
	"github.com/flowforge/autoflow/internal/retry"
	"github.com/flowforge/autoflow/internal/scheduler"
	"github.com/flowforge/autoflow/internal/siteconfig"
	"github.com/flowforge/autoflow/internal/taskexecutor"
)

// app bundles the long-lived collaborators one CLI invocation needs. It is
// built fresh per command since the process does not stay resident between
// invocations (the `schedule` command is the one exception that blocks
// until interrupted).
type app struct {
	cfg        *appconfig.Config
	pipeline   *pipeline.Pipeline
	kb         *knowledge.KnowledgeBase
	jobs       *scheduler.JobManager
	repo       *taskexecutor.MemRepository
	task       *taskexecutor.TaskExecutor
	sites      *siteconfig.Manager
}

func bootstrap(configPath string) (*app, error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	kb := knowledge.New()
	store, err := openKnowledgeStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("open knowledge storage: %w", err)
	}
	if store != nil {
		kb = kb.WithStorage(store)
		if err := kb.LoadFromStorage(); err != nil {
			return nil, fmt.Errorf("load knowledge: %w", err)
		}
	}

	sites, err := siteconfig.Load(cfg.SiteConfig)
	if err != nil {
		return nil, fmt.Errorf("load site config: %w", err)
	}

	exec := executor.New(healer.New(), retry.New(), performance.New())
	pl := pipeline.New(nil, nil, nil, exec, kb)

	repo := taskexecutor.NewMemRepository()
	te := taskexecutor.New(repo, sites, exec, taskexecutor.Config{
		HubPageURL: "",
	}).WithKnowledge(kb)

	return &app{
		cfg:      cfg,
		pipeline: pl,
		kb:       kb,
		jobs:     scheduler.NewJobManager(),
		repo:     repo,
		task:     te,
		sites:    sites,
	}, nil
}

func openKnowledgeStorage(cfg *appconfig.Config) (knowledge.Storage, error) {
	switch cfg.Knowledge.Storage {
	case "sql":
		return sql.Open(cfg.Database.URL)
	case "file", "":
		return file.New(cfg.Knowledge.FilePath), nil
	default:
		return nil, fmt.Errorf("unknown knowledge storage kind %q", cfg.Knowledge.Storage)
	}
}
