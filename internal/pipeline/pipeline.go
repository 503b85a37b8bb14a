// Package pipeline wires Preprocessor -> IntentExtractor -> SkillGenerator
// -> planner -> Executor -> KnowledgeBase.LearnFromJob into the single
// entry point that turns a raw recorder transcript into a learning,
// executed job (spec §2, §4).
package pipeline

import (
	"context"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/executor"
	"github.com/flowforge/autoflow/internal/intent"
	"github.com/flowforge/autoflow/internal/knowledge"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"github.com/flowforge/autoflow/internal/pageanalyzer"
	"github.com/flowforge/autoflow/internal/planner"
	"github.com/flowforge/autoflow/internal/preprocessor"
	"github.com/flowforge/autoflow/internal/skillgen"
	"go.uber.org/zap"
)

// urlKnowledgeAdapter bridges KnowledgeBase.GetKnownURL's (pattern, ok)
// return onto the pageanalyzer.URLKnowledge shape the Engine consumes.
type urlKnowledgeAdapter struct {
	kb *knowledge.KnowledgeBase
}

func (a urlKnowledgeAdapter) GetKnownURL(url string) pageanalyzer.KnownURL {
	pattern, ok := a.kb.GetKnownURL(url)
	if !ok {
		return pageanalyzer.KnownURL{}
	}
	return pageanalyzer.KnownURL{
		Found:          true,
		SuccessRate:    pattern.SuccessRate,
		LearnedIntents: pattern.Intents,
	}
}

// Pipeline owns the stage collaborators and the shared KnowledgeBase.
type Pipeline struct {
	pre       *preprocessor.Preprocessor
	extractor *intent.Extractor
	skills    *skillgen.Generator
	exec      *executor.Executor
	kb        *knowledge.KnowledgeBase
}

// New wires a Pipeline from its stage collaborators. Any may be nil; sane
// defaults are constructed.
func New(pre *preprocessor.Preprocessor, extractor *intent.Extractor, skills *skillgen.Generator, exec *executor.Executor, kb *knowledge.KnowledgeBase) *Pipeline {
	if pre == nil {
		pre = preprocessor.New()
	}
	if extractor == nil {
		extractor = intent.New()
	}
	if skills == nil {
		skills = skillgen.New()
	}
	if kb == nil {
		kb = knowledge.New()
	}
	if exec == nil {
		exec = executor.New(nil, nil, nil)
	}
	exec = exec.WithKnowledge(kb, urlKnowledgeAdapter{kb: kb})
	skills = skills.WithTemplates(kb)

	return &Pipeline{pre: pre, extractor: extractor, skills: skills, exec: exec, kb: kb}
}

// KnowledgeBase exposes the shared aggregate store for callers that need
// it directly (TaskExecutor's cross-task adoption, storage wiring).
func (p *Pipeline) KnowledgeBase() *knowledge.KnowledgeBase { return p.kb }

// Outcome is everything the pipeline produced for one job.
type Outcome struct {
	Metadata model.RecordingMetadata
	Actions  []model.CanonicalAction
	Skills   []model.SkillSpec
	Result   model.ExecutionResult
}

// Run normalises a raw transcript, extracts canonical actions, generates a
// skill per action, plans and executes commands against page, then feeds
// the outcome back into the KnowledgeBase.
func (p *Pipeline) Run(ctx context.Context, page driver.Page, job model.Job, raw model.RecordingTranscript, opts executor.Options) Outcome {
	log := obslog.Get(obslog.CategoryPipeline)

	transcript, err := p.pre.Normalize(raw)
	if err != nil {
		log.Warn("preprocessing failed", zap.Error(err))
		return Outcome{Result: model.ExecutionResult{JobID: job.ID, Status: model.JobFailed, StartTime: time.Now(), EndTime: time.Now()}}
	}

	metadata := preprocessor.ExtractMetadata(transcript)
	log.Debug("extracted transcript metadata",
		zap.String("site", metadata.Site),
		zap.Int("stepCount", metadata.StepCount),
		zap.Bool("hasNavigation", metadata.HasNavigation))

	actions := p.extractor.Extract(transcript)

	skills := make([]model.SkillSpec, 0, len(actions))
	var commands []planner.Command
	for _, action := range actions {
		skills = append(skills, p.skills.Generate(action))
		commands = append(commands, planner.Generate(action.Steps)...)
	}

	result := p.exec.Run(ctx, page, job, commands, opts)

	p.kb.LearnFromJob(knowledge.JobLearningInput{
		Site:      opts.Site,
		Actions:   actions,
		Result:    result,
		Recording: transcript,
	})

	log.Info("pipeline run complete",
		zap.String("jobId", job.ID),
		zap.String("status", string(result.Status)),
		zap.Int("actions", len(actions)))

	return Outcome{Metadata: metadata, Actions: actions, Skills: skills, Result: result}
}
