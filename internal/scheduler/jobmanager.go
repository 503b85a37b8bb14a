// Package scheduler implements JobManager (UUID job lifecycle tracking) and
// Scheduler (cron-triggered task bindings) per spec §4.12.
package scheduler

import (
	"sync"
	"time"

	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// validTransitions is the closed set of JobStatus transitions JobManager
// will accept, per spec §4.12's pending -> running -> terminal/requeue
// lifecycle.
var validTransitions = map[model.JobStatus]map[model.JobStatus]bool{
	model.JobPending: {model.JobRunning: true},
	model.JobRunning: {
		model.JobSuccess:  true,
		model.JobFailed:   true,
		model.JobRetrying: true,
		model.JobBlocked:  true,
		model.JobCaptcha:  true,
	},
	model.JobRetrying: {model.JobRunning: true, model.JobFailed: true},
	model.JobBlocked:  {model.JobRunning: true, model.JobFailed: true},
	model.JobCaptcha:  {model.JobRunning: true, model.JobFailed: true},
}

// JobManager mints job ids, tracks lifecycle transitions, and accumulates
// a per-job append-only log.
type JobManager struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	now  func() time.Time
}

// NewJobManager creates an empty JobManager.
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*model.Job), now: time.Now}
}

// Submit creates a new pending job from a recording transcript.
func (jm *JobManager) Submit(recording model.RecordingTranscript, priority int, tags []string) *model.Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &model.Job{
		ID:        uuid.NewString(),
		Status:    model.JobPending,
		Recording: recording,
		CreatedAt: jm.now(),
		Priority:  priority,
		Tags:      tags,
	}
	jm.jobs[job.ID] = job
	obslog.Get(obslog.CategoryScheduler).Sugar().Infow("job submitted", "jobId", job.ID)
	return job
}

// Get returns a copy of the job's current state.
func (jm *JobManager) Get(id string) (model.Job, bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	j, ok := jm.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *j, true
}

// Transition moves a job to a new status, validating against the lifecycle
// table and setting StartedAt/CompletedAt as appropriate. Invalid
// transitions are rejected and logged, not silently applied.
func (jm *JobManager) Transition(id string, status model.JobStatus, errMsg string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, ok := jm.jobs[id]
	if !ok {
		return false
	}
	if !validTransitions[job.Status][status] {
		obslog.Get(obslog.CategoryScheduler).Warn("rejected invalid job transition",
			zap.String("jobId", id), zap.String("from", string(job.Status)), zap.String("to", string(status)))
		return false
	}

	job.Status = status
	if status == model.JobRunning && job.StartedAt == nil {
		now := jm.now()
		job.StartedAt = &now
	}
	if model.IsTerminal(status) {
		now := jm.now()
		job.CompletedAt = &now
	}
	if errMsg != "" {
		job.Error = errMsg
	}
	job.Logs = append(job.Logs, model.LogLine{Timestamp: jm.now(), Message: "status -> " + string(status)})
	return true
}

// SetResult attaches an ExecutionResult to a job.
func (jm *JobManager) SetResult(id string, result model.ExecutionResult) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if job, ok := jm.jobs[id]; ok {
		job.Result = &result
	}
}

// AppendLog appends one log line in call order (spec §5: "JobManager log
// append order matches call order").
func (jm *JobManager) AppendLog(id, message string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if job, ok := jm.jobs[id]; ok {
		job.AppendLog(message)
	}
}

// ListByStatus returns all jobs currently in the given status.
func (jm *JobManager) ListByStatus(status model.JobStatus) []model.Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	var out []model.Job
	for _, j := range jm.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	return out
}
