package model

import (
	"regexp"
	"strings"
	"time"
)

// TaskRecording embeds a transcript plus its extracted canonical actions and
// whether it was recorded as a success.
type TaskRecording struct {
	ID        string              `json:"id"`
	TaskID    string              `json:"taskId"`
	Recording RecordingTranscript `json:"recording"`
	Actions   []CanonicalAction   `json:"actions"`
	Success   bool                `json:"success"`
	CreatedAt time.Time           `json:"createdAt"`
}

// Task owns zero or more TaskRecordings. SuccessRate is maintained only by
// explicit execution events (invariant: not by recording count).
type Task struct {
	ID          string   `json:"id"`
	WebsiteID   string   `json:"websiteId"`
	Name        string   `json:"name"`
	RecordingIDs []string `json:"recordingIds"`

	successfulExecutions int
	totalExecutions      int
}

// loginTaskPattern matches task names that identify a dedicated login task,
// per invariant (iii): {login, sign in, signin, authenticate, auth}.
var loginTaskPattern = regexp.MustCompile(`(?i)^(login|sign\s*in|signin|authenticate|auth)$`)

// IsDedicatedLogin reports whether a Task's (trimmed, case-insensitive) name
// matches the dedicated-login regex family.
func (t Task) IsDedicatedLogin() bool {
	return loginTaskPattern.MatchString(strings.TrimSpace(t.Name))
}

// RecordExecution updates the running success-rate counters for this task.
func (t *Task) RecordExecution(success bool) {
	t.totalExecutions++
	if success {
		t.successfulExecutions++
	}
}

// SuccessRate is successfulExecutions/totalExecutions, or 0 before the first
// recorded execution.
func (t Task) SuccessRate() float64 {
	if t.totalExecutions == 0 {
		return 0
	}
	return float64(t.successfulExecutions) / float64(t.totalExecutions)
}

// TotalExecutions exposes the execution counter for persistence round-trips.
func (t Task) TotalExecutions() int { return t.totalExecutions }

// SuccessfulExecutions exposes the success counter for persistence round-trips.
func (t Task) SuccessfulExecutions() int { return t.successfulExecutions }

// SetExecutionCounters restores counters loaded from storage.
func (t *Task) SetExecutionCounters(successful, total int) {
	t.successfulExecutions = successful
	t.totalExecutions = total
}

// Website owns zero or more Tasks. Represented arena-style: a Website holds
// only child IDs, and an index (TaskIndex) resolves taskID -> (websiteID,
// position) without back-pointers, per the cyclic-structure design note.
type Website struct {
	ID      string   `json:"id"`
	Domain  string   `json:"domain"`
	TaskIDs []string `json:"taskIds"`
}

// TaskLocation is the result of a TaskIndex lookup.
type TaskLocation struct {
	WebsiteID string
	Position  int
}

// TaskIndex resolves taskID -> (websiteID, position) and is rebuilt whenever
// the owning arena is loaded, per the design note on cyclic structures.
type TaskIndex struct {
	byTaskID map[string]TaskLocation
}

// NewTaskIndex builds an index from a set of websites.
func NewTaskIndex(websites []Website) *TaskIndex {
	idx := &TaskIndex{byTaskID: make(map[string]TaskLocation)}
	idx.Rebuild(websites)
	return idx
}

// Rebuild discards and recomputes the index from the given websites.
func (idx *TaskIndex) Rebuild(websites []Website) {
	idx.byTaskID = make(map[string]TaskLocation, len(websites))
	for _, w := range websites {
		for pos, tid := range w.TaskIDs {
			idx.byTaskID[tid] = TaskLocation{WebsiteID: w.ID, Position: pos}
		}
	}
}

// Lookup resolves a taskID to its owning website and position.
func (idx *TaskIndex) Lookup(taskID string) (TaskLocation, bool) {
	loc, ok := idx.byTaskID[taskID]
	return loc, ok
}

// WebsiteSuccessRate computes a weighted mean of per-task execution success
// rates, weighted by each task's total execution count.
func WebsiteSuccessRate(tasks []Task) float64 {
	var weightedSum float64
	var totalWeight int
	for _, t := range tasks {
		w := t.TotalExecutions()
		weightedSum += t.SuccessRate() * float64(w)
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / float64(totalWeight)
}
