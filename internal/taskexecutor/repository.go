// Package taskexecutor drives a full Task against a live page: hub-page
// navigation, per-site strategy, login handling, arrival verification,
// best-recording execution with cross-task selector adoption, and scrape
// extraction (spec §4.10).
package taskexecutor

import "github.com/flowforge/autoflow/internal/model"

// Repository resolves the Website/Task/TaskRecording arena described in
// model.Website's design note: only child IDs are stored, and lookups
// cross the arena boundary explicitly rather than through back-pointers.
type Repository interface {
	GetWebsite(id string) (model.Website, bool)
	GetTask(id string) (model.Task, bool)
	TasksByWebsite(websiteID string) []model.Task
	RecordingsByTask(taskID string) []model.TaskRecording
}

// MemRepository is an in-memory Repository, suitable for embedding behind
// a future persistence layer or for tests.
type MemRepository struct {
	Websites   map[string]model.Website
	Tasks      map[string]model.Task
	Recordings map[string][]model.TaskRecording // keyed by taskID
}

// NewMemRepository creates an empty MemRepository.
func NewMemRepository() *MemRepository {
	return &MemRepository{
		Websites:   map[string]model.Website{},
		Tasks:      map[string]model.Task{},
		Recordings: map[string][]model.TaskRecording{},
	}
}

func (r *MemRepository) GetWebsite(id string) (model.Website, bool) {
	w, ok := r.Websites[id]
	return w, ok
}

func (r *MemRepository) GetTask(id string) (model.Task, bool) {
	t, ok := r.Tasks[id]
	return t, ok
}

func (r *MemRepository) TasksByWebsite(websiteID string) []model.Task {
	w, ok := r.Websites[websiteID]
	if !ok {
		return nil
	}
	out := make([]model.Task, 0, len(w.TaskIDs))
	for _, tid := range w.TaskIDs {
		if t, ok := r.Tasks[tid]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *MemRepository) RecordingsByTask(taskID string) []model.TaskRecording {
	return r.Recordings[taskID]
}

// AddTask registers a task under a website, creating the website if absent.
func (r *MemRepository) AddTask(websiteID string, t model.Task) {
	t.WebsiteID = websiteID
	r.Tasks[t.ID] = t
	w := r.Websites[websiteID]
	w.ID = websiteID
	w.TaskIDs = append(w.TaskIDs, t.ID)
	r.Websites[websiteID] = w
}

// AddRecording attaches a recording to a task.
func (r *MemRepository) AddRecording(rec model.TaskRecording) {
	r.Recordings[rec.TaskID] = append(r.Recordings[rec.TaskID], rec)
	t := r.Tasks[rec.TaskID]
	t.RecordingIDs = append(t.RecordingIDs, rec.ID)
	r.Tasks[rec.TaskID] = t
}

// bestRecording picks the latest successful recording, falling back to the
// latest overall when none succeeded (spec.md §4.10 step 5).
func bestRecording(recs []model.TaskRecording) (model.TaskRecording, bool) {
	if len(recs) == 0 {
		return model.TaskRecording{}, false
	}
	var bestSuccess, bestAny model.TaskRecording
	haveSuccess, haveAny := false, false
	for _, r := range recs {
		if !haveAny || r.CreatedAt.After(bestAny.CreatedAt) {
			bestAny = r
			haveAny = true
		}
		if r.Success && (!haveSuccess || r.CreatedAt.After(bestSuccess.CreatedAt)) {
			bestSuccess = r
			haveSuccess = true
		}
	}
	if haveSuccess {
		return bestSuccess, true
	}
	return bestAny, haveAny
}
