package scheduler

import (
	"testing"

	"github.com/flowforge/autoflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobManager_SubmitStartsPending(t *testing.T) {
	jm := NewJobManager()
	job := jm.Submit(model.RecordingTranscript{}, 0, nil)
	assert.Equal(t, model.JobPending, job.Status)
	assert.NotEmpty(t, job.ID)
}

func TestJobManager_ValidTransitionSequence(t *testing.T) {
	jm := NewJobManager()
	job := jm.Submit(model.RecordingTranscript{}, 0, nil)

	require.True(t, jm.Transition(job.ID, model.JobRunning, ""))
	got, _ := jm.Get(job.ID)
	require.NotNil(t, got.StartedAt)
	assert.False(t, model.IsTerminal(got.Status))

	require.True(t, jm.Transition(job.ID, model.JobSuccess, ""))
	got, _ = jm.Get(job.ID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, model.IsTerminal(got.Status))
}

func TestJobManager_RejectsInvalidTransition(t *testing.T) {
	jm := NewJobManager()
	job := jm.Submit(model.RecordingTranscript{}, 0, nil)

	assert.False(t, jm.Transition(job.ID, model.JobSuccess, ""))
	got, _ := jm.Get(job.ID)
	assert.Equal(t, model.JobPending, got.Status)
}

func TestJobManager_RetryingCanReturnToRunningOrFail(t *testing.T) {
	jm := NewJobManager()
	job := jm.Submit(model.RecordingTranscript{}, 0, nil)
	require.True(t, jm.Transition(job.ID, model.JobRunning, ""))
	require.True(t, jm.Transition(job.ID, model.JobRetrying, ""))
	require.True(t, jm.Transition(job.ID, model.JobRunning, ""))
	require.True(t, jm.Transition(job.ID, model.JobFailed, "boom"))

	got, _ := jm.Get(job.ID)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestJobManager_AppendLogPreservesCallOrder(t *testing.T) {
	jm := NewJobManager()
	job := jm.Submit(model.RecordingTranscript{}, 0, nil)
	jm.AppendLog(job.ID, "first")
	jm.AppendLog(job.ID, "second")
	jm.AppendLog(job.ID, "third")

	got, _ := jm.Get(job.ID)
	require.Len(t, got.Logs, 3)
	assert.Equal(t, "first", got.Logs[0].Message)
	assert.Equal(t, "second", got.Logs[1].Message)
	assert.Equal(t, "third", got.Logs[2].Message)
}

func TestJobManager_ListByStatus(t *testing.T) {
	jm := NewJobManager()
	a := jm.Submit(model.RecordingTranscript{}, 0, nil)
	b := jm.Submit(model.RecordingTranscript{}, 0, nil)
	jm.Transition(a.ID, model.JobRunning, "")

	running := jm.ListByStatus(model.JobRunning)
	pending := jm.ListByStatus(model.JobPending)
	require.Len(t, running, 1)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, running[0].ID)
	assert.Equal(t, b.ID, pending[0].ID)
}
