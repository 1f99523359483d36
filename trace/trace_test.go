package trace

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/joeycumines/wrenchsim/action"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromCompoundJob_CompletedComputeAction(t *testing.T) {
	a := action.NewAction("t1:compute", action.Compute, 1, 1, 0, 0)
	a.State = action.Completed
	a.StartDate = 10
	a.EndDate = 20
	a.ExecutionHost = "A"

	entries := BuildFromCompoundJob("j1", map[action.ID]*action.Action{"t1:compute": a})
	require.Len(t, entries, 2)
	assert.Equal(t, TaskStart, entries[0].Kind)
	assert.Equal(t, int64(10), entries[0].Time)
	assert.Equal(t, TaskCompletion, entries[1].Kind)
	assert.Equal(t, int64(20), entries[1].Time)
	assert.Same(t, entries[1], entries[0].Counterpart)
	assert.Same(t, entries[0], entries[1].Counterpart)
}

func TestBuildFromCompoundJob_FailedFileReadAction(t *testing.T) {
	cause := &failurecause.FileNotFound{FileID: "missing"}
	a := action.NewAction("t1:read:0", action.FileRead, 1, 1, 0, 0)
	a.State = action.Failed
	a.StartDate = 5
	a.EndDate = 6
	a.FailureCause = cause

	entries := BuildFromCompoundJob("j1", map[action.ID]*action.Action{"t1:read:0": a})
	require.Len(t, entries, 2)
	assert.Equal(t, FileReadStart, entries[0].Kind)
	assert.Equal(t, FileReadFailure, entries[1].Kind)
	assert.Equal(t, cause, entries[1].Cause)
}

func TestBuildFromCompoundJob_KilledComputeActionEmitsTermination(t *testing.T) {
	a := action.NewAction("t1:compute", action.Compute, 1, 1, 0, 0)
	a.State = action.Killed
	a.StartDate = 1
	a.EndDate = 2
	a.FailureCause = &failurecause.JobKilled{JobID: "j1"}

	entries := BuildFromCompoundJob("j1", map[action.ID]*action.Action{"t1:compute": a})
	require.Len(t, entries, 2)
	assert.Equal(t, TaskTermination, entries[1].Kind)
}

func TestBuildFromCompoundJob_SkipsActionsThatNeverStarted(t *testing.T) {
	a := action.NewAction("t2:compute", action.Compute, 1, 1, 0, 0)
	a.State = action.NotReady

	entries := BuildFromCompoundJob("j1", map[action.ID]*action.Action{"t2:compute": a})
	assert.Empty(t, entries)
}

func TestBuildFromCompoundJob_IncludesRetriedAttempts(t *testing.T) {
	a := action.NewAction("t1:compute", action.Compute, 1, 1, 0, 0)
	a.ExecutionHistory = append(a.ExecutionHistory, action.Attempt{
		StartDate: 0, EndDate: 1, Outcome: action.Failed, FailureCause: &failurecause.HostError{Host: "A"},
	})
	a.State = action.Completed
	a.StartDate = 2
	a.EndDate = 5

	entries := BuildFromCompoundJob("j1", map[action.ID]*action.Action{"t1:compute": a})
	require.Len(t, entries, 4)
	assert.Equal(t, TaskFailure, entries[1].Kind)
	assert.Equal(t, TaskCompletion, entries[3].Kind)
}

func TestWriteJSON_EmitsOneValidJSONObjectPerLine(t *testing.T) {
	a := action.NewAction("t1:compute", action.Compute, 1, 1, 0, 0)
	a.State = action.Completed
	a.StartDate = 10
	a.EndDate = 20
	a.ExecutionHost = "A"

	entries := BuildFromCompoundJob("j1", map[action.ID]*action.Action{"t1:compute": a})

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, entries))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var parsed map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &parsed))
	}
	assert.Contains(t, lines[0], `"kind":"TaskStart"`)
	assert.Contains(t, lines[1], `"kind":"TaskCompletion"`)
	assert.Contains(t, lines[1], `"counterpart_kind":"TaskStart"`)
}

func TestTracer_EntriesOrderedByTime(t *testing.T) {
	tr := NewTracer()
	tr.record(&Entry{Kind: TaskStart, Time: 5})
	tr.record(&Entry{Kind: TaskStart, Time: 1})
	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Time)
	assert.Equal(t, int64(5), entries[1].Time)
}
