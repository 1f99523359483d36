package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompoundJob_ZeroParentActionsStartReadyAfterFinalize(t *testing.T) {
	job := NewCompoundJob("job1", 0)
	a := NewAction("a", Sleep, 1, 1, 0, 0)
	b := NewAction("b", Sleep, 1, 1, 0, 0)
	require.NoError(t, job.AddAction(a))
	require.NoError(t, job.AddAction(b))
	require.NoError(t, job.AddDependency("a", "b"))

	assert.Equal(t, NotReady, a.State)
	assert.Equal(t, NotReady, b.State)
	require.NoError(t, job.Finalize())
	assert.Equal(t, Ready, a.State)
	assert.Equal(t, NotReady, b.State, "b has a parent, stays NotReady until a completes")
}

func TestCompoundJob_AddDependencyRejectsCycle(t *testing.T) {
	job := NewCompoundJob("job1", 0)
	a := NewAction("a", Sleep, 1, 1, 0, 0)
	b := NewAction("b", Sleep, 1, 1, 0, 0)
	c := NewAction("c", Sleep, 1, 1, 0, 0)
	require.NoError(t, job.AddAction(a))
	require.NoError(t, job.AddAction(b))
	require.NoError(t, job.AddAction(c))
	require.NoError(t, job.AddDependency("a", "b"))
	require.NoError(t, job.AddDependency("b", "c"))

	err := job.AddDependency("c", "a")
	require.Error(t, err)
}

func TestCompoundJob_AddDependencyRejectsSelfAndDuplicate(t *testing.T) {
	job := NewCompoundJob("job1", 0)
	a := NewAction("a", Sleep, 1, 1, 0, 0)
	b := NewAction("b", Sleep, 1, 1, 0, 0)
	require.NoError(t, job.AddAction(a))
	require.NoError(t, job.AddAction(b))

	require.Error(t, job.AddDependency("a", "a"))
	require.NoError(t, job.AddDependency("a", "b"))
	require.Error(t, job.AddDependency("a", "b"))
}

func TestCompoundJob_PromoteReadyChildrenOnlyWhenAllParentsComplete(t *testing.T) {
	job := NewCompoundJob("job1", 0)
	a := NewAction("a", Sleep, 1, 1, 0, 0)
	b := NewAction("b", Sleep, 1, 1, 0, 0)
	c := NewAction("c", Sleep, 1, 1, 0, 0)
	require.NoError(t, job.AddAction(a))
	require.NoError(t, job.AddAction(b))
	require.NoError(t, job.AddAction(c))
	require.NoError(t, job.AddDependency("a", "c"))
	require.NoError(t, job.AddDependency("b", "c"))
	require.NoError(t, job.Finalize())

	a.State = Completed
	promoted := job.PromoteReadyChildren("a")
	assert.Empty(t, promoted, "c still waits on b")
	assert.Equal(t, NotReady, c.State)

	b.State = Completed
	promoted = job.PromoteReadyChildren("b")
	assert.Equal(t, []ID{"c"}, promoted)
	assert.Equal(t, Ready, c.State)
}

func TestCompoundJob_IsTerminal_BlockedDescendantNeverReady(t *testing.T) {
	job := NewCompoundJob("job1", 0)
	a := NewAction("a", Sleep, 1, 1, 0, 0)
	b := NewAction("b", Sleep, 1, 1, 0, 0)
	require.NoError(t, job.AddAction(a))
	require.NoError(t, job.AddAction(b))
	require.NoError(t, job.AddDependency("a", "b"))
	require.NoError(t, job.Finalize())

	assert.False(t, job.IsTerminal())
	a.State = Failed
	assert.True(t, job.IsTerminal(), "b can never run now that a failed")
	assert.False(t, job.Succeeded())
}

func TestCompoundJob_FinalizeRejectsEmptyJob(t *testing.T) {
	job := NewCompoundJob("job1", 0)
	require.Error(t, job.Finalize())
}

func TestCompoundJob_AddActionRejectsDuplicateID(t *testing.T) {
	job := NewCompoundJob("job1", 0)
	require.NoError(t, job.AddAction(NewAction("a", Sleep, 1, 1, 0, 0)))
	require.Error(t, job.AddAction(NewAction("a", Sleep, 1, 1, 0, 0)))
}

func TestCompoundJob_ReadyActions(t *testing.T) {
	job := NewCompoundJob("job1", 0)
	a := NewAction("a", Sleep, 1, 1, 0, 0)
	b := NewAction("b", Sleep, 1, 1, 0, 0)
	require.NoError(t, job.AddAction(a))
	require.NoError(t, job.AddAction(b))
	require.NoError(t, job.Finalize())
	assert.ElementsMatch(t, []ID{"a", "b"}, job.ReadyActions())
}
