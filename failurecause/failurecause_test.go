package failurecause

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionError_Unwrap(t *testing.T) {
	cause := &FileNotFound{FileID: "f1", Location: "ss1:/mnt"}
	err := Wrap(cause)
	require.Error(t, err)

	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Same(t, cause, ee.Cause)

	var fnf *FileNotFound
	require.True(t, errors.As(err, &fnf))
	assert.Equal(t, "f1", fnf.File())
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(nil))
}

func TestInvalidArgument_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &InvalidArgument{Message: "bad hint", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "bad hint")
}

func TestNetworkError_Timeout(t *testing.T) {
	err := &NetworkError{Message: "get deadline", Timeout: true}
	assert.Contains(t, err.Error(), "timeout")
}

func TestServiceIsDown_Accessor(t *testing.T) {
	err := &ServiceIsDown{ServiceName: "storage0"}
	assert.Equal(t, "storage0", err.Service())
}
