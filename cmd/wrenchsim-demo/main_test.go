package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_CompletesSingleSleepActionScenario(t *testing.T) {
	stdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	err = run()
	require.NoError(t, w.Close())
	os.Stdout = stdout

	var buf bytes.Buffer
	_, copyErr := buf.ReadFrom(r)
	require.NoError(t, copyErr)

	require.NoError(t, err)
	require.Contains(t, buf.String(), "TaskCompletion")
}
