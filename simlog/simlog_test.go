package simlog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNew_TagsLinesWithSimTime(t *testing.T) {
	p := kernel.NewPlatform()
	_, err := p.NewHost("A", 1, 1<<30, 1e9)
	require.NoError(t, err)
	sim, err := kernel.NewSimulation(p)
	require.NoError(t, err)

	var buf bytes.Buffer
	base := zerolog.New(&buf)
	logger := New(base, sim)

	logger.Info().Msg("hello")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	require.Contains(t, parsed, "sim_time")
	require.Equal(t, float64(0), parsed["sim_time"])
}

func TestForActor_TagsActorAndHost(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	logger := ForActor(base, "a1", "A")
	logger.Info().Msg("hello")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	require.Equal(t, "a1", parsed["actor"])
	require.Equal(t, "A", parsed["host"])
}
