package commport

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSim(t *testing.T) (*kernel.Simulation, *kernel.Platform) {
	t.Helper()
	p := kernel.NewPlatform()
	_, err := p.NewHost("A", 1, 1<<30, 1e9)
	require.NoError(t, err)
	_, err = p.NewHost("B", 1, 1<<30, 1e9)
	require.NoError(t, err)
	link, err := p.NewLink("AB", 1e6, 0)
	require.NoError(t, err)
	require.NoError(t, p.AddRoute("A", "B", link))
	require.NoError(t, p.AddRoute("B", "A", link))
	sim, err := kernel.NewSimulation(p)
	require.NoError(t, err)
	return sim, p
}

func TestPutGet_DeliversFIFO(t *testing.T) {
	sim, _ := newTestSim(t)
	port := NewCommPort(sim, "b-port", "B", 0)

	var received []string
	_, err := sim.Spawn("B", func(a *kernel.Actor) {
		for i := 0; i < 2; i++ {
			msg, err := port.Get(a, 0)
			require.NoError(t, err)
			received = append(received, msg.Kind)
		}
	})
	require.NoError(t, err)

	_, err = sim.Spawn("A", func(a *kernel.Actor) {
		require.NoError(t, port.Put(a, Message{Kind: "first", PayloadSize: 100}))
		require.NoError(t, port.Put(a, Message{Kind: "second", PayloadSize: 100}))
	})
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background()))
	assert.Equal(t, []string{"first", "second"}, received)
}

func TestGet_TimeoutWithNothingPending(t *testing.T) {
	sim, _ := newTestSim(t)
	port := NewCommPort(sim, "b-port", "B", 0)

	var gotErr error
	_, err := sim.Spawn("B", func(a *kernel.Actor) {
		_, gotErr = port.Get(a, time.Second)
	})
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background()))
	require.Error(t, gotErr)
	var ne *failurecause.NetworkError
	require.ErrorAs(t, gotErr, &ne)
	assert.True(t, ne.Timeout)
}

func TestWaitForAny_RejectsEmpty(t *testing.T) {
	sim, _ := newTestSim(t)
	var callErr error
	_, err := sim.Spawn("A", func(a *kernel.Actor) {
		_, callErr = WaitForAny(a, nil, 0)
	})
	require.NoError(t, err)
	require.NoError(t, sim.Run(context.Background()))
	require.Error(t, callErr)
}

func TestWaitForAny_ResolvesFirstCompletedHandle(t *testing.T) {
	sim, _ := newTestSim(t)
	portA := NewCommPort(sim, "a-port", "A", 0)
	portB := NewCommPort(sim, "b-port", "B", 0)

	var idx int
	var waitErr error
	_, err := sim.Spawn("A", func(a *kernel.Actor) {
		hA := portA.IGet(a)
		hB := portB.IGet(a)
		idx, waitErr = WaitForAny(a, []*Handle{hA, hB}, 0)
	})
	require.NoError(t, err)

	_, err = sim.Spawn("B", func(a *kernel.Actor) {
		require.NoError(t, a.Sleep(2*time.Second))
		require.NoError(t, portB.Put(a, Message{Kind: "hi", PayloadSize: 10}))
	})
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background()))
	require.NoError(t, waitErr)
	assert.Equal(t, 1, idx)
}

func TestNullCommPort_PutNoopGetRejected(t *testing.T) {
	sim, _ := newTestSim(t)
	var putErr, getErr error
	_, err := sim.Spawn("A", func(a *kernel.Actor) {
		putErr = NullCommPort.Put(a, Message{Kind: "x"})
		_, getErr = NullCommPort.Get(a, 0)
	})
	require.NoError(t, err)
	require.NoError(t, sim.Run(context.Background()))
	assert.NoError(t, putErr)
	require.Error(t, getErr)
	var ia *failurecause.InvalidArgument
	assert.ErrorAs(t, getErr, &ia)
}
