package service

import (
	"testing"

	"github.com/joeycumines/wrenchsim/commport"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBase() *Base {
	logger := zerolog.Nop()
	return NewBase("svc0", commport.NullCommPort, &logger, map[string]string{"k": "v"}, map[string]int64{"msg": 64})
}

func TestBase_StopIsIdempotent(t *testing.T) {
	b := newTestBase()
	require.NoError(t, b.Stop())
	assert.Equal(t, Down, b.State())
	require.NoError(t, b.Stop())
	assert.Equal(t, Down, b.State())
}

func TestBase_CheckUpReflectsState(t *testing.T) {
	b := newTestBase()
	require.NoError(t, b.CheckUp())

	require.NoError(t, b.Suspend())
	err := b.CheckUp()
	require.Error(t, err)
	var susp *failurecause.ServiceIsSuspended
	require.ErrorAs(t, err, &susp)

	require.NoError(t, b.Resume())
	require.NoError(t, b.CheckUp())

	require.NoError(t, b.Stop())
	err = b.CheckUp()
	var down *failurecause.ServiceIsDown
	require.ErrorAs(t, err, &down)
}

func TestBase_PropertyAndPayloadSize(t *testing.T) {
	b := newTestBase()
	v, ok := b.Property("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, int64(64), b.PayloadSize("msg"))
}

type fakeSub struct{ stopped bool }

func (f *fakeSub) Stop() error {
	f.stopped = true
	return nil
}

func TestBase_StopTearsDownSubServices(t *testing.T) {
	b := newTestBase()
	sub := &fakeSub{}
	b.RegisterSubService(sub)
	require.NoError(t, b.Stop())
	assert.True(t, sub.stopped)
}
