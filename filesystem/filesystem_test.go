package filesystem

import (
	"testing"

	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDisk(capacity int64) *kernel.Disk {
	p := kernel.NewPlatform()
	_, _ = p.NewHost("A", 1, 1024, 1.0)
	d, _ := p.NewDisk("A", "disk0", 1e6, capacity)
	return d
}

func TestRegistry_DuplicateKeyRejected(t *testing.T) {
	r := NewRegistry()
	key := Key{Host: "A", Service: "ss0", Mount: "/mnt"}
	disk := newTestDisk(1 << 20)
	_, err := r.New(key, disk)
	require.NoError(t, err)
	_, err = r.New(key, disk)
	require.Error(t, err)
}

func TestLogicalFileSystem_ReserveAndRelease_RoundTrip(t *testing.T) {
	r := NewRegistry()
	disk := newTestDisk(1000)
	fs, err := r.New(Key{Host: "A", Service: "ss0", Mount: "/mnt"}, disk)
	require.NoError(t, err)

	free0 := fs.FreeSpace()
	require.NoError(t, fs.Reserve("/", "f1", 400))
	assert.Equal(t, free0-400, fs.FreeSpace())

	ok, err := fs.Release("/", "f1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, free0, fs.FreeSpace())
}

func TestLogicalFileSystem_ReleaseAbsentIsNoopNotError(t *testing.T) {
	r := NewRegistry()
	fs, err := r.New(Key{Host: "A", Service: "ss0", Mount: "/mnt"}, newTestDisk(1000))
	require.NoError(t, err)
	ok, err := fs.Release("/", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogicalFileSystem_ReserveExceedingCapacityFails(t *testing.T) {
	r := NewRegistry()
	fs, err := r.New(Key{Host: "A", Service: "ss0", Mount: "/mnt"}, newTestDisk(100))
	require.NoError(t, err)
	err = fs.Reserve("/", "big", 200)
	require.Error(t, err)
	var nes *failurecause.NotEnoughSpace
	require.ErrorAs(t, err, &nes)
	assert.Equal(t, int64(100), fs.FreeSpace())
}

func TestLogicalFileSystem_FileInOneDirectoryOnly(t *testing.T) {
	r := NewRegistry()
	fs, err := r.New(Key{Host: "A", Service: "ss0", Mount: "/mnt"}, newTestDisk(1000))
	require.NoError(t, err)
	require.NoError(t, fs.Reserve("/a", "f1", 10))
	err = fs.Reserve("/b", "f1", 10)
	require.Error(t, err)
}
