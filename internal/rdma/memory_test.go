package rdma

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeRegionUnmapsSubPageRegions(t *testing.T) {
	for _, size := range []uint64{WordSize, 100, PageSize, PageSize + WordSize} {
		buf, err := AllocateRegion(size, false)
		require.NoError(t, err)
		assert.Len(t, buf, int(size))
		assert.Zero(t, cap(buf)%PageSize, "capacity covers the mapping")

		copy(buf, []byte{1, 2, 3, 4})
		require.NoError(t, FreeRegion(buf), "size %d", size)
	}

	assert.ErrorIs(t, FreeRegion(nil), ErrEmptyRegion)
}

func TestManagerCloseReleasesWordRegions(t *testing.T) {
	ch := &scriptedChannel{script: establishedScript(1)}
	m, err := NewManager(&scriptedProvider{ch: ch}, Options{Channels: 1})
	require.NoError(t, err)
	require.NoError(t, m.Connect(context.Background(), "10.0.0.1", DefaultPort))

	window, err := m.RegisterRegion(0, 16*WordSize, false, true)
	require.NoError(t, err)
	slot, err := m.RegisterRegion(0, WordSize, false, true)
	require.NoError(t, err)
	assert.Len(t, slot.Words(), 1)

	require.NoError(t, m.Close())
	assert.Nil(t, window.Buf)
	assert.Nil(t, slot.Buf)
}
