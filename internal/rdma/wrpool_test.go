package rdma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testRegion(t *testing.T, conn ConnID, size int) *LocalRegion {
	t.Helper()
	buf := make([]byte, size)
	mr, err := conn.RegisterMemory(buf, AccessLocalWrite)
	require.NoError(t, err)
	return &LocalRegion{Buf: buf, mr: mr}
}

func TestWRPoolChainsAndSignalsLast(t *testing.T) {
	conn := &mockConn{}
	local := testRegion(t, conn, 256)
	pool := NewWRPool(4)

	var posted []WorkRequest
	conn.On("PostSend", mock.Anything).Run(func(args mock.Arguments) {
		posted = args.Get(0).([]WorkRequest)
	}).Return(nil)

	segs := []Segment{
		{RemoteAddr: 0x1000, LocalOffset: 0, Length: 12},
		{RemoteAddr: 0x2000, LocalOffset: 12, Length: 8},
		{RemoteAddr: 0x3000, LocalOffset: 20, Length: 4},
	}
	require.NoError(t, pool.Post(conn, local, 77, segs))

	require.Len(t, posted, 3)
	for i, wr := range posted {
		assert.Equal(t, OpRDMARead, wr.Opcode)
		assert.Equal(t, segs[i].RemoteAddr, wr.RemoteAddr)
		assert.Equal(t, uint32(77), wr.RKey)
		assert.Equal(t, local.Addr()+segs[i].LocalOffset, wr.SGE.Addr)
		assert.Equal(t, segs[i].Length, wr.SGE.Length)
		assert.Equal(t, local.LKey(), wr.SGE.LKey)
		assert.Equal(t, i == 2, wr.Signaled, "slot %d", i)
	}
	conn.AssertNumberOfCalls(t, "PostSend", 1)
}

func TestWRPoolResetsSlotsBetweenPosts(t *testing.T) {
	conn := &mockConn{}
	local := testRegion(t, conn, 64)
	pool := NewWRPool(4)

	var posted []WorkRequest
	conn.On("PostSend", mock.Anything).Run(func(args mock.Arguments) {
		posted = args.Get(0).([]WorkRequest)
	}).Return(nil)

	require.NoError(t, pool.Post(conn, local, 1, []Segment{
		{Length: 4}, {LocalOffset: 4, Length: 4}, {LocalOffset: 8, Length: 4},
	}))
	firstIDs := []uint64{posted[0].ID, posted[1].ID, posted[2].ID}

	require.NoError(t, pool.PostWrite(conn, local, 1, []Segment{{LocalOffset: 16, Length: 8}}))
	require.Len(t, posted, 1)
	assert.Equal(t, OpRDMAWrite, posted[0].Opcode)
	assert.True(t, posted[0].Signaled)
	assert.Nil(t, pool.slots[0].Next, "single request chain must not link stale slots")
	assert.NotContains(t, firstIDs, posted[0].ID)
}

func TestWRPoolCapacity(t *testing.T) {
	conn := &mockConn{}
	local := testRegion(t, conn, 64)
	pool := NewWRPool(2)

	err := pool.Post(conn, local, 1, nil)
	assert.ErrorIs(t, err, ErrPoolCapacity)

	err = pool.Post(conn, local, 1, []Segment{{Length: 4}, {Length: 4}, {Length: 4}})
	assert.ErrorIs(t, err, ErrPoolCapacity)

	err = pool.Post(conn, local, 1, []Segment{{LocalOffset: 60, Length: 8}})
	assert.ErrorContains(t, err, "overruns local region")

	conn.AssertNotCalled(t, "PostSend", mock.Anything)
}
