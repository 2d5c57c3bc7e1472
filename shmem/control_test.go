package shmem

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func useTempShmDir(t *testing.T) {
	t.Helper()
	old := shmDir
	shmDir = t.TempDir()
	t.Cleanup(func() { shmDir = old })
}

func TestCreateOpenRoundTrip(t *testing.T) {
	useTempShmDir(t)

	parent, err := Create("block", "mutex", 1024)
	require.NoError(t, err)
	defer parent.Close()

	child, err := Open("block", "mutex")
	require.NoError(t, err)
	defer child.Close()

	parent.SetProgressStarted()
	require.True(t, child.ProgressStarted())
	require.False(t, child.ProgressComplete())

	child.AddBannedModule()
	child.AddBannedModule()
	require.Equal(t, uint32(2), parent.BannedModules())

	parent.AddCleanDeath()
	child.AddDirtyDeath()
	require.Equal(t, uint32(1), child.CleanDeaths())
	require.Equal(t, uint32(1), parent.DirtyDeaths())
}

func TestCreateRejectsNonPowerOfTwoRing(t *testing.T) {
	useTempShmDir(t)

	_, err := Create("block", "mutex", 1000)
	require.Error(t, err)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	useTempShmDir(t)

	parent, err := Create("block", "mutex", 256)
	require.NoError(t, err)
	parent.storeU32(offMagic, 0x12345678)
	require.NoError(t, parent.Close())

	_, err = Open("block", "mutex")
	require.ErrorIs(t, err, ErrCorruptControlBlock)
}

func TestOpenRejectsBadRingSize(t *testing.T) {
	useTempShmDir(t)

	parent, err := Create("block", "mutex", 256)
	require.NoError(t, err)
	parent.storeU32(offRingBufferSize, 257)
	require.NoError(t, parent.Close())

	_, err = Open("block", "mutex")
	require.ErrorIs(t, err, ErrCorruptControlBlock)
}

func TestOpenMissingBlock(t *testing.T) {
	useTempShmDir(t)

	_, err := Open("nope", "mutex")
	require.Error(t, err)
}

func TestRingRecords(t *testing.T) {
	useTempShmDir(t)

	parent, err := Create("block", "mutex", 256)
	require.NoError(t, err)
	defer parent.Close()

	require.NoError(t, parent.WriteRecord("MODULE deadbeefcafe"))
	require.NoError(t, parent.WriteRecord("MODULE 0123456789ab"))

	child, err := Open("block", "mutex")
	require.NoError(t, err)
	defer child.Close()

	require.Equal(t, []string{"MODULE deadbeefcafe", "MODULE 0123456789ab"}, child.Records())
}

func TestRingWrapsAround(t *testing.T) {
	useTempShmDir(t)

	// 256-byte ring holds 4 records.
	parent, err := Create("block", "mutex", 256)
	require.NoError(t, err)
	defer parent.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, parent.WriteRecord(fmt.Sprintf("line %d", i)))
	}

	require.Equal(t, []string{"line 2", "line 3", "line 4", "line 5"}, parent.Records())
}

func TestRecordTruncation(t *testing.T) {
	useTempShmDir(t)

	parent, err := Create("block", "mutex", 256)
	require.NoError(t, err)
	defer parent.Close()

	long := make([]byte, 2*RecordSize)
	for i := range long {
		long[i] = 'a'
	}
	require.NoError(t, parent.WriteRecord(string(long)))

	records := parent.Records()
	require.Len(t, records, 1)
	require.Len(t, records[0], RecordSize-1)
}
