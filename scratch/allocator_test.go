package scratch

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestAllocateRawAlignment(t *testing.T) {
	var a Allocator

	for _, align := range []int{1, 2, 4, 8, 16, 64, 256} {
		slot := a.AllocateRaw(3, align)
		require.Len(t, slot, 3)
		addr := uintptr(unsafe.Pointer(&slot[0]))
		require.Zero(t, addr&uintptr(align-1), "allocation for align %d is misaligned", align)
	}
}

func TestAllocateRawRejectsBadArgs(t *testing.T) {
	var a Allocator

	require.Nil(t, a.AllocateRaw(-1, 4))
	require.Nil(t, a.AllocateRaw(16, 0))
	require.Nil(t, a.AllocateRaw(16, 3))
}

func TestAllocateRawGrowsBlocks(t *testing.T) {
	var a Allocator

	a.AllocateRaw(16, 4)
	require.Equal(t, 1, a.BlockCount())

	// A request larger than the remaining space in the first block must
	// land in a fresh block large enough for it.
	big := a.AllocateRaw(128*1024, 8)
	require.Len(t, big, 128*1024)
	require.Equal(t, 2, a.BlockCount())
}

func TestAllocateRawDoesNotRelocate(t *testing.T) {
	var a Allocator

	first := a.AllocateRaw(64, 8)
	first[0] = 0xAB
	for i := 0; i < 4096; i++ {
		a.AllocateRaw(64, 8)
	}
	require.Equal(t, byte(0xAB), first[0])
}

func TestAllocateRawCleared(t *testing.T) {
	var a Allocator

	slot := a.AllocateRawCleared(256, 16)
	for i, b := range slot {
		require.Zero(t, b, "byte %d not cleared", i)
	}
}

func TestAllocTyped(t *testing.T) {
	var a Allocator

	type entry struct {
		Offset uint32
		Size   uint32
		ID     uint64
	}

	entries := Alloc[entry](&a, 7)
	require.Len(t, entries, 7)
	addr := uintptr(unsafe.Pointer(&entries[0]))
	require.Zero(t, addr&(unsafe.Alignof(entry{})-1))

	entries[6] = entry{Offset: 1, Size: 2, ID: 3}
	require.Equal(t, uint64(3), entries[6].ID)
}

func TestCopyRoundTrip(t *testing.T) {
	var a Allocator

	src := []uint32{1, 2, 3, 4}
	dst, err := Copy(&a, src)
	require.NoError(t, err)
	require.Equal(t, src, dst)

	src[0] = 99
	require.Equal(t, uint32(1), dst[0])
}

func TestCopyString(t *testing.T) {
	var a Allocator

	s, err := CopyString(&a, "main")
	require.NoError(t, err)
	require.Equal(t, "main", s)

	empty, err := CopyString(&a, "")
	require.NoError(t, err)
	require.Equal(t, "", empty)
}
