// Package scratch provides a bump-allocated arena whose contents share a
// single lifetime. Allocations are many and small, are never freed
// individually, and remain valid until the whole arena is released.
package scratch

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

// minBlockSize is the smallest block the arena will request from the runtime.
const minBlockSize = 64 * 1024

type block struct {
	data   []byte
	offset int
}

// Allocator hands out aligned slots from a growing chain of contiguous
// blocks. Slots are never relocated and never freed mid-arena; dropping the
// Allocator releases everything at once.
//
// The zero value is ready to use. An Allocator must not be shared between
// goroutines without external synchronization.
type Allocator struct {
	blocks []block
}

func (a *Allocator) addBlock(minimumSize int) {
	if minimumSize < minBlockSize {
		minimumSize = minBlockSize
	}
	a.blocks = append(a.blocks, block{data: make([]byte, minimumSize)})
}

// AllocateRaw returns a slot of size bytes whose base address is a multiple
// of align. align must be a power of two. Returns nil when the request
// cannot be satisfied.
func (a *Allocator) AllocateRaw(size, align int) []byte {
	if size < 0 || align <= 0 || align&(align-1) != 0 {
		return nil
	}
	if size == 0 {
		return []byte{}
	}

	if len(a.blocks) == 0 {
		a.addBlock(size + align)
	}

	b := &a.blocks[len(a.blocks)-1]
	base := uintptr(unsafe.Pointer(&b.data[0]))
	aligned := (uintptr(b.offset) + base + uintptr(align) - 1) &^ (uintptr(align) - 1)
	offset := int(aligned - base)

	if offset+size > len(b.data) {
		a.addBlock(size + align)
		return a.AllocateRaw(size, align)
	}

	b.offset = offset + size
	return b.data[offset : offset+size : offset+size]
}

// AllocateRawCleared is AllocateRaw with the slot zero-filled.
func (a *Allocator) AllocateRawCleared(size, align int) []byte {
	ret := a.AllocateRaw(size, align)
	for i := range ret {
		ret[i] = 0
	}
	return ret
}

// BlockCount reports how many blocks the arena has chained so far.
func (a *Allocator) BlockCount() int {
	return len(a.blocks)
}

// Alloc returns a slice of n values of T backed by arena memory, aligned for
// T. The slice must not be appended to. Returns nil when n is 0 or the
// request cannot be satisfied.
func Alloc[T any](a *Allocator, n int) []T {
	if n <= 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	align := int(unsafe.Alignof(zero))

	if size > 0 && n > (1<<31)/size {
		return nil
	}

	raw := a.AllocateRaw(n*size, align)
	if raw == nil {
		return nil
	}
	if size == 0 {
		return make([]T, n)
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), n)
}

// AllocOne returns a pointer to a single arena-backed T.
func AllocOne[T any](a *Allocator) *T {
	s := Alloc[T](a, 1)
	if s == nil {
		return nil
	}
	return &s[0]
}

// Copy duplicates src into arena memory.
func Copy[T any](a *Allocator, src []T) ([]T, error) {
	if src == nil {
		return nil, nil
	}
	if len(src) == 0 {
		return []T{}, nil
	}
	dst := Alloc[T](a, len(src))
	if dst == nil {
		return nil, cerrors.Newf("scratch: failed to allocate %d elements", len(src))
	}
	copy(dst, src)
	return dst, nil
}

// CopyString duplicates s into arena memory and returns a string view of the
// arena bytes.
func CopyString(a *Allocator, s string) (string, error) {
	if len(s) == 0 {
		return "", nil
	}
	raw := a.AllocateRaw(len(s), 1)
	if raw == nil {
		return "", cerrors.Newf("scratch: failed to allocate %d bytes", len(s))
	}
	copy(raw, s)
	return unsafe.String(&raw[0], len(raw)), nil
}
