// Package shmem maps the shared control block that replay processes use to
// publish progress telemetry: a validated header, atomic counters, and a
// mutex-guarded ring buffer of fixed-size text records.
package shmem

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Magic is the control-block header cookie. Readers refuse a block whose
// cookie does not match.
const Magic uint32 = 0x464f5a31

// RecordSize is the fixed size of one ring-buffer record, including its NUL
// padding.
const RecordSize = 64

const headerSize = 64

// Header field offsets within the mapping.
const (
	offMagic            = 0
	offRingBufferOffset = 4
	offRingBufferSize   = 8
	offProgressStarted  = 12
	offProgressComplete = 16
	offBannedModules    = 20
	offCleanDeaths      = 24
	offDirtyDeaths      = 28
	offRingHead         = 32
)

var shmDir = "/dev/shm"

// ErrCorruptControlBlock is returned when a mapped block fails header
// validation.
var ErrCorruptControlBlock error = cerrors.New("control block is corrupt")

// ControlBlock is a memory-mapped shared telemetry block. Counter access is
// atomic; ring-buffer writes are serialized by a file-lock mutex shared with
// every process that maps the same names.
type ControlBlock struct {
	data  []byte
	mutex *os.File
}

func shmPath(name string) string {
	return filepath.Join(shmDir, name)
}

// Create creates and maps a fresh control block under name, with a ring
// buffer of ringSize bytes. ringSize must be a nonzero power of two. The
// mutex file is created alongside it.
func Create(name, mutexName string, ringSize int) (*ControlBlock, error) {
	if ringSize <= 0 || ringSize&(ringSize-1) != 0 {
		return nil, cerrors.Newf("ring buffer size %d is not a power of two", ringSize)
	}

	f, err := os.OpenFile(shmPath(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, cerrors.Wrap(err, "creating shared memory block")
	}
	defer f.Close()

	total := headerSize + ringSize
	if err := f.Truncate(int64(total)); err != nil {
		return nil, cerrors.Wrap(err, "sizing shared memory block")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, cerrors.Wrap(err, "mapping shared memory block")
	}

	c := &ControlBlock{data: data}
	c.storeU32(offRingBufferOffset, headerSize)
	c.storeU32(offRingBufferSize, uint32(ringSize))
	c.storeU32(offMagic, Magic)

	if c.mutex, err = os.OpenFile(shmPath(mutexName), os.O_RDWR|os.O_CREATE, 0o600); err != nil {
		_ = unix.Munmap(data)
		return nil, cerrors.Wrap(err, "creating shared mutex")
	}
	return c, nil
}

// Open maps an existing control block and validates its header: the magic
// cookie must match, the ring buffer must start past the header, and its
// size must be a nonzero power of two.
func Open(name, mutexName string) (*ControlBlock, error) {
	f, err := os.OpenFile(shmPath(name), os.O_RDWR, 0)
	if err != nil {
		return nil, cerrors.Wrap(err, "opening shared memory block")
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, cerrors.Wrap(err, "inspecting shared memory block")
	}
	if st.Size() < headerSize {
		return nil, cerrors.Wrapf(ErrCorruptControlBlock, "block is %d bytes", st.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, cerrors.Wrap(err, "mapping shared memory block")
	}

	c := &ControlBlock{data: data}
	ringOffset := c.loadU32(offRingBufferOffset)
	ringSize := c.loadU32(offRingBufferSize)
	if c.loadU32(offMagic) != Magic ||
		ringOffset < headerSize ||
		ringSize == 0 ||
		ringSize&(ringSize-1) != 0 ||
		int64(ringOffset)+int64(ringSize) > st.Size() {
		_ = unix.Munmap(data)
		return nil, ErrCorruptControlBlock
	}

	if c.mutex, err = os.OpenFile(shmPath(mutexName), os.O_RDWR, 0); err != nil {
		_ = unix.Munmap(data)
		return nil, cerrors.Wrap(err, "opening shared mutex")
	}
	return c, nil
}

// Close unmaps the block. The backing names stay on the filesystem; Unlink
// removes them.
func (c *ControlBlock) Close() error {
	if c.mutex != nil {
		_ = c.mutex.Close()
		c.mutex = nil
	}
	if c.data != nil {
		data := c.data
		c.data = nil
		return unix.Munmap(data)
	}
	return nil
}

// Unlink removes the named block and mutex from the filesystem.
func Unlink(name, mutexName string) {
	_ = os.Remove(shmPath(name))
	_ = os.Remove(shmPath(mutexName))
}

func (c *ControlBlock) word(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&c.data[off]))
}

func (c *ControlBlock) loadU32(off int) uint32 {
	return atomic.LoadUint32(c.word(off))
}

func (c *ControlBlock) storeU32(off int, v uint32) {
	atomic.StoreUint32(c.word(off), v)
}

func (c *ControlBlock) addU32(off int, delta uint32) uint32 {
	return atomic.AddUint32(c.word(off), delta)
}

// SetProgressStarted publishes that the supervisor has begun spawning
// workers.
func (c *ControlBlock) SetProgressStarted() { c.storeU32(offProgressStarted, 1) }

// SetProgressComplete publishes that every worker has terminated.
func (c *ControlBlock) SetProgressComplete() { c.storeU32(offProgressComplete, 1) }

func (c *ControlBlock) ProgressStarted() bool  { return c.loadU32(offProgressStarted) != 0 }
func (c *ControlBlock) ProgressComplete() bool { return c.loadU32(offProgressComplete) != 0 }

// AddBannedModule bumps the banned-module counter and returns the new value.
func (c *ControlBlock) AddBannedModule() uint32 { return c.addU32(offBannedModules, 1) }

func (c *ControlBlock) AddCleanDeath() uint32 { return c.addU32(offCleanDeaths, 1) }
func (c *ControlBlock) AddDirtyDeath() uint32 { return c.addU32(offDirtyDeaths, 1) }

func (c *ControlBlock) BannedModules() uint32 { return c.loadU32(offBannedModules) }
func (c *ControlBlock) CleanDeaths() uint32   { return c.loadU32(offCleanDeaths) }
func (c *ControlBlock) DirtyDeaths() uint32   { return c.loadU32(offDirtyDeaths) }

func (c *ControlBlock) ringOffset() int { return int(c.loadU32(offRingBufferOffset)) }
func (c *ControlBlock) ringSize() int   { return int(c.loadU32(offRingBufferSize)) }

// WriteRecord inserts one fixed-size text record into the ring buffer under
// the shared mutex. Messages longer than RecordSize-1 bytes are truncated.
func (c *ControlBlock) WriteRecord(msg string) error {
	if err := unix.Flock(int(c.mutex.Fd()), unix.LOCK_EX); err != nil {
		return cerrors.Wrap(err, "locking shared mutex")
	}
	defer func() {
		_ = unix.Flock(int(c.mutex.Fd()), unix.LOCK_UN)
	}()

	records := c.ringSize() / RecordSize
	if records == 0 {
		return nil
	}
	head := c.loadU32(offRingHead)
	slot := c.ringOffset() + int(head%uint32(records))*RecordSize

	record := c.data[slot : slot+RecordSize]
	for i := range record {
		record[i] = 0
	}
	copy(record[:RecordSize-1], msg)

	c.storeU32(offRingHead, head+1)
	return nil
}

// Records returns the ring-buffer contents in insertion order, oldest first.
func (c *ControlBlock) Records() []string {
	records := c.ringSize() / RecordSize
	if records == 0 {
		return nil
	}
	head := int(c.loadU32(offRingHead))

	count := head
	if count > records {
		count = records
	}
	out := make([]string, 0, count)
	for i := head - count; i < head; i++ {
		slot := c.ringOffset() + (i%records)*RecordSize
		record := c.data[slot : slot+RecordSize]
		end := 0
		for end < len(record) && record[end] != 0 {
			end++
		}
		if end > 0 {
			out = append(out, string(record[:end]))
		}
	}
	return out
}
