package rdma

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Memory layout constants
const (
	PageSize     = 4096    // Alignment of regular regions
	HugePageSize = 1 << 21 // Alignment of huge page backed regions
	WordSize     = 4       // Size of one adjacency word in bytes
)

// ErrEmptyRegion is returned when a zero sized region is requested
var ErrEmptyRegion = errors.New("rdma: region size must be positive")

// RemoteRegion is the capability for a region registered by the peer
type RemoteRegion struct {
	Addr   uint64
	Length uint64
	RKey   uint32
}

// Words returns the number of whole 32-bit words in the region
func (r RemoteRegion) Words() uint64 { return r.Length / WordSize }

// WordAddr returns the remote address of word i
func (r RemoteRegion) WordAddr(i uint64) uint64 { return r.Addr + i*WordSize }

// LocalRegion is pinned anonymous memory registered for RDMA on one channel
type LocalRegion struct {
	Channel   int
	Buf       []byte
	Writable  bool
	HugePages bool
	mr        MemoryRegion
}

// Addr returns the registered base address
func (r *LocalRegion) Addr() uint64 { return r.mr.Addr() }

// LKey returns the local key of the region
func (r *LocalRegion) LKey() uint32 { return r.mr.LKey() }

// RKey returns the remote key of the region
func (r *LocalRegion) RKey() uint32 { return r.mr.RKey() }

// Len returns the usable length of the region in bytes
func (r *LocalRegion) Len() int { return len(r.Buf) }

// Words views the region as 32-bit words
func (r *LocalRegion) Words() []uint32 { return Words(r.Buf) }

func (r *LocalRegion) release() error {
	var errs []error
	if r.mr != nil {
		if err := r.mr.Deregister(); err != nil {
			errs = append(errs, fmt.Errorf("failed to deregister region: %w", err))
		}
		r.mr = nil
	}
	if r.Buf != nil {
		if err := FreeRegion(r.Buf); err != nil {
			errs = append(errs, err)
		}
		r.Buf = nil
	}
	return errors.Join(errs...)
}

// AllocateRegion maps size bytes of anonymous, page aligned memory. With
// hugepages the mapping is backed by 2MiB pages and its length rounded up to
// a huge page multiple. The returned slice is exactly size bytes long; its
// capacity covers the whole mapping.
func AllocateRegion(size uint64, hugepages bool) ([]byte, error) {
	if size == 0 {
		return nil, ErrEmptyRegion
	}

	align := uint64(PageSize)
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if hugepages {
		align = HugePageSize
		flags |= unix.MAP_HUGETLB
	}
	allocSize := alignUp(size, align)

	buf, err := unix.Mmap(-1, 0, int(allocSize), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %d bytes (hugepages=%t): %w", allocSize, hugepages, err)
	}

	log.Debug().
		Uint64("size", size).
		Uint64("mapped", allocSize).
		Bool("hugepages", hugepages).
		Msg("Mapped RDMA region")

	return buf[:size], nil
}

// FreeRegion unmaps memory returned by AllocateRegion or MapFile. buf may be
// shorter than the mapping but must start at its first byte.
func FreeRegion(buf []byte) error {
	if cap(buf) == 0 {
		return ErrEmptyRegion
	}
	if err := unix.Munmap(buf[:cap(buf)]); err != nil {
		return fmt.Errorf("failed to munmap region: %w", err)
	}
	return nil
}

// MapFile maps a whole file privately. The mapping is writable so it can be
// registered with either provider, but changes never reach the file.
func MapFile(fd int, size int64) ([]byte, error) {
	if size <= 0 {
		return nil, ErrEmptyRegion
	}
	buf, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}
	return buf, nil
}

// Words views buf as native-endian 32-bit words. buf must be word aligned.
func Words(buf []byte) []uint32 {
	if len(buf) < WordSize {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&buf[0])), len(buf)/WordSize)
}

// BufferAddr returns the virtual address of the first byte of buf
func BufferAddr(buf []byte) uint64 {
	if len(buf) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}
