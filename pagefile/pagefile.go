// Package pagefile implements the single paged file backing a tree: the
// header, the page area, and the free-page stack that immediately
// follows it, per the bit-exact file layout. It is the disk-I/O layer
// the page codec and tree core are built on, grounded on the teacher's
// Pager (dbms/pager/pager.go) — reworked from a separate-header-page,
// generic-LRU-cache design into the spec's single-header-plus-trailing-
// free-stack file shape, since the two file formats are incompatible.
package pagefile

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mtreefile/mtree/mtreeerr"
)

// Signature is the magic number every valid file begins with.
const Signature = uint32(0x19979AAA)

const (
	headerSize    = 16
	offSign       = 0
	offOrder      = 4
	offRecSize    = 6
	offLastPage   = 8
	offRootPage   = 12
	offFirstPage  = headerSize
	freeCountSize = 4

	// defaultCacheSize is the number of pages the LRU cache holds — the
	// upper levels of a tree are touched on every descent, so even a
	// small cache absorbs most of the traffic.
	defaultCacheSize = 64
)

// Header holds the fixed-size file header fields.
type Header struct {
	Sign        uint32
	Order       uint16
	RecSize     uint16
	LastPageNum uint32
	RootPageNum uint32
}

// File is an open paged file: header, page area, and free-page stack.
type File struct {
	f           *os.File
	hdr         Header
	pageSize    int
	freeCounter uint32
	diskOps     uint64
	cache       *lruCache
}

// Create truncates (or creates) the file at path and writes a fresh
// header with order/recSize and the given page size.
func Create(path string, order, recSize uint16, pageSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagefile: create %s: %w", path, wrapIO(err))
	}
	pf := &File{
		f:        f,
		hdr:      Header{Sign: Signature, Order: order, RecSize: recSize},
		pageSize: pageSize,
		cache:    newLRUCache(defaultCacheSize),
	}
	if err := pf.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := pf.writeFreeCounter(); err != nil {
		f.Close()
		return nil, err
	}
	return pf, nil
}

// ReadHeader opens path read-write and returns its raw header, without
// yet knowing the page size (the header lives at a fixed offset
// independent of it). The caller validates the header and derives the
// page size from order and the chosen variant, then calls Attach.
func ReadHeader(path string) (*os.File, Header, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, Header{}, fmt.Errorf("pagefile: open %s: %w", path, wrapIO(err))
	}
	var buf [headerSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("pagefile: read header: %w", wrapIO(err))
	}
	hdr := Header{
		Sign:        binary.LittleEndian.Uint32(buf[offSign:]),
		Order:       binary.LittleEndian.Uint16(buf[offOrder:]),
		RecSize:     binary.LittleEndian.Uint16(buf[offRecSize:]),
		LastPageNum: binary.LittleEndian.Uint32(buf[offLastPage:]),
		RootPageNum: binary.LittleEndian.Uint32(buf[offRootPage:]),
	}
	if hdr.Sign != Signature {
		f.Close()
		return nil, Header{}, fmt.Errorf("pagefile: %w: bad signature %#x", mtreeerr.ErrCorruption, hdr.Sign)
	}
	return f, hdr, nil
}

// Attach wraps an already-open file (from ReadHeader) with the given
// page size, reading the free-page counter at its derived offset.
func Attach(f *os.File, hdr Header, pageSize int) (*File, error) {
	pf := &File{f: f, hdr: hdr, pageSize: pageSize, cache: newLRUCache(defaultCacheSize)}
	if err := pf.readFreeCounter(); err != nil {
		return nil, err
	}
	return pf, nil
}

// Close releases the underlying file handle.
func (pf *File) Close() error {
	if err := pf.f.Close(); err != nil {
		return fmt.Errorf("pagefile: close: %w", wrapIO(err))
	}
	return nil
}

// Header returns the current in-memory header snapshot.
func (pf *File) Header() Header { return pf.hdr }

// PageSize returns P, the fixed byte size of every page.
func (pf *File) PageSize() int { return pf.pageSize }

// LastPageNum returns the count of pages ever allocated.
func (pf *File) LastPageNum() uint32 { return pf.hdr.LastPageNum }

// RootPageNum returns the current root page number (0 = none).
func (pf *File) RootPageNum() uint32 { return pf.hdr.RootPageNum }

// FreePageCount returns the current depth of the free-page stack.
func (pf *File) FreePageCount() uint32 { return pf.freeCounter }

// DiskOperationsCount returns the number of page I/O operations
// performed since the last reset.
func (pf *File) DiskOperationsCount() uint64 { return pf.diskOps }

// ResetDiskOperationsCount zeroes the diagnostic counter.
func (pf *File) ResetDiskOperationsCount() { pf.diskOps = 0 }

// SetRootPageNum persists a new root page number to the header.
func (pf *File) SetRootPageNum(num uint32) error {
	pf.hdr.RootPageNum = num
	return pf.writeHeader()
}

func (pf *File) pageOffset(num uint32) int64 {
	return int64(offFirstPage) + int64(num-1)*int64(pf.pageSize)
}

func (pf *File) freeCounterOffset() int64 {
	return int64(offFirstPage) + int64(pf.hdr.LastPageNum)*int64(pf.pageSize)
}

func (pf *File) freeStackOffset(slot uint32) int64 {
	return pf.freeCounterOffset() + freeCountSize + int64(slot)*4
}

// ReadPage reads page num (1-based) into dst, which must be exactly
// PageSize() bytes.
func (pf *File) ReadPage(num uint32, dst []byte) error {
	if num == 0 || num > pf.hdr.LastPageNum {
		return fmt.Errorf("pagefile: %w: page %d out of range (last=%d)", mtreeerr.ErrCorruption, num, pf.hdr.LastPageNum)
	}
	if cached := pf.cache.get(num); cached != nil {
		copy(dst, cached)
		return nil
	}
	pf.diskOps++
	if _, err := pf.f.ReadAt(dst, pf.pageOffset(num)); err != nil {
		return fmt.Errorf("pagefile: read page %d: %w", num, wrapIO(err))
	}
	pf.cache.put(num, dst)
	return nil
}

// WritePage writes src (exactly PageSize() bytes) to page num (1-based).
func (pf *File) WritePage(num uint32, src []byte) error {
	if num == 0 || num > pf.hdr.LastPageNum {
		return fmt.Errorf("pagefile: %w: page %d out of range (last=%d)", mtreeerr.ErrCorruption, num, pf.hdr.LastPageNum)
	}
	pf.diskOps++
	if _, err := pf.f.WriteAt(src, pf.pageOffset(num)); err != nil {
		return fmt.Errorf("pagefile: write page %d: %w", num, wrapIO(err))
	}
	pf.cache.put(num, src)
	return nil
}

// AllocPage reserves a page, either by popping the free-page stack or
// by appending to the page area, and returns its 1-based number together
// with a zeroed buffer of PageSize() bytes ready to be filled in and
// written back with WritePage.
func (pf *File) AllocPage() (uint32, []byte, error) {
	blank := make([]byte, pf.pageSize)
	if pf.freeCounter > 0 {
		slot := pf.freeCounter - 1
		var numBuf [4]byte
		pf.diskOps++
		if _, err := pf.f.ReadAt(numBuf[:], pf.freeStackOffset(slot)); err != nil {
			return 0, nil, fmt.Errorf("pagefile: read free stack slot %d: %w", slot, wrapIO(err))
		}
		num := binary.LittleEndian.Uint32(numBuf[:])
		pf.freeCounter--
		if err := pf.writeFreeCounter(); err != nil {
			return 0, nil, err
		}
		if num == 0 || num > pf.hdr.LastPageNum {
			return 0, nil, fmt.Errorf("pagefile: %w: free stack held out-of-range page %d", mtreeerr.ErrCorruption, num)
		}
		pf.diskOps++
		if _, err := pf.f.WriteAt(blank, pf.pageOffset(num)); err != nil {
			return 0, nil, fmt.Errorf("pagefile: write reclaimed page %d: %w", num, wrapIO(err))
		}
		pf.cache.put(num, blank)
		return num, blank, nil
	}

	// Append: the new page occupies the free area's current (empty)
	// slot; the counter then relocates past it, per §4.4.
	num := pf.hdr.LastPageNum + 1
	offset := int64(offFirstPage) + int64(pf.hdr.LastPageNum)*int64(pf.pageSize)
	pf.diskOps++
	if _, err := pf.f.WriteAt(blank, offset); err != nil {
		return 0, nil, fmt.Errorf("pagefile: append page %d: %w", num, wrapIO(err))
	}
	pf.hdr.LastPageNum = num
	if err := pf.writeHeader(); err != nil {
		return 0, nil, err
	}
	if err := pf.writeFreeCounter(); err != nil {
		return 0, nil, err
	}
	pf.cache.put(num, blank)
	return num, blank, nil
}

// FreePage pushes num onto the free-page stack. It rejects page numbers
// beyond lastPageNum (misuse, per §7).
func (pf *File) FreePage(num uint32) error {
	if num == 0 || num > pf.hdr.LastPageNum {
		return fmt.Errorf("pagefile: %w: cannot free page %d beyond lastPageNum %d", mtreeerr.ErrMisuse, num, pf.hdr.LastPageNum)
	}
	var numBuf [4]byte
	binary.LittleEndian.PutUint32(numBuf[:], num)
	pf.diskOps++
	if _, err := pf.f.WriteAt(numBuf[:], pf.freeStackOffset(pf.freeCounter)); err != nil {
		return fmt.Errorf("pagefile: push free page %d: %w", num, wrapIO(err))
	}
	pf.freeCounter++
	pf.cache.invalidate(num)
	return pf.writeFreeCounter()
}

func (pf *File) writeHeader() error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[offSign:], pf.hdr.Sign)
	binary.LittleEndian.PutUint16(buf[offOrder:], pf.hdr.Order)
	binary.LittleEndian.PutUint16(buf[offRecSize:], pf.hdr.RecSize)
	binary.LittleEndian.PutUint32(buf[offLastPage:], pf.hdr.LastPageNum)
	binary.LittleEndian.PutUint32(buf[offRootPage:], pf.hdr.RootPageNum)
	pf.diskOps++
	if _, err := pf.f.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("pagefile: write header: %w", wrapIO(err))
	}
	return nil
}

func (pf *File) writeFreeCounter() error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], pf.freeCounter)
	pf.diskOps++
	if _, err := pf.f.WriteAt(buf[:], pf.freeCounterOffset()); err != nil {
		return fmt.Errorf("pagefile: write free counter: %w", wrapIO(err))
	}
	return nil
}

func (pf *File) readFreeCounter() error {
	info, err := pf.f.Stat()
	if err != nil {
		return fmt.Errorf("pagefile: stat: %w", wrapIO(err))
	}
	if info.Size() < pf.freeCounterOffset()+freeCountSize {
		pf.freeCounter = 0
		return pf.writeFreeCounter()
	}
	var buf [4]byte
	pf.diskOps++
	if _, err := pf.f.ReadAt(buf[:], pf.freeCounterOffset()); err != nil {
		return fmt.Errorf("pagefile: read free counter: %w", wrapIO(err))
	}
	pf.freeCounter = binary.LittleEndian.Uint32(buf[:])
	return nil
}

func wrapIO(err error) error {
	if os.IsNotExist(err) || os.IsPermission(err) {
		return fmt.Errorf("%w: %v", mtreeerr.ErrIO, err)
	}
	return fmt.Errorf("%w: %v", mtreeerr.ErrIO, err)
}
