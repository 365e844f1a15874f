// Package page provides typed accessors over a fixed-size page buffer:
// an info word carrying the leaf bit and keys-count, left-justified key
// slots, and child-cursor slots. It is pure byte arithmetic — no disk
// I/O — mirroring the accessor style of the teacher's btpage codec,
// adapted from a cell-pointer layout to the fixed-slot layout this
// family of trees is defined over.
//
// Layout (little-endian, no padding):
//
//	[0:2]             info word: bit 15 leaf flag, bits 0..14 keys-count
//	[2 : 2+r*cap]     key slots, r bytes each, left-justified
//	[2+r*cap : ...]   cursor slots, 4 bytes each, cap+1 of them
package page

import "encoding/binary"

const (
	// LeafMask is the leaf-flag bit of the info word.
	LeafMask = uint16(0x8000)
	// CountMask masks the keys-count bits of the info word.
	CountMask = uint16(0x7FFF)
	// MaxKeys is the largest keys-count representable in the info word.
	MaxKeys = 32767
)

// Layout describes the fixed geometry shared by every page of one tree:
// the key byte width and the slot capacity every page is sized to (the
// largest maxKeys of any node kind the tree's variant admits).
type Layout struct {
	RecSize int
	Cap     int
}

// Size returns the page's byte size: 2 + RecSize*Cap + 4*(Cap+1).
func (l Layout) Size() int {
	return 2 + l.RecSize*l.Cap + 4*(l.Cap+1)
}

// Page is a page buffer together with the layout needed to interpret it.
type Page struct {
	buf    []byte
	layout Layout
}

// New allocates a zeroed page of the given layout.
func New(layout Layout) *Page {
	return &Page{buf: make([]byte, layout.Size()), layout: layout}
}

// Wrap interprets an existing byte slice (already sized by layout) as a
// page. The slice is used in place, not copied.
func Wrap(buf []byte, layout Layout) *Page {
	return &Page{buf: buf, layout: layout}
}

// Bytes returns the underlying buffer.
func (p *Page) Bytes() []byte { return p.buf }

// Layout returns the page's geometry.
func (p *Page) Layout() Layout { return p.layout }

// Reset clears the page and sets the leaf bit.
func (p *Page) Reset(leaf bool) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.SetLeaf(leaf)
}

func (p *Page) info() uint16 { return binary.LittleEndian.Uint16(p.buf[0:2]) }

func (p *Page) setInfo(v uint16) { binary.LittleEndian.PutUint16(p.buf[0:2], v) }

// IsLeaf reports the leaf bit.
func (p *Page) IsLeaf() bool { return p.info()&LeafMask != 0 }

// SetLeaf sets the leaf bit, preserving the keys-count.
func (p *Page) SetLeaf(leaf bool) {
	v := p.info() & CountMask
	if leaf {
		v |= LeafMask
	}
	p.setInfo(v)
}

// KeysCount returns the live key count.
func (p *Page) KeysCount() int { return int(p.info() & CountMask) }

// SetKeysCount sets the live key count, preserving the leaf bit.
func (p *Page) SetKeysCount(n int) {
	v := p.info() & LeafMask
	v |= uint16(n) & CountMask
	p.setInfo(v)
}

func (p *Page) keyOffset(i int) int { return 2 + i*p.layout.RecSize }

// Key returns the i-th key slot (index into capacity, not bounds-checked
// against the live count).
func (p *Page) Key(i int) []byte {
	off := p.keyOffset(i)
	return p.buf[off : off+p.layout.RecSize]
}

// SetKey overwrites the i-th key slot.
func (p *Page) SetKey(i int, key []byte) { copy(p.Key(i), key) }

func (p *Page) cursorOffset(i int) int {
	return 2 + p.layout.RecSize*p.layout.Cap + i*4
}

// Cursor returns the i-th child page number (0 = absent).
func (p *Page) Cursor(i int) uint32 {
	off := p.cursorOffset(i)
	return binary.LittleEndian.Uint32(p.buf[off : off+4])
}

// SetCursor overwrites the i-th cursor slot.
func (p *Page) SetCursor(i int, v uint32) {
	off := p.cursorOffset(i)
	binary.LittleEndian.PutUint32(p.buf[off:off+4], v)
}

// CopyKeysFrom bulk-copies n keys from src (starting at srcIdx) into p
// (starting at dstIdx).
func (p *Page) CopyKeysFrom(dstIdx int, src *Page, srcIdx, n int) {
	for i := 0; i < n; i++ {
		p.SetKey(dstIdx+i, src.Key(srcIdx+i))
	}
}

// CopyCursorsFrom bulk-copies n cursors from src (starting at srcIdx)
// into p (starting at dstIdx).
func (p *Page) CopyCursorsFrom(dstIdx int, src *Page, srcIdx, n int) {
	for i := 0; i < n; i++ {
		p.SetCursor(dstIdx+i, src.Cursor(srcIdx+i))
	}
}

// ShiftKeysRight moves keys idx..n-1 one slot to the right, for
// inserting a key at idx. n is the count before insertion.
func (p *Page) ShiftKeysRight(idx, n int) {
	for i := n; i > idx; i-- {
		p.SetKey(i, p.Key(i-1))
	}
}

// ShiftKeysLeft moves keys idx+1..n-1 one slot to the left, for
// removing the key at idx. n is the count before removal.
func (p *Page) ShiftKeysLeft(idx, n int) {
	for i := idx; i < n-1; i++ {
		p.SetKey(i, p.Key(i+1))
	}
}

// ShiftCursorsRight moves cursors idx..n one slot to the right, for
// inserting a cursor at idx. n is the key count before insertion.
func (p *Page) ShiftCursorsRight(idx, n int) {
	for i := n + 1; i > idx; i-- {
		p.SetCursor(i, p.Cursor(i-1))
	}
}

// ShiftCursorsLeft moves the cursors starting at idx+1 one slot to the
// left, for removing the cursor at idx. n is the key count before removal.
func (p *Page) ShiftCursorsLeft(idx, n int) {
	for i := idx; i < n; i++ {
		p.SetCursor(i, p.Cursor(i+1))
	}
}
