// Package mtree is the public entry point for the disk-backed B-tree
// family: classical B-tree, B+-tree, B*-tree and B*+-tree, all sharing
// one paged-file format and one comparator-driven key ordering.
//
// It is a thin facade over package btree (the tree core), package
// pagefile (the paged file and free-page allocator) and package dot
// (diagnostics), mirroring how the teacher's own top-level code talks
// to dbms/index/shared.Tree only through a handful of entry points
// (New/Insert/Search/Delete/Close) rather than reaching into node
// internals.
package mtree

import (
	"io"

	"github.com/mtreefile/mtree/btree"
	"github.com/mtreefile/mtree/compare"
	"github.com/mtreefile/mtree/dot"
)

// Kind selects which of the four variants a Tree implements.
type Kind = btree.Kind

const (
	KindB         = btree.KindB
	KindBPlus     = btree.KindBPlus
	KindBStar     = btree.KindBStar
	KindBStarPlus = btree.KindBStarPlus
)

// Tree is one open, disk-backed multiway search tree.
type Tree struct {
	t *btree.Tree
}

// Create makes a new tree file at path. order is the tree's branching
// parameter t (§4.1); recSize is the fixed byte width of every stored
// key; cmp orders keys.
func Create(kind Kind, order, recSize int, path string, cmp compare.Comparator) (*Tree, error) {
	t, err := btree.Create(kind, order, recSize, path, cmp)
	if err != nil {
		return nil, err
	}
	return &Tree{t: t}, nil
}

// Open reopens an existing tree file. kind must match the kind the file
// was created with — it is not recoverable from the on-disk header
// alone, since the header stores only order/recSize/page-pointers (see
// DESIGN.md's note on this deviation from a literal open(path)).
func Open(kind Kind, path string, cmp compare.Comparator) (*Tree, error) {
	t, err := btree.Open(kind, path, cmp)
	if err != nil {
		return nil, err
	}
	return &Tree{t: t}, nil
}

// Close flushes and releases the backing file.
func (tr *Tree) Close() error { return tr.t.Close() }

// SetKeyPrinter stores p on the tree. WriteDot does not consult it; it
// renders with the printer passed as its own argument.
func (tr *Tree) SetKeyPrinter(p compare.KeyPrinter) { tr.t.SetKeyPrinter(p) }

// Insert places key into the tree. Duplicates are permitted.
func (tr *Tree) Insert(key []byte) error { return tr.t.Insert(key) }

// Search returns the first occurrence of key, or nil if none exists.
func (tr *Tree) Search(key []byte) ([]byte, error) { return tr.t.Search(key) }

// SearchAll returns every occurrence of key, in tree order.
func (tr *Tree) SearchAll(key []byte) ([][]byte, error) { return tr.t.SearchAll(key) }

// Remove deletes the first occurrence of key and reports whether one
// was found.
func (tr *Tree) Remove(key []byte) (bool, error) { return tr.t.Remove(key) }

// RemoveAll deletes every occurrence of key and returns the count
// removed.
func (tr *Tree) RemoveAll(key []byte) (int, error) { return tr.t.RemoveAll(key) }

// Order, RecSize, Kind return the tree's fixed parameters.
func (tr *Tree) Order() int     { return tr.t.Order() }
func (tr *Tree) RecSize() int   { return tr.t.RecSize() }
func (tr *Tree) Kind() Kind     { return tr.t.Kind() }

// PageCount, FreePageCount, MaxSearchDepth, DiskOperationsCount are the
// diagnostic counters of §10's Testable Properties.
func (tr *Tree) PageCount() int          { return tr.t.PageCount() }
func (tr *Tree) FreePageCount() int      { return tr.t.FreePageCount() }
func (tr *Tree) MaxSearchDepth() int     { return tr.t.MaxSearchDepth() }
func (tr *Tree) DiskOperationsCount() int { return tr.t.DiskOperationsCount() }

// ResetDiskOperationsCount zeroes the disk-operations counter.
func (tr *Tree) ResetDiskOperationsCount() { tr.t.ResetDiskOperationsCount() }

// WriteDot renders the tree's current page structure as Graphviz DOT.
func (tr *Tree) WriteDot(w io.Writer, printer compare.KeyPrinter) error {
	return dot.Write(w, tr.t, printer)
}

// PlotFillFactor renders a bar chart of every page's fill percentage as
// a PNG written to w.
func (tr *Tree) PlotFillFactor(w io.Writer) error {
	return dot.PlotFillFactor(tr.t, w)
}
