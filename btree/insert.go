package btree

import (
	"fmt"

	"github.com/mtreefile/mtree/mtreeerr"
	"github.com/mtreefile/mtree/page"
)

// Insert places key into the tree. Duplicates are permitted — the
// structure is a multiset.
func (t *Tree) Insert(key []byte) error {
	if len(key) != t.recSize {
		return fmt.Errorf("btree: %w: key length %d != recSize %d", mtreeerr.ErrArgument, len(key), t.recSize)
	}
	if t.rootNum == 0 {
		num, p, err := t.newPage(true)
		if err != nil {
			return err
		}
		if err := t.storePage(num, p); err != nil {
			return err
		}
		if err := t.setRoot(num, p); err != nil {
			return err
		}
	}

	root, err := t.loadRoot()
	if err != nil {
		return err
	}
	if t.isFull(root, true) {
		if t.kind.IsStar() {
			if err := t.splitRootStar(); err != nil {
				return err
			}
		} else {
			if err := t.splitRoot(); err != nil {
				return err
			}
		}
		root, err = t.loadRoot()
		if err != nil {
			return err
		}
	}
	return t.insertNonFull(t.rootNum, root, key, 1)
}

// splitRoot wraps a full, non-star root under a new empty root whose
// sole cursor is the old root; insertNonFull's ordinary "split a full
// child before descending" logic then splits it on the way down, per
// §4.2 "Root-full check & root creation".
func (t *Tree) splitRoot() error {
	oldNum := t.rootNum
	newNum, newRoot, err := t.newPage(false)
	if err != nil {
		return err
	}
	newRoot.SetCursor(0, oldNum)
	newRoot.SetKeysCount(0)
	if err := t.storePage(newNum, newRoot); err != nil {
		return err
	}
	return t.setRoot(newNum, newRoot)
}

// insertNonFull implements §4.2.1's insertNonFull for B and B+ (their
// internal-node behaviour is identical per §4.2.2), dispatching to the
// star variants' share-or-split descent when t.kind.IsStar().
func (t *Tree) insertNonFull(num uint32, node *page.Page, key []byte, depth uint32) error {
	t.bumpDepth(depth)
	n := node.KeysCount()
	leaf := node.IsLeaf()
	idx, _ := t.findIndex(node, n, key)

	if leaf {
		node.ShiftKeysRight(idx, n)
		node.SetKey(idx, key)
		node.SetKeysCount(n + 1)
		return t.storePage(num, node)
	}

	if t.kind.IsStar() {
		return t.insertNonFullStar(num, node, idx, key, depth)
	}

	childNum := node.Cursor(idx)
	child, err := t.loadPage(childNum)
	if err != nil {
		return err
	}
	if t.isFull(child, false) {
		if err := t.splitChild(num, node, idx, childNum, child); err != nil {
			return err
		}
		n = node.KeysCount()
		idx, _ = t.findIndex(node, n, key)
		childNum = node.Cursor(idx)
		child, err = t.loadPage(childNum)
		if err != nil {
			return err
		}
	}
	return t.insertNonFull(childNum, child, key, depth+1)
}

// splitChild implements §4.2.1's splitChild for internal nodes and
// §4.2.2's leaf differentiation for B+ (copy-up leaves): left and right
// end up with `order` keys each and the parent receives a copy of
// left's last key, instead of the classic median-promoted-away split.
func (t *Tree) splitChild(parentNum uint32, parent *page.Page, idx int, leftNum uint32, left *page.Page) error {
	leaf := left.IsLeaf()
	order := t.order

	newNum, right, err := t.newPage(leaf)
	if err != nil {
		return err
	}

	var medianKey []byte
	if leaf && t.kind.CopyUpLeaves() {
		half := order
		right.CopyKeysFrom(0, left, half, half)
		right.SetKeysCount(half)
		left.SetKeysCount(half)
		medianKey = append([]byte(nil), left.Key(half-1)...)
	} else {
		half := order - 1
		right.CopyKeysFrom(0, left, order, half)
		if !leaf {
			right.CopyCursorsFrom(0, left, order, half+1)
		}
		right.SetKeysCount(half)
		medianKey = append([]byte(nil), left.Key(order-1)...)
		left.SetKeysCount(half)
	}

	n := parent.KeysCount()
	parent.ShiftKeysRight(idx, n)
	parent.ShiftCursorsRight(idx+1, n)
	parent.SetKey(idx, medianKey)
	parent.SetCursor(idx+1, newNum)
	parent.SetKeysCount(n + 1)

	if err := t.storePage(leftNum, left); err != nil {
		return err
	}
	if err := t.storePage(newNum, right); err != nil {
		return err
	}
	return t.storePage(parentNum, parent)
}
