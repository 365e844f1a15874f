package btree

import (
	"fmt"

	"github.com/mtreefile/mtree/mtreeerr"
	"github.com/mtreefile/mtree/page"
)

// Search returns a fresh copy of the first occurrence of key, or nil if
// none exists.
func (t *Tree) Search(key []byte) ([]byte, error) {
	if t.rootNum == 0 {
		return nil, nil
	}
	cur, err := t.loadRoot()
	if err != nil {
		return nil, err
	}
	var depth uint32
	for {
		depth++
		n := cur.KeysCount()
		leaf := cur.IsLeaf()
		idx, found := t.findIndex(cur, n, key)
		if found && (leaf || !t.kind.CopyUpLeaves()) {
			t.bumpDepth(depth)
			out := make([]byte, t.recSize)
			copy(out, cur.Key(idx))
			return out, nil
		}
		if leaf {
			t.bumpDepth(depth)
			return nil, nil
		}
		childNum := cur.Cursor(idx)
		if childNum == 0 {
			return nil, fmt.Errorf("btree: %w: missing child cursor at depth %d", mtreeerr.ErrCorruption, depth)
		}
		cur, err = t.loadPage(childNum)
		if err != nil {
			return nil, err
		}
	}
}

// SearchAll returns a fresh copy of every occurrence of key, in tree
// (in-order) order.
//
// The descent mirrors the original's behaviour of recursing into every
// child that might still hold an equal-keyed descendant, including one
// step past the last matching position at each level (see the open
// question recorded in DESIGN.md).
func (t *Tree) SearchAll(key []byte) ([][]byte, error) {
	if t.rootNum == 0 {
		return nil, nil
	}
	root, err := t.loadRoot()
	if err != nil {
		return nil, err
	}
	var out [][]byte
	if err := t.searchAllRec(root, key, 1, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) searchAllRec(p *page.Page, key []byte, depth uint32, out *[][]byte) error {
	t.bumpDepth(depth)
	n := p.KeysCount()
	leaf := p.IsLeaf()
	i, _ := t.findIndex(p, n, key) // lower bound: first i with key(i) >= key

	for {
		if !leaf {
			childNum := p.Cursor(i)
			if childNum != 0 {
				child, err := t.loadPage(childNum)
				if err != nil {
					return err
				}
				if err := t.searchAllRec(child, key, depth+1, out); err != nil {
					return err
				}
			}
		}
		if i >= n || !t.cmp.Equal(p.Key(i), key) {
			break
		}
		if leaf || !t.kind.CopyUpLeaves() {
			val := make([]byte, t.recSize)
			copy(val, p.Key(i))
			*out = append(*out, val)
		}
		i++
	}
	return nil
}

func (t *Tree) bumpDepth(d uint32) {
	if d > t.maxSearchDepth {
		t.maxSearchDepth = d
	}
}
