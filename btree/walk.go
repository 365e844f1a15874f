package btree

import "github.com/mtreefile/mtree/page"

// NodeInfo is a read-only snapshot of one page, used by the dot package's
// Graphviz writer and the fill-factor diagnostic.
type NodeInfo struct {
	PageNum  uint32
	Leaf     bool
	Keys     [][]byte
	Children []uint32
}

// Capacity returns the key-slot capacity every page in the file is sized
// to — the denominator for a fill-percentage diagnostic.
func (t *Tree) Capacity() int { return t.sz.cap }

// PageByteSize returns the fixed on-disk size of one page.
func (t *Tree) PageByteSize() int { return t.layout.Size() }

// Walk visits every page of the tree in pre-order, depth-first. It is
// the traversal the teacher's ExportDOT inlines into its own recursive
// closure (dbms/index/shared/tree.go), pulled out here so both the DOT
// writer and the fill-factor plot can share it.
func (t *Tree) Walk(visit func(NodeInfo) error) error {
	if t.rootNum == 0 {
		return nil
	}
	root, err := t.loadRoot()
	if err != nil {
		return err
	}
	return t.walkRec(t.rootNum, root, visit)
}

func (t *Tree) walkRec(num uint32, p *page.Page, visit func(NodeInfo) error) error {
	n := p.KeysCount()
	leaf := p.IsLeaf()

	info := NodeInfo{PageNum: num, Leaf: leaf, Keys: make([][]byte, n)}
	for i := 0; i < n; i++ {
		k := make([]byte, t.recSize)
		copy(k, p.Key(i))
		info.Keys[i] = k
	}
	if !leaf {
		info.Children = make([]uint32, n+1)
		for i := 0; i <= n; i++ {
			info.Children[i] = p.Cursor(i)
		}
	}
	if err := visit(info); err != nil {
		return err
	}

	for _, childNum := range info.Children {
		if childNum == 0 {
			continue
		}
		child, err := t.loadPage(childNum)
		if err != nil {
			return err
		}
		if err := t.walkRec(childNum, child, visit); err != nil {
			return err
		}
	}
	return nil
}
