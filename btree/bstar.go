package btree

import (
	"github.com/mtreefile/mtree/page"
)

// insertNonFullStar relieves an overflowing child of a B*/B*+ internal
// node — by sharing keys with a non-full sibling, or, when sharing would
// leave either page full, by a 2-to-3 split with a sibling — before
// continuing the descent, per §4.2.3. For
// B*+ (kind.CopyUpLeaves()), leaf-level sharing/splitting keeps the
// parent's separator a router (a copy of the left child's last key)
// rather than an independently stored key, per §4.2.4.
func (t *Tree) insertNonFullStar(parentNum uint32, parent *page.Page, idx int, key []byte, depth uint32) error {
	childNum := parent.Cursor(idx)
	child, err := t.loadPage(childNum)
	if err != nil {
		return err
	}
	if t.isFull(child, false) {
		if err := t.relieveFullChild(parentNum, parent, idx); err != nil {
			return err
		}
		n := parent.KeysCount()
		idx, _ = t.findIndex(parent, n, key)
		childNum = parent.Cursor(idx)
		child, err = t.loadPage(childNum)
		if err != nil {
			return err
		}
	}
	return t.insertNonFull(childNum, child, key, depth+1)
}

// relieveFullChild makes parent.Cursor(idx) non-full.
func (t *Tree) relieveFullChild(parentNum uint32, parent *page.Page, idx int) error {
	n := parent.KeysCount()
	childNum := parent.Cursor(idx)
	child, err := t.loadPage(childNum)
	if err != nil {
		return err
	}

	if idx > 0 {
		leftNum := parent.Cursor(idx - 1)
		left, err := t.loadPage(leftNum)
		if err != nil {
			return err
		}
		if !t.isFull(left, false) {
			ok, err := t.shareAcrossSeparator(parentNum, parent, idx-1, leftNum, left, childNum, child)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
	if idx < n {
		rightNum := parent.Cursor(idx + 1)
		right, err := t.loadPage(rightNum)
		if err != nil {
			return err
		}
		if !t.isFull(right, false) {
			ok, err := t.shareAcrossSeparator(parentNum, parent, idx, childNum, child, rightNum, right)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}

	if idx < n {
		rightNum := parent.Cursor(idx + 1)
		right, err := t.loadPage(rightNum)
		if err != nil {
			return err
		}
		return t.split23(parentNum, parent, idx, childNum, child, rightNum, right)
	}
	leftNum := parent.Cursor(idx - 1)
	left, err := t.loadPage(leftNum)
	if err != nil {
		return err
	}
	return t.split23(parentNum, parent, idx-1, leftNum, left, childNum, child)
}

// shareAcrossSeparator redistributes keys between left and right across
// parent's separator at sepIdx until each is near ⌈(sum+1)/2⌉, per
// §4.2.3. It reports false (and leaves everything unmodified) if the
// redistribution would leave either side at maxKeys — the caller then
// descends into whichever side the pending key sorts into, so both must
// have room — and the caller falls through to a 2-to-3 split instead.
func (t *Tree) shareAcrossSeparator(parentNum uint32, parent *page.Page, sepIdx int, leftNum uint32, left *page.Page, rightNum uint32, right *page.Page) (bool, error) {
	leaf := left.IsLeaf()
	router := leaf && t.kind.CopyUpLeaves()
	ln, rn := left.KeysCount(), right.KeysCount()

	var total int
	if router {
		total = ln + rn
	} else {
		total = ln + 1 + rn
	}

	newLeftN := (total + 1) / 2
	if newLeftN < 1 {
		newLeftN = 1
	}
	if newLeftN > total-1 {
		newLeftN = total - 1
	}
	if newLeftN <= 0 || newLeftN >= total {
		return false, nil
	}
	// One of the total keys becomes the new separator (the old one, for
	// a router, is never removed from the key set at all — it's copied,
	// not consumed).
	newRightN := total - newLeftN
	if !router {
		newRightN--
	}
	if newRightN < 0 {
		return false, nil
	}

	maxLeaf := t.maxKeysFor(leaf)
	if newLeftN >= maxLeaf || newRightN >= maxLeaf {
		return false, nil
	}

	keys := make([][]byte, total)
	if router {
		for i := 0; i < ln; i++ {
			keys[i] = append([]byte(nil), left.Key(i)...)
		}
		for i := 0; i < rn; i++ {
			keys[ln+i] = append([]byte(nil), right.Key(i)...)
		}
	} else {
		for i := 0; i < ln; i++ {
			keys[i] = append([]byte(nil), left.Key(i)...)
		}
		keys[ln] = append([]byte(nil), parent.Key(sepIdx)...)
		for i := 0; i < rn; i++ {
			keys[ln+1+i] = append([]byte(nil), right.Key(i)...)
		}
	}

	var cursors []uint32
	if !leaf {
		cursors = make([]uint32, total+1)
		for i := 0; i <= ln; i++ {
			cursors[i] = left.Cursor(i)
		}
		for i := 0; i <= rn; i++ {
			cursors[ln+1+i] = right.Cursor(i)
		}
	}

	for i := 0; i < newLeftN; i++ {
		left.SetKey(i, keys[i])
	}
	left.SetKeysCount(newLeftN)

	rightStart := newLeftN
	if !router {
		rightStart = newLeftN + 1
	}
	for i := 0; i < newRightN; i++ {
		right.SetKey(i, keys[rightStart+i])
	}
	right.SetKeysCount(newRightN)

	if !leaf {
		for i := 0; i <= newLeftN; i++ {
			left.SetCursor(i, cursors[i])
		}
		for i := 0; i <= newRightN; i++ {
			right.SetCursor(i, cursors[rightStart+i])
		}
	}

	if router {
		parent.SetKey(sepIdx, left.Key(newLeftN-1))
	} else {
		parent.SetKey(sepIdx, keys[newLeftN])
	}

	if err := t.storePage(leftNum, left); err != nil {
		return false, err
	}
	if err := t.storePage(rightNum, right); err != nil {
		return false, err
	}
	if err := t.storePage(parentNum, parent); err != nil {
		return false, err
	}
	return true, nil
}

// split23 merges left, parent's separator at leftIdx, and right into a
// flat buffer, then redistributes it into three pages of sizes
// (leftSplit, middleSplit, rightSplit) per §4.2.3, pushing the two new
// separators up into parent. When only one of left/right was actually
// full, rightSplit is undersized by one relative to what's actually
// available (the spec's shortRightSplit exists for exactly this case);
// distributeSplit corrects the three sizes to fit whatever total showed
// up while keeping every product within [minKeys,maxKeys]. When even
// that isn't enough room for three pages (the smallest legal orders,
// where a bare-minimum sibling plus a full child don't add up to three
// minKeys-sized products), split2 falls back to a plain two-way
// rebalance instead of fabricating an undersized third page. For B*+
// leaves the separators are routers (copies of each left sibling's
// last key) rather than independently stored keys, per §4.2.4.
func (t *Tree) split23(parentNum uint32, parent *page.Page, leftIdx int, leftNum uint32, left *page.Page, rightNum uint32, right *page.Page) error {
	leaf := left.IsLeaf()
	router := leaf && t.kind.CopyUpLeaves()
	ln, rn := left.KeysCount(), right.KeysCount()
	minLeaf, maxLeaf := t.minKeysFor(leaf), t.maxKeysFor(leaf)
	bothFull := ln >= maxLeaf && rn >= maxLeaf

	var total int
	if router {
		total = ln + rn
	} else {
		total = ln + 1 + rn
	}

	keys := make([][]byte, total)
	if router {
		for i := 0; i < ln; i++ {
			keys[i] = append([]byte(nil), left.Key(i)...)
		}
		for i := 0; i < rn; i++ {
			keys[ln+i] = append([]byte(nil), right.Key(i)...)
		}
	} else {
		for i := 0; i < ln; i++ {
			keys[i] = append([]byte(nil), left.Key(i)...)
		}
		keys[ln] = append([]byte(nil), parent.Key(leftIdx)...)
		for i := 0; i < rn; i++ {
			keys[ln+1+i] = append([]byte(nil), right.Key(i)...)
		}
	}

	var cursors []uint32
	if !leaf {
		cursors = make([]uint32, total+1)
		for i := 0; i <= ln; i++ {
			cursors[i] = left.Cursor(i)
		}
		for i := 0; i <= rn; i++ {
			cursors[ln+1+i] = right.Cursor(i)
		}
	}

	sepSlots := 1
	if router {
		sepSlots = 0
	}
	available := total - 2*sepSlots

	if available < 3*minLeaf {
		return t.split2(parentNum, parent, leftIdx, leftNum, left, rightNum, right, leaf, router, keys, cursors, total-sepSlots, minLeaf, maxLeaf)
	}

	midTarget := t.sz.middleSplit
	if router && t.sz.middleLeafSplitProduct > 0 {
		midTarget = t.sz.middleLeafSplitProduct
	}
	rightTarget := t.sz.rightSplit
	if !bothFull {
		rightTarget = t.sz.shortRightSplit
	}
	sizes := distributeSplit(available, [3]int{t.sz.leftSplit, midTarget, rightTarget}, minLeaf, maxLeaf)
	leftN, midN, rightN := sizes[0], sizes[1], sizes[2]
	rightStart := leftN + sepSlots + midN + sepSlots

	for i := 0; i < leftN; i++ {
		left.SetKey(i, keys[i])
	}
	left.SetKeysCount(leftN)

	midNum, mid, err := t.newPage(leaf)
	if err != nil {
		return err
	}
	midStart := leftN + sepSlots
	for i := 0; i < midN; i++ {
		mid.SetKey(i, keys[midStart+i])
	}
	mid.SetKeysCount(midN)

	for i := 0; i < rightN; i++ {
		right.SetKey(i, keys[rightStart+i])
	}
	right.SetKeysCount(rightN)

	if !leaf {
		for i := 0; i <= leftN; i++ {
			left.SetCursor(i, cursors[i])
		}
		for i := 0; i <= midN; i++ {
			mid.SetCursor(i, cursors[midStart+i])
		}
		for i := 0; i <= rightN; i++ {
			right.SetCursor(i, cursors[rightStart+i])
		}
	}

	var sep1, sep2 []byte
	if router {
		sep1 = append([]byte(nil), left.Key(leftN-1)...)
		sep2 = append([]byte(nil), mid.Key(midN-1)...)
	} else {
		sep1 = keys[leftN]
		sep2 = keys[midStart+midN]
	}

	n := parent.KeysCount()
	for i := n - 1; i >= leftIdx+1; i-- {
		parent.SetKey(i+1, parent.Key(i))
	}
	parent.SetKey(leftIdx, sep1)
	parent.SetKey(leftIdx+1, sep2)

	for i := n; i >= leftIdx+2; i-- {
		parent.SetCursor(i+1, parent.Cursor(i))
	}
	parent.SetCursor(leftIdx+1, midNum)
	parent.SetCursor(leftIdx+2, rightNum)
	parent.SetKeysCount(n + 1)

	if err := t.storePage(leftNum, left); err != nil {
		return err
	}
	if err := t.storePage(midNum, mid); err != nil {
		return err
	}
	if err := t.storePage(rightNum, right); err != nil {
		return err
	}
	return t.storePage(parentNum, parent)
}

// split2 is the two-page fallback for split23: it fires only when the
// combined (left, separator, right) content doesn't hold enough keys to
// keep all three 2-to-3 split products at or above minKeys — reachable
// only at the smallest legal star orders, where a full child plus a
// bare-minimum sibling fall short of 3*minKeys. It rebalances left and
// right directly across a single separator instead of manufacturing an
// undersized third page, landing left strictly below maxKeys so the
// pending insert that triggered the overflow has room.
func (t *Tree) split2(parentNum uint32, parent *page.Page, leftIdx int, leftNum uint32, left *page.Page, rightNum uint32, right *page.Page, leaf, router bool, keys [][]byte, cursors []uint32, available, minLeaf, maxLeaf int) error {
	leftN := available / 2
	if leftN > maxLeaf-1 {
		leftN = maxLeaf - 1
	}
	if leftN < minLeaf {
		leftN = minLeaf
	}
	rightN := available - leftN
	if rightN > maxLeaf {
		rightN = maxLeaf
		leftN = available - rightN
	}
	if rightN < minLeaf {
		rightN = minLeaf
		leftN = available - rightN
	}

	sepSlots := 1
	if router {
		sepSlots = 0
	}
	rightStart := leftN + sepSlots

	for i := 0; i < leftN; i++ {
		left.SetKey(i, keys[i])
	}
	left.SetKeysCount(leftN)
	for i := 0; i < rightN; i++ {
		right.SetKey(i, keys[rightStart+i])
	}
	right.SetKeysCount(rightN)

	if !leaf {
		for i := 0; i <= leftN; i++ {
			left.SetCursor(i, cursors[i])
		}
		for i := 0; i <= rightN; i++ {
			right.SetCursor(i, cursors[rightStart+i])
		}
	}

	var sep []byte
	if router {
		sep = append([]byte(nil), left.Key(leftN-1)...)
	} else {
		sep = keys[leftN]
	}
	parent.SetKey(leftIdx, sep)

	if err := t.storePage(leftNum, left); err != nil {
		return err
	}
	if err := t.storePage(rightNum, right); err != nil {
		return err
	}
	return t.storePage(parentNum, parent)
}

// distributeSplit nudges targets into three sizes that sum exactly to
// available while respecting [min,max] wherever the arithmetic permits,
// preferring to keep each size close to its target. Called only when
// available >= 3*min, so growing/shrinking to match always succeeds.
func distributeSplit(available int, targets [3]int, min, max int) [3]int {
	sizes := targets
	for i := range sizes {
		if sizes[i] < min {
			sizes[i] = min
		}
		if sizes[i] > max {
			sizes[i] = max
		}
	}
	sum := sizes[0] + sizes[1] + sizes[2]
	for sum < available {
		grew := false
		for i := range sizes {
			if sizes[i] < max {
				sizes[i]++
				sum++
				grew = true
				if sum == available {
					break
				}
			}
		}
		if !grew {
			break
		}
	}
	for sum > available {
		shrank := false
		for i := range sizes {
			if sizes[i] > min {
				sizes[i]--
				sum--
				shrank = true
				if sum == available {
					break
				}
			}
		}
		if !shrank {
			break
		}
	}
	return sizes
}

// splitRootStar splits an overflowing B*/B*+ root by the standard
// 2-way split of §4.2.1, sized off minKeys rather than a proportional
// midpoint: root overflow is only ever caught at exactly n ==
// maxRootKeys == 2*minKeys+1, so a minKeys/separator/minKeys split
// always lands both resulting (now non-root) children exactly at the
// floor. For B*+ (kind.CopyUpLeaves()), the separator promoted into the
// new root is a copy of the left child's last key rather than a key
// removed from it, mirroring splitChild's leaf-router branch
// (insert.go) — without this the median would become unreachable via
// Search/SearchAll, since search.go only accepts leaf-level equality
// matches for copy-up kinds.
func (t *Tree) splitRootStar() error {
	oldNum := t.rootNum
	old, err := t.loadRoot()
	if err != nil {
		return err
	}
	leaf := old.IsLeaf()
	n := old.KeysCount()
	router := leaf && t.kind.CopyUpLeaves()
	minKeys := t.minKeysFor(leaf)

	rightNum, right, err := t.newPage(leaf)
	if err != nil {
		return err
	}

	var medianKey []byte
	if router {
		left := minKeys + 1
		right.CopyKeysFrom(0, old, left, n-left)
		right.SetKeysCount(n - left)
		medianKey = append([]byte(nil), old.Key(left-1)...)
		old.SetKeysCount(left)
	} else {
		left := minKeys
		right.CopyKeysFrom(0, old, left+1, n-left-1)
		right.SetKeysCount(n - left - 1)
		if !leaf {
			right.CopyCursorsFrom(0, old, left+1, n-left)
		}
		medianKey = append([]byte(nil), old.Key(left)...)
		old.SetKeysCount(left)
	}
	if err := t.storePage(oldNum, old); err != nil {
		return err
	}
	if err := t.storePage(rightNum, right); err != nil {
		return err
	}

	newRootNum, newRoot, err := t.newPage(false)
	if err != nil {
		return err
	}
	newRoot.SetKey(0, medianKey)
	newRoot.SetCursor(0, oldNum)
	newRoot.SetCursor(1, rightNum)
	newRoot.SetKeysCount(1)
	if err := t.storePage(newRootNum, newRoot); err != nil {
		return err
	}
	return t.setRoot(newRootNum, newRoot)
}
