package btree

import (
	"bytes"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mtreefile/mtree/compare"
)

func key(n int) []byte {
	return []byte(fmt.Sprintf("%08d", n))
}

func newTree(t *testing.T, kind Kind, order int) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.idx")
	tr, err := Create(kind, order, 8, path, compare.Bytes)
	if err != nil {
		t.Fatalf("Create(%v): %v", kind, err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

var allKinds = []Kind{KindB, KindBPlus, KindBStar, KindBStarPlus}

func orderFor(kind Kind) int {
	if kind.IsStar() {
		return 4
	}
	return 3
}

func TestInsertAndSearchEachKind(t *testing.T) {
	for _, kind := range allKinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			tr := newTree(t, kind, orderFor(kind))
			const n = 300
			perm := rand.New(rand.NewSource(1)).Perm(n)
			for _, v := range perm {
				if err := tr.Insert(key(v)); err != nil {
					t.Fatalf("Insert(%d): %v", v, err)
				}
			}
			for v := 0; v < n; v++ {
				got, err := tr.Search(key(v))
				if err != nil {
					t.Fatalf("Search(%d): %v", v, err)
				}
				if !bytes.Equal(got, key(v)) {
					t.Fatalf("Search(%d) = %q, want %q", v, got, key(v))
				}
			}
			if got, _ := tr.Search(key(n + 1000)); got != nil {
				t.Fatalf("Search of absent key returned %q, want nil", got)
			}
		})
	}
}

func TestSearchAllFindsDuplicates(t *testing.T) {
	for _, kind := range allKinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			tr := newTree(t, kind, orderFor(kind))
			for i := 0; i < 5; i++ {
				if err := tr.Insert(key(42)); err != nil {
					t.Fatalf("Insert dup %d: %v", i, err)
				}
			}
			for _, v := range []int{1, 2, 3, 100, 101} {
				if err := tr.Insert(key(v)); err != nil {
					t.Fatalf("Insert(%d): %v", v, err)
				}
			}
			got, err := tr.SearchAll(key(42))
			if err != nil {
				t.Fatalf("SearchAll: %v", err)
			}
			if len(got) != 5 {
				t.Fatalf("SearchAll found %d occurrences, want 5", len(got))
			}
			for _, g := range got {
				if !bytes.Equal(g, key(42)) {
					t.Fatalf("SearchAll returned %q, want %q", g, key(42))
				}
			}
		})
	}
}

func TestInsertOrderIsPreserved(t *testing.T) {
	for _, kind := range allKinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			tr := newTree(t, kind, orderFor(kind))
			values := rand.New(rand.NewSource(2)).Perm(200)
			for _, v := range values {
				if err := tr.Insert(key(v)); err != nil {
					t.Fatalf("Insert: %v", err)
				}
			}

			var inOrder [][]byte
			err := tr.Walk(func(n NodeInfo) error {
				for i := 1; i < len(n.Keys); i++ {
					if bytes.Compare(n.Keys[i-1], n.Keys[i]) > 0 {
						return fmt.Errorf("page %d keys out of order at index %d", n.PageNum, i)
					}
				}
				if n.Leaf || !kind.CopyUpLeaves() {
					inOrder = append(inOrder, n.Keys...)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Walk: %v", err)
			}
			// Keys collected in pre-order walk aren't globally sorted by
			// page-visit order, but every individual page's own keys must be
			// sorted, and the set of stored keys (leaf keys for copy-up
			// variants, every page's keys for B/B*, whose separators are
			// promoted out of the leaves) must equal the inserted set.
			seen := make(map[string]bool)
			for _, k := range inOrder {
				seen[string(k)] = true
			}
			if len(seen) != len(values) {
				t.Fatalf("tree holds %d distinct keys, want %d", len(seen), len(values))
			}
			for _, v := range values {
				if !seen[string(key(v))] {
					t.Fatalf("missing key %d from tree", v)
				}
			}
		})
	}
}

func TestRemoveAndSearchAgree(t *testing.T) {
	for _, kind := range allKinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			tr := newTree(t, kind, orderFor(kind))
			const n = 400
			values := rand.New(rand.NewSource(3)).Perm(n)
			for _, v := range values {
				if err := tr.Insert(key(v)); err != nil {
					t.Fatalf("Insert: %v", err)
				}
			}

			toRemove := values[:n/2]
			remaining := make(map[int]bool)
			for _, v := range values[n/2:] {
				remaining[v] = true
			}

			for _, v := range toRemove {
				removed, err := tr.Remove(key(v))
				if err != nil {
					t.Fatalf("Remove(%d): %v", v, err)
				}
				if !removed {
					t.Fatalf("Remove(%d) reported not found", v)
				}
			}

			for _, v := range toRemove {
				if got, err := tr.Search(key(v)); err != nil || got != nil {
					t.Fatalf("removed key %d still found (got=%q err=%v)", v, got, err)
				}
			}
			for v := range remaining {
				got, err := tr.Search(key(v))
				if err != nil {
					t.Fatalf("Search(%d) after removals: %v", v, err)
				}
				if !bytes.Equal(got, key(v)) {
					t.Fatalf("surviving key %d not found after removals", v)
				}
			}
		})
	}
}

func TestRemoveAllCountsEveryOccurrence(t *testing.T) {
	for _, kind := range allKinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			tr := newTree(t, kind, orderFor(kind))
			for i := 0; i < 7; i++ {
				if err := tr.Insert(key(9)); err != nil {
					t.Fatalf("Insert dup: %v", err)
				}
			}
			if err := tr.Insert(key(1)); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			count, err := tr.RemoveAll(key(9))
			if err != nil {
				t.Fatalf("RemoveAll: %v", err)
			}
			if count != 7 {
				t.Fatalf("RemoveAll removed %d, want 7", count)
			}
			if got, err := tr.Search(key(9)); err != nil || got != nil {
				t.Fatalf("key 9 still present after RemoveAll")
			}
			if got, err := tr.Search(key(1)); err != nil || !bytes.Equal(got, key(1)) {
				t.Fatalf("unrelated key 1 lost during RemoveAll")
			}
		})
	}
}

func TestRemoveNonexistentKeyIsNoop(t *testing.T) {
	tr := newTree(t, KindB, 3)
	if err := tr.Insert(key(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	removed, err := tr.Remove(key(999))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Fatal("Remove reported success for an absent key")
	}
}

func TestMinMaxKeysRespectedAcrossChurn(t *testing.T) {
	for _, kind := range allKinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			tr := newTree(t, kind, orderFor(kind))
			rng := rand.New(rand.NewSource(4))
			present := make(map[int]bool)

			for round := 0; round < 600; round++ {
				v := rng.Intn(150)
				if present[v] {
					if _, err := tr.Remove(key(v)); err != nil {
						t.Fatalf("Remove(%d): %v", v, err)
					}
					present[v] = false
				} else {
					if err := tr.Insert(key(v)); err != nil {
						t.Fatalf("Insert(%d): %v", v, err)
					}
					present[v] = true
				}
			}

			err := tr.Walk(func(n NodeInfo) error {
				isRoot := uint32(n.PageNum) == tr.rootNum
				if isRoot {
					return nil // root has no minimum occupancy
				}
				min := tr.minKeysFor(n.Leaf)
				if len(n.Keys) < min {
					return fmt.Errorf("page %d has %d keys, below minimum %d", n.PageNum, len(n.Keys), min)
				}
				max := tr.maxKeysFor(n.Leaf)
				if len(n.Keys) > max {
					return fmt.Errorf("page %d has %d keys, above maximum %d", n.PageNum, len(n.Keys), max)
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}

			var want []int
			for v, ok := range present {
				if ok {
					want = append(want, v)
				}
			}
			sort.Ints(want)
			for _, v := range want {
				got, err := tr.Search(key(v))
				if err != nil || !bytes.Equal(got, key(v)) {
					t.Fatalf("key %d missing after churn", v)
				}
			}
		})
	}
}

func TestCloseAndReopenPreservesTree(t *testing.T) {
	for _, kind := range allKinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "t.idx")
			order := orderFor(kind)
			tr, err := Create(kind, order, 8, path, compare.Bytes)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			for _, v := range rand.New(rand.NewSource(5)).Perm(120) {
				if err := tr.Insert(key(v)); err != nil {
					t.Fatalf("Insert: %v", err)
				}
			}
			if err := tr.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			reopened, err := Open(kind, path, compare.Bytes)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer reopened.Close()
			for v := 0; v < 120; v++ {
				got, err := reopened.Search(key(v))
				if err != nil || !bytes.Equal(got, key(v)) {
					t.Fatalf("key %d missing after reopen", v)
				}
			}
		})
	}
}

func TestInsertRejectsWrongKeyLength(t *testing.T) {
	tr := newTree(t, KindB, 3)
	if err := tr.Insert([]byte("short")); err == nil {
		t.Fatal("expected error for wrong-length key")
	}
}

func intKey(v int32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// TestScenarioBInsertOneToTen is spec §8 concrete scenario 1: B, t=2,
// insert 1..10 in order, then search 7.
func TestScenarioBInsertOneToTen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.idx")
	tr, err := Create(KindB, 2, 4, path, compare.BigEndianInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()

	for v := int32(1); v <= 10; v++ {
		if err := tr.Insert(intKey(v)); err != nil {
			t.Fatalf("Insert(%d): %v", v, err)
		}
	}
	got, err := tr.Search(intKey(7))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !bytes.Equal(got, intKey(7)) {
		t.Fatalf("Search(7) = %v, want 7", got)
	}
	if tr.MaxSearchDepth() > 4 {
		t.Fatalf("MaxSearchDepth() = %d, want <= 4", tr.MaxSearchDepth())
	}
}

// TestScenarioBPlusRemoveAllOfFive is spec §8 concrete scenario 2: B+,
// t=3, insert {5,3,8,1,4,7,9,2,6,10}, then removeAll(5).
func TestScenarioBPlusRemoveAllOfFive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.idx")
	tr, err := Create(KindBPlus, 3, 4, path, compare.BigEndianInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()

	for _, v := range []int32{5, 3, 8, 1, 4, 7, 9, 2, 6, 10} {
		if err := tr.Insert(intKey(v)); err != nil {
			t.Fatalf("Insert(%d): %v", v, err)
		}
	}
	count, err := tr.RemoveAll(intKey(5))
	if err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if count != 1 {
		t.Fatalf("RemoveAll(5) = %d, want 1", count)
	}
	if got, _ := tr.Search(intKey(5)); got != nil {
		t.Fatal("5 still found after removeAll")
	}

	var inOrder [][]byte
	if err := tr.Walk(func(n NodeInfo) error {
		if n.Leaf {
			inOrder = append(inOrder, n.Keys...)
		}
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	sort.Slice(inOrder, func(i, j int) bool { return compare.BigEndianInt.Less(inOrder[i], inOrder[j]) })
	want := []int32{1, 2, 3, 4, 6, 7, 8, 9, 10}
	if len(inOrder) != len(want) {
		t.Fatalf("in-order has %d keys, want %d", len(inOrder), len(want))
	}
	for i, w := range want {
		if !bytes.Equal(inOrder[i], intKey(w)) {
			t.Fatalf("in-order[%d] = %v, want %d", i, inOrder[i], w)
		}
	}
}

// TestScenarioBStarOccupancyFloor is spec §8 concrete scenario 3: B*,
// t=4, insert 1..100 in order; every non-root page has >= ceil(6/3)=2
// keys, and the root has <= 2*2+1=5 keys.
func TestScenarioBStarOccupancyFloor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.idx")
	tr, err := Create(KindBStar, 4, 4, path, compare.BigEndianInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()

	for v := int32(1); v <= 100; v++ {
		if err := tr.Insert(intKey(v)); err != nil {
			t.Fatalf("Insert(%d): %v", v, err)
		}
	}

	err = tr.Walk(func(n NodeInfo) error {
		isRoot := n.PageNum == tr.rootNum
		if isRoot {
			if len(n.Keys) > 5 {
				return fmt.Errorf("root has %d keys, want <= 5", len(n.Keys))
			}
			return nil
		}
		if len(n.Keys) < 2 {
			return fmt.Errorf("page %d has %d keys, below floor of 2", n.PageNum, len(n.Keys))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestRouterInvariant checks spec §8 invariant 4 for the copy-up-leaf
// variants (B+, B*+): every key in an internal routing position equals
// the maximum key of the leaf subtree rooted at the same cursor index.
func TestRouterInvariant(t *testing.T) {
	for _, kind := range []Kind{KindBPlus, KindBStarPlus} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			tr := newTree(t, kind, orderFor(kind))
			for _, v := range rand.New(rand.NewSource(6)).Perm(250) {
				if err := tr.Insert(key(v)); err != nil {
					t.Fatalf("Insert: %v", err)
				}
			}

			var walk func(num uint32) ([]byte, error)
			walk = func(num uint32) ([]byte, error) {
				p, err := tr.loadPage(num)
				if err != nil {
					return nil, err
				}
				n := p.KeysCount()
				if p.IsLeaf() {
					if n == 0 {
						return nil, nil
					}
					return append([]byte(nil), p.Key(n-1)...), nil
				}
				var last []byte
				for i := 0; i <= n; i++ {
					childNum := p.Cursor(i)
					if childNum == 0 {
						continue
					}
					m, err := walk(childNum)
					if err != nil {
						return nil, err
					}
					if m != nil {
						last = m
					}
					if i < n {
						if !bytes.Equal(p.Key(i), m) {
							t.Fatalf("router at page %d index %d = %q, want max of left subtree %q", num, i, p.Key(i), m)
						}
					}
				}
				return last, nil
			}
			if _, err := walk(tr.rootNum); err != nil {
				t.Fatalf("walk: %v", err)
			}
		})
	}
}
