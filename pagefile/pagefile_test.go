package pagefile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mtreefile/mtree/mtreeerr"
)

func TestCreateAllocWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.idx")
	pf, err := Create(path, 4, 8, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer pf.Close()

	num, buf, err := pf.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if num != 1 {
		t.Fatalf("first page number = %d, want 1", num)
	}
	copy(buf, bytes.Repeat([]byte{0x42}, len(buf)))
	if err := pf.WritePage(num, buf); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	out := make([]byte, pf.PageSize())
	if err := pf.ReadPage(num, out); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(out, buf) {
		t.Fatal("read back data does not match what was written")
	}
}

func TestAllocAppendsThenReusesFreedPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.idx")
	pf, err := Create(path, 4, 8, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer pf.Close()

	p1, _, err := pf.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage 1: %v", err)
	}
	p2, _, err := pf.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage 2: %v", err)
	}
	if p1 == p2 {
		t.Fatal("two live allocations returned the same page number")
	}

	if err := pf.FreePage(p1); err != nil {
		t.Fatalf("FreePage: %v", err)
	}
	if pf.FreePageCount() != 1 {
		t.Fatalf("FreePageCount() = %d, want 1", pf.FreePageCount())
	}

	p3, _, err := pf.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage 3: %v", err)
	}
	if p3 != p1 {
		t.Fatalf("expected the freed page %d to be reused, got %d", p1, p3)
	}
	if pf.FreePageCount() != 0 {
		t.Fatalf("FreePageCount() after reuse = %d, want 0", pf.FreePageCount())
	}
	if pf.LastPageNum() != 2 {
		t.Fatalf("LastPageNum() = %d, want 2 (no append should have happened)", pf.LastPageNum())
	}
}

func TestFreePageRejectsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.idx")
	pf, err := Create(path, 4, 8, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer pf.Close()

	if _, _, err := pf.AllocPage(); err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if err := pf.FreePage(99); !errors.Is(err, mtreeerr.ErrMisuse) {
		t.Fatalf("FreePage(99) error = %v, want ErrMisuse", err)
	}
}

func TestReadHeaderRejectsBadSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.idx")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, 32), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := ReadHeader(path); !errors.Is(err, mtreeerr.ErrCorruption) {
		t.Fatalf("ReadHeader error = %v, want ErrCorruption", err)
	}
}

func TestReadReflectsLatestWriteDespiteCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.idx")
	pf, err := Create(path, 4, 8, 32)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer pf.Close()

	num, buf, err := pf.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	copy(buf, bytes.Repeat([]byte{0x01}, len(buf)))
	if err := pf.WritePage(num, buf); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	out := make([]byte, pf.PageSize())
	if err := pf.ReadPage(num, out); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(out, buf) {
		t.Fatal("first read-after-write mismatch")
	}

	copy(buf, bytes.Repeat([]byte{0x02}, len(buf)))
	if err := pf.WritePage(num, buf); err != nil {
		t.Fatalf("WritePage (update): %v", err)
	}
	if err := pf.ReadPage(num, out); err != nil {
		t.Fatalf("ReadPage (after update): %v", err)
	}
	if !bytes.Equal(out, buf) {
		t.Fatal("cached read served stale data after an update")
	}
}

func TestCreateOpenRoundTripsRootPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.idx")
	pf, err := Create(path, 4, 8, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	num, _, err := pf.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if err := pf.SetRootPageNum(num); err != nil {
		t.Fatalf("SetRootPageNum: %v", err)
	}
	pf.Close()

	f, hdr, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.RootPageNum != num {
		t.Fatalf("RootPageNum = %d, want %d", hdr.RootPageNum, num)
	}
	reopened, err := Attach(f, hdr, 64)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer reopened.Close()
	if reopened.LastPageNum() != 1 {
		t.Fatalf("LastPageNum() = %d, want 1", reopened.LastPageNum())
	}
}
