package pager

import (
	"path/filepath"
	"testing"
)

func TestOpenEmptyFile(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p.Size() != 0 {
		t.Fatalf("expected size 0, got %d", p.Size())
	}
}

func TestGetMutPastEndOfFileZeroesAndExtends(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	page, err := p.GetMut(3)
	if err != nil {
		t.Fatalf("GetMut: %v", err)
	}
	for _, b := range page {
		if b != 0 {
			t.Fatalf("expected all-zero page")
		}
	}
	if p.Size() != 4 {
		t.Fatalf("expected size 4 after materializing page 3, got %d", p.Size())
	}
}

func TestPushAndPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var page Page
	page[0] = 0xAB
	idx := p.Push(&page)
	if idx != 0 {
		t.Fatalf("expected first pushed page at index 0, got %d", idx)
	}
	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if p2.Size() != 1 {
		t.Fatalf("expected reopened size 1, got %d", p2.Size())
	}
	got, err := p2.GetRef(0)
	if err != nil {
		t.Fatalf("GetRef: %v", err)
	}
	if got[0] != 0xAB {
		t.Fatalf("expected persisted byte 0xAB, got 0x%x", got[0])
	}
}

func TestSwapReturnsPreviousContents(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var first Page
	first[0] = 1
	p.Push(&first)

	var second Page
	second[0] = 2
	old, err := p.Swap(0, &second)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if old[0] != 1 {
		t.Fatalf("expected old contents byte 1, got %d", old[0])
	}
	cur, err := p.GetRef(0)
	if err != nil {
		t.Fatalf("GetRef: %v", err)
	}
	if cur[0] != 2 {
		t.Fatalf("expected current contents byte 2, got %d", cur[0])
	}
}

func TestSaveWithoutFlushLosesMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var page Page
	page[0] = 9
	p.Push(&page)
	// No Save(): close the file descriptor directly to simulate a crash
	// without the explicit flush the spec requires for durability.
	p.file.Close()

	p2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if p2.Size() != 0 {
		t.Fatalf("expected unflushed mutation to be absent, got size %d", p2.Size())
	}
}
