package btree

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/pkg/pager"
)

func newTestTree(t *testing.T, layout Layout) *Tree {
	t.Helper()
	p, err := pager.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	tr, err := Create(p, layout, "test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tr
}

func key(i int) []byte { return []byte(fmt.Sprintf("key-%06d", i)) }
func val(i int) []byte { return []byte(fmt.Sprintf("val-%06d", i)) }

func TestInsertFindRoundTrip(t *testing.T) {
	tr := newTestTree(t, Layout{})
	const n = 500
	for i := 0; i < n; i++ {
		if err := tr.Insert(key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		c, found, err := tr.Find(key(i))
		if err != nil {
			t.Fatalf("Find(%d): %v", i, err)
		}
		if !found {
			t.Fatalf("Find(%d): not found", i)
		}
		e, ok, err := tr.CursorGet(c)
		if err != nil || !ok {
			t.Fatalf("CursorGet(%d): ok=%v err=%v", i, ok, err)
		}
		if string(e.Val) != string(val(i)) {
			t.Fatalf("key %d: got val %q, want %q", i, e.Val, val(i))
		}
	}
}

func TestOrderedIteration(t *testing.T) {
	tr := newTestTree(t, Layout{})
	const n = 200
	order := rand.New(rand.NewSource(1)).Perm(n)
	for _, i := range order {
		if err := tr.Insert(key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	c, err := tr.FirstCursor()
	if err != nil {
		t.Fatalf("FirstCursor: %v", err)
	}
	count := 0
	for {
		e, ok, err := tr.CursorGet(c)
		if err != nil {
			t.Fatalf("CursorGet: %v", err)
		}
		if !ok {
			break
		}
		if string(e.Key) != string(key(count)) {
			t.Fatalf("position %d: got key %q, want %q", count, e.Key, key(count))
		}
		count++
		c, err = tr.CursorNext(c)
		if err != nil {
			t.Fatalf("CursorNext: %v", err)
		}
	}
	if count != n {
		t.Fatalf("iterated %d entries, want %d", count, n)
	}
}

func TestDeleteThenScanIsEmpty(t *testing.T) {
	tr := newTestTree(t, Layout{})
	const n = 200
	order := rand.New(rand.NewSource(2)).Perm(n)
	for _, i := range order {
		if err := tr.Insert(key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	delOrder := rand.New(rand.NewSource(3)).Perm(n)
	for _, i := range delOrder {
		c, found, err := tr.Find(key(i))
		if err != nil || !found {
			t.Fatalf("Find(%d) before delete: found=%v err=%v", i, found, err)
		}
		if _, err := tr.CursorDelete(c); err != nil {
			t.Fatalf("CursorDelete(%d): %v", i, err)
		}
	}

	c, err := tr.FirstCursor()
	if err != nil {
		t.Fatalf("FirstCursor: %v", err)
	}
	end, err := tr.CursorIsEnd(c)
	if err != nil {
		t.Fatalf("CursorIsEnd: %v", err)
	}
	if !end {
		t.Fatalf("expected empty tree after deleting all keys")
	}
}

func TestDeletePreservesRemainingOrder(t *testing.T) {
	tr := newTestTree(t, Layout{})
	const n = 100
	for i := 0; i < n; i++ {
		if err := tr.Insert(key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	// delete every even key
	for i := 0; i < n; i += 2 {
		c, found, err := tr.Find(key(i))
		if err != nil || !found {
			t.Fatalf("Find(%d): found=%v err=%v", i, found, err)
		}
		if _, err := tr.CursorDelete(c); err != nil {
			t.Fatalf("CursorDelete(%d): %v", i, err)
		}
	}

	c, err := tr.FirstCursor()
	if err != nil {
		t.Fatalf("FirstCursor: %v", err)
	}
	for i := 1; i < n; i += 2 {
		e, ok, err := tr.CursorGet(c)
		if err != nil || !ok {
			t.Fatalf("CursorGet at %d: ok=%v err=%v", i, ok, err)
		}
		if string(e.Key) != string(key(i)) {
			t.Fatalf("got key %q, want %q", e.Key, key(i))
		}
		c, err = tr.CursorNext(c)
		if err != nil {
			t.Fatalf("CursorNext: %v", err)
		}
	}
}

func TestInsertDuplicateKeyPanics(t *testing.T) {
	tr := newTestTree(t, Layout{})
	if err := tr.Insert(key(1), val(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate key insert")
		}
	}()
	tr.Insert(key(1), val(2))
}

func TestInsertOversizedKeyIsBadRequest(t *testing.T) {
	tr := newTestTree(t, Layout{})
	huge := make([]byte, PageSize*2)
	err := tr.Insert(huge, []byte("x"))
	if !dberr.Is(err, dberr.BadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestFixedWidthLayoutRoundTrip(t *testing.T) {
	tr := newTestTree(t, Layout{KeySize: 8, ValSize: 8})
	const n = 300
	fk := func(i int) []byte {
		b := make([]byte, 8)
		copy(b, fmt.Sprintf("%08d", i))
		return b
	}
	for i := 0; i < n; i++ {
		if err := tr.Insert(fk(i), fk(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		c, found, err := tr.Find(fk(i))
		if err != nil || !found {
			t.Fatalf("Find(%d): found=%v err=%v", i, found, err)
		}
		e, ok, err := tr.CursorGet(c)
		if err != nil || !ok {
			t.Fatalf("CursorGet(%d): ok=%v err=%v", i, ok, err)
		}
		if string(e.Val) != string(fk(i)) {
			t.Fatalf("key %d: got %q want %q", i, e.Val, fk(i))
		}
	}
}

func TestFindMissingKeyReturnsNextGreater(t *testing.T) {
	tr := newTestTree(t, Layout{})
	for _, i := range []int{0, 2, 4, 6, 8} {
		if err := tr.Insert(key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	c, found, err := tr.Find(key(3))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found {
		t.Fatalf("key 3 was never inserted, should not be found")
	}
	e, ok, err := tr.CursorGet(c)
	if err != nil || !ok {
		t.Fatalf("CursorGet: ok=%v err=%v", ok, err)
	}
	if string(e.Key) != string(key(4)) {
		t.Fatalf("got %q, want next greater key %q", e.Key, key(4))
	}
}
