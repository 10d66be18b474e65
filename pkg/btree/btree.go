// Package btree implements a generic ordered byte-string-to-byte-string
// map backed by pages allocated from a pager. It supports fixed or
// variable key and value widths, sibling links on leaves, and
// cursor-based iteration, with no rebalancing on delete.
package btree

import (
	"bytes"

	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/internal/logger"
	"github.com/nainya/reldb/internal/metrics"
	"github.com/nainya/reldb/pkg/pager"
)

// Tree is one B+Tree, rooted at a fixed page that never changes once
// created — splitting the root relocates its old contents to a new
// page and rewrites the root page in place as the new internal node,
// so callers never need to track a moving root index.
type Tree struct {
	pager   *pager.Pager
	root    uint32
	layout  Layout
	log     *logger.Logger
	metrics *metrics.Metrics
	name    string // for metrics/log labeling only
}

// Create allocates a fresh empty leaf page and returns a Tree rooted
// there.
func Create(p *pager.Pager, layout Layout, name string) (*Tree, error) {
	t := &Tree{pager: p, layout: layout, log: logger.GetGlobalLogger().BTreeLogger(), name: name}
	root := Node{Leaf: true}
	page := &pager.Page{}
	if err := Encode(page, root, layout); err != nil {
		return nil, err
	}
	t.root = uint32(p.Push(page))
	return t, nil
}

// Open wraps an existing tree rooted at root.
func Open(p *pager.Pager, root uint32, layout Layout, name string) *Tree {
	return &Tree{pager: p, root: root, layout: layout, log: logger.GetGlobalLogger().BTreeLogger(), name: name}
}

// SetMetrics attaches a metrics sink.
func (t *Tree) SetMetrics(m *metrics.Metrics) {
	t.metrics = m
}

// Root returns the tree's fixed root page index.
func (t *Tree) Root() uint32 { return t.root }

func (t *Tree) getNode(page uint32) (Node, error) {
	buf, err := t.pager.GetRef(int(page))
	if err != nil {
		return Node{}, err
	}
	return Decode(buf, t.layout)
}

func (t *Tree) putNode(page uint32, node Node) error {
	buf, err := t.pager.GetMut(int(page))
	if err != nil {
		return err
	}
	return Encode(buf, node, t.layout)
}

func (t *Tree) newPage() uint32 {
	return uint32(t.pager.Push(&pager.Page{}))
}

func keyLess(a, b []byte) bool { return bytes.Compare(a, b) < 0 }

// findChildIndex returns the index of the child to descend into for
// key, under the fixed ">= pivot goes right" convention: the last entry
// whose key is <= key, or entry 0 when no entry is. Entry 0's key is
// the smallest key its child held when the entry was created; keys
// below it that are inserted later also route to entry 0.
func findChildIndex(node Node, key []byte) int {
	found := 0
	for i := 1; i < len(node.Entries); i++ {
		if bytes.Compare(node.Entries[i].Key, key) <= 0 {
			found = i
		} else {
			break
		}
	}
	return found
}

// leafFindPos returns the position of the first entry with key >= key,
// and whether that entry's key equals key exactly.
func leafFindPos(node Node, key []byte) (int, bool) {
	for i, e := range node.Entries {
		c := bytes.Compare(e.Key, key)
		if c == 0 {
			return i, true
		}
		if c > 0 {
			return i, false
		}
	}
	return len(node.Entries), false
}

// insertPosGE is leafFindPos without the equality report, used for
// sorted insertion into an internal node's entry list.
func insertPosGE(entries []Entry, key []byte) int {
	for i, e := range entries {
		if bytes.Compare(e.Key, key) >= 0 {
			return i
		}
	}
	return len(entries)
}

func insertAtPos(entries []Entry, pos int, e Entry) []Entry {
	out := make([]Entry, 0, len(entries)+1)
	out = append(out, entries[:pos]...)
	out = append(out, e)
	out = append(out, entries[pos:]...)
	return out
}

// choosePivot picks a split point near the middle, adjusted so that
// entries sharing the pivot's key are not split across siblings: it
// scans left from the midpoint while the neighbor key equals the
// candidate pivot key.
func choosePivot(entries []Entry) int {
	n := len(entries)
	pivot := n / 2
	for pivot > 0 && bytes.Equal(entries[pivot-1].Key, entries[pivot].Key) {
		pivot--
	}
	if pivot == 0 {
		pivot = 1
	}
	if pivot > n-1 {
		pivot = n - 1
	}
	return pivot
}

// Find descends from the root to locate key, returning a cursor at the
// first entry with key' >= key and whether that entry's key equals key
// exactly. If no such entry exists anywhere in the tree, the cursor is
// the End cursor.
func (t *Tree) Find(key []byte) (Cursor, bool, error) {
	page := t.root
	for {
		node, err := t.getNode(page)
		if err != nil {
			return Cursor{}, false, err
		}
		if node.Leaf {
			break
		}
		idx := findChildIndex(node, key)
		page = node.Entries[idx].childPage()
	}
	for {
		node, err := t.getNode(page)
		if err != nil {
			return Cursor{}, false, err
		}
		pos, found := leafFindPos(node, key)
		if pos < len(node.Entries) {
			return Cursor{Page: page, Pos: pos}, found, nil
		}
		if node.Next == 0 {
			return Cursor{End: true}, false, nil
		}
		page = node.Next
	}
}

// FirstCursor descends leftmost to the first leaf and returns the first
// occupied position, skipping empty leaves via CursorNextOccupied; it
// returns the End cursor when the tree holds no entries.
func (t *Tree) FirstCursor() (Cursor, error) {
	page := t.root
	for {
		node, err := t.getNode(page)
		if err != nil {
			return Cursor{}, err
		}
		if node.Leaf {
			c := Cursor{Page: page, Pos: 0}
			return t.CursorNextOccupied(c)
		}
		page = node.Entries[0].childPage()
	}
}

// CursorGet reads the entry at cursor, first normalizing to the next
// occupied position.
func (t *Tree) CursorGet(cursor Cursor) (Entry, bool, error) {
	cursor, err := t.CursorNextOccupied(cursor)
	if err != nil {
		return Entry{}, false, err
	}
	if cursor.End {
		return Entry{}, false, nil
	}
	node, err := t.getNode(cursor.Page)
	if err != nil {
		return Entry{}, false, err
	}
	if cursor.Pos >= len(node.Entries) {
		return Entry{}, false, nil
	}
	return node.Entries[cursor.Pos], true, nil
}

// CursorNext advances the in-leaf position by one, then normalizes to
// the next occupied slot via CursorNextOccupied.
func (t *Tree) CursorNext(cursor Cursor) (Cursor, error) {
	if cursor.End {
		return cursor, nil
	}
	cursor.Pos++
	return t.CursorNextOccupied(cursor)
}

// CursorNextOccupied advances past exhausted leaves until landing on an
// occupied slot or the end.
func (t *Tree) CursorNextOccupied(cursor Cursor) (Cursor, error) {
	if cursor.End {
		return cursor, nil
	}
	node, err := t.getNode(cursor.Page)
	if err != nil {
		return Cursor{}, err
	}
	if cursor.Pos < len(node.Entries) {
		return cursor, nil
	}
	if node.Next == 0 {
		return Cursor{End: true}, nil
	}
	page := node.Next
	for {
		next, err := t.getNode(page)
		if err != nil {
			return Cursor{}, err
		}
		if len(next.Entries) > 0 {
			return Cursor{Page: page, Pos: 0}, nil
		}
		if next.Next == 0 {
			return Cursor{End: true}, nil
		}
		page = next.Next
	}
}

// CursorIsEnd reports whether no subsequent occupied position exists.
func (t *Tree) CursorIsEnd(cursor Cursor) (bool, error) {
	c, err := t.CursorNextOccupied(cursor)
	if err != nil {
		return false, err
	}
	return c.End, nil
}

// CursorDelete removes the entry at cursor by shifting remaining
// entries left and decrementing the entry count, returning a cursor to
// the successor occupied position. Under-full leaves are not merged.
func (t *Tree) CursorDelete(cursor Cursor) (Cursor, error) {
	cursor, err := t.CursorNextOccupied(cursor)
	if err != nil {
		return Cursor{}, err
	}
	if cursor.End {
		return Cursor{}, dberr.New(dberr.Corruption, "btree.CursorDelete", "delete at end cursor")
	}
	node, err := t.getNode(cursor.Page)
	if err != nil {
		return Cursor{}, err
	}
	if cursor.Pos >= len(node.Entries) {
		return Cursor{}, dberr.New(dberr.Corruption, "btree.CursorDelete", "delete position out of range")
	}
	entries := make([]Entry, 0, len(node.Entries)-1)
	entries = append(entries, node.Entries[:cursor.Pos]...)
	entries = append(entries, node.Entries[cursor.Pos+1:]...)
	node.Entries = entries
	if err := t.putNode(cursor.Page, node); err != nil {
		return Cursor{}, err
	}
	return t.CursorNextOccupied(Cursor{Page: cursor.Page, Pos: cursor.Pos})
}

// Insert inserts key/value into the tree. Keys/values exceeding the
// page's usable capacity fail with BadRequest. Inserting a key equal to
// an existing one panics — callers must not insert a duplicate key
// into a unique index; see dberr-wrapped guard in the row store for the
// public, non-panicking boundary.
func (t *Tree) Insert(key, val []byte) error {
	if len(key) > PageSize-HeaderSize || len(val) > PageSize-HeaderSize {
		return dberr.New(dberr.BadRequest, "btree.Insert", "key or value exceeds page capacity")
	}
	return t.insertAt(t.root, key, val)
}

func (t *Tree) insertAt(page uint32, key, val []byte) error {
	node, err := t.getNode(page)
	if err != nil {
		return err
	}
	if !node.Leaf {
		idx := findChildIndex(node, key)
		return t.insertAt(node.Entries[idx].childPage(), key, val)
	}

	pos, found := leafFindPos(node, key)
	if found {
		panic("btree: duplicate key on insert")
	}
	entries := insertAtPos(node.Entries, pos, Entry{Key: key, Val: val})
	if Fits(entries, t.layout, true) {
		node.Entries = entries
		return t.putNode(page, node)
	}

	nextSibling := node.Next
	pivot := choosePivot(entries)
	leftEntries, rightEntries := entries[:pivot], entries[pivot:]
	pivotKey := rightEntries[0].Key

	rightPage := t.newPage()
	if t.metrics != nil {
		t.metrics.NodeSplitsTotal.Inc()
	}
	t.log.LogSplit(page, 0)

	if err := t.putNode(page, Node{Leaf: true, Parent: node.Parent, Next: rightPage, Entries: leftEntries}); err != nil {
		return err
	}
	if err := t.putNode(rightPage, Node{Leaf: true, Parent: node.Parent, Next: nextSibling, Entries: rightEntries}); err != nil {
		return err
	}
	return t.insertNode(page, pivotKey, rightPage)
}

// insertNode registers rightChild under key as a new sibling entry of
// childPage in childPage's parent, splitting and cascading upward as
// needed, and initializing a new root level if childPage had no
// parent. This is the direct translation of the reference btree trait's
// insert_node / reparent pair onto page-index storage.
func (t *Tree) insertNode(childPage uint32, key []byte, rightChild uint32) error {
	child, err := t.getNode(childPage)
	if err != nil {
		return err
	}

	if child.Parent == 0 && childPage != t.root {
		// unreachable under well-formed trees; defensive only
		return dberr.New(dberr.Corruption, "btree.insertNode", "non-root node with zero parent")
	}

	if childPage != t.root {
		return t.insertNodeWithParent(child.Parent, key, rightChild)
	}
	return t.insertNodeAtRoot(childPage, key, rightChild)
}

func (t *Tree) insertNodeWithParent(parentPage uint32, key []byte, rightChild uint32) error {
	parent, err := t.getNode(parentPage)
	if err != nil {
		return err
	}
	pos := insertPosGE(parent.Entries, key)
	entries := insertAtPos(parent.Entries, pos, childEntry(key, rightChild))

	if Fits(entries, t.layout, false) {
		parent.Entries = entries
		if err := t.putNode(parentPage, parent); err != nil {
			return err
		}
		return t.setParent(rightChild, parentPage)
	}

	pivot := choosePivot(entries)
	leftEntries, rightEntries := entries[:pivot], entries[pivot:]
	pivotKey := rightEntries[0].Key

	newParentPage := t.newPage()
	if t.metrics != nil {
		t.metrics.NodeSplitsTotal.Inc()
	}
	if err := t.putNode(parentPage, Node{Leaf: false, Parent: parent.Parent, Entries: leftEntries}); err != nil {
		return err
	}
	if err := t.putNode(newParentPage, Node{Leaf: false, Parent: parent.Parent, Entries: rightEntries}); err != nil {
		return err
	}

	if bytes.Compare(key, pivotKey) >= 0 {
		if err := t.setParent(rightChild, newParentPage); err != nil {
			return err
		}
	} else {
		if err := t.setParent(rightChild, parentPage); err != nil {
			return err
		}
	}

	if err := t.insertNode(parentPage, pivotKey, newParentPage); err != nil {
		return err
	}
	return t.reparentChildren(newParentPage)
}

func (t *Tree) insertNodeAtRoot(rootPage uint32, key []byte, rightChild uint32) error {
	oldRoot, err := t.getNode(rootPage)
	if err != nil {
		return err
	}
	movedPage := t.newPage()
	oldRoot.Parent = rootPage
	if err := t.putNode(movedPage, oldRoot); err != nil {
		return err
	}
	if err := t.setParent(rightChild, rootPage); err != nil {
		return err
	}

	firstKey := key
	if len(oldRoot.Entries) > 0 {
		firstKey = oldRoot.Entries[0].Key
	}
	newRoot := Node{
		Leaf:   false,
		Parent: 0,
		Entries: []Entry{
			childEntry(firstKey, movedPage),
			childEntry(key, rightChild),
		},
	}
	if err := t.putNode(rootPage, newRoot); err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.NodeSplitsTotal.Inc()
	}
	return t.reparentChildren(movedPage)
}

func (t *Tree) setParent(page, parent uint32) error {
	node, err := t.getNode(page)
	if err != nil {
		return err
	}
	node.Parent = parent
	return t.putNode(page, node)
}

// reparentChildren fixes the Parent pointer of every child of page to
// page itself; a no-op on leaves.
func (t *Tree) reparentChildren(page uint32) error {
	node, err := t.getNode(page)
	if err != nil {
		return err
	}
	if node.Leaf {
		return nil
	}
	for _, e := range node.Entries {
		if err := t.setParent(e.childPage(), page); err != nil {
			return err
		}
	}
	return nil
}
