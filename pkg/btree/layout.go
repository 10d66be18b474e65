package btree

import (
	"encoding/binary"

	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/pkg/pager"
)

// HeaderSize is the 11-byte common node header: leaf flag, parent page
// index, entry count, next-leaf page index.
const HeaderSize = 11

// PageSize is the fixed node size, matching the pager's page size.
const PageSize = pager.PageSize

// Layout describes the key and value width regime for one tree. A zero
// KeySize or ValSize means that side is variable-width. ValSize only
// governs leaf values — internal node values are always a fixed 4-byte
// child page pointer, regardless of Layout.ValSize.
type Layout struct {
	KeySize int
	ValSize int
}

// KeyFixed reports whether this layout's keys are fixed-width.
func (l Layout) KeyFixed() bool { return l.KeySize != 0 }

// ValFixed reports whether this layout's leaf values are fixed-width.
func (l Layout) ValFixed() bool { return l.ValSize != 0 }

// Entry is one decoded (key, value) pair of a node. For internal nodes,
// Val holds the 4-byte little-endian encoding of the child page index.
type Entry struct {
	Key []byte
	Val []byte
}

// childPage decodes Val as a child page index. Only meaningful for
// internal-node entries.
func (e Entry) childPage() uint32 {
	return binary.LittleEndian.Uint32(e.Val)
}

func childEntry(key []byte, child uint32) Entry {
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], child)
	return Entry{Key: key, Val: v[:]}
}

// valueSpec returns the fixed-ness and width of the value side of a
// node, given whether it is a leaf.
func valueSpec(layout Layout, leaf bool) (fixed bool, width int) {
	if !leaf {
		return true, 4
	}
	if layout.ValFixed() {
		return true, layout.ValSize
	}
	return false, 0
}

// Node is a decoded view of one page-sized B+Tree node.
type Node struct {
	Leaf    bool
	Parent  uint32
	Next    uint32 // leaf sibling chain; unused on internal nodes
	Entries []Entry
}

// Decode reads a Node out of a raw page buffer for the given layout.
func Decode(buf *pager.Page, layout Layout) (Node, error) {
	// Entries slice into a private copy of the page, so re-encoding the
	// decoded node into the same page does not overwrite its own keys and
	// values while Encode zeroes and refills that page.
	page := *buf
	buf = &page

	leaf := buf[0] == 1
	parent := binary.LittleEndian.Uint32(buf[1:5])
	n := int(binary.LittleEndian.Uint16(buf[5:7]))
	next := binary.LittleEndian.Uint32(buf[7:11])

	keyFixed, keyWidth := layout.KeyFixed(), layout.KeySize
	valFixed, valWidth := valueSpec(layout, leaf)

	entries := make([]Entry, n)

	switch {
	case keyFixed && valFixed:
		for i := 0; i < n; i++ {
			koff := HeaderSize + i*keyWidth
			voff := PageSize - (n-i)*valWidth
			entries[i] = Entry{
				Key: buf[koff : koff+keyWidth],
				Val: buf[voff : voff+valWidth],
			}
		}
	case keyFixed && !valFixed:
		arr := HeaderSize
		slot := keyWidth + 4
		boundary := PageSize
		for i := 0; i < n; i++ {
			base := arr + i*slot
			key := buf[base : base+keyWidth]
			voff := int(binary.LittleEndian.Uint32(buf[base+keyWidth : base+keyWidth+4]))
			entries[i] = Entry{Key: key, Val: buf[voff:boundary]}
			boundary = voff
		}
	case !keyFixed && valFixed:
		arr := HeaderSize
		boundary := PageSize
		for i := 0; i < n; i++ {
			koff := int(binary.LittleEndian.Uint32(buf[arr+i*4 : arr+i*4+4]))
			val := buf[boundary-valWidth : boundary]
			key := buf[koff : boundary-valWidth]
			entries[i] = Entry{Key: key, Val: val}
			boundary = koff
		}
	default: // variable key, variable value
		arr := HeaderSize
		boundary := PageSize
		for i := 0; i < n; i++ {
			base := arr + i*8
			koff := int(binary.LittleEndian.Uint32(buf[base : base+4]))
			voff := int(binary.LittleEndian.Uint32(buf[base+4 : base+8]))
			entries[i] = Entry{
				Key: buf[koff:voff],
				Val: buf[voff:boundary],
			}
			boundary = koff
		}
	}

	return Node{Leaf: leaf, Parent: parent, Next: next, Entries: entries}, nil
}

// Size returns the number of bytes a node with these entries would
// occupy under layout, given leaf-ness.
func Size(entries []Entry, layout Layout, leaf bool) int {
	n := len(entries)
	keyFixed, keyWidth := layout.KeyFixed(), layout.KeySize
	valFixed, valWidth := valueSpec(layout, leaf)

	switch {
	case keyFixed && valFixed:
		return HeaderSize + n*keyWidth + n*valWidth
	case keyFixed && !valFixed:
		total := HeaderSize + n*(keyWidth+4)
		for _, e := range entries {
			total += len(e.Val)
		}
		return total
	case !keyFixed && valFixed:
		total := HeaderSize + n*4
		for _, e := range entries {
			total += len(e.Key) + valWidth
		}
		return total
	default:
		total := HeaderSize + n*8
		for _, e := range entries {
			total += len(e.Key) + len(e.Val)
		}
		return total
	}
}

// Fits reports whether entries fit in a single page under layout.
func Fits(entries []Entry, layout Layout, leaf bool) bool {
	return Size(entries, layout, leaf) <= PageSize
}

// Encode serializes a Node into buf under layout. It errors (BadRequest)
// if the entries do not fit in one page; callers are responsible for
// splitting before calling Encode.
func Encode(buf *pager.Page, node Node, layout Layout) error {
	if !Fits(node.Entries, layout, node.Leaf) {
		return dberr.New(dberr.BadRequest, "btree.Encode", "node contents exceed page size")
	}
	for i := range buf {
		buf[i] = 0
	}
	if node.Leaf {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], node.Parent)
	binary.LittleEndian.PutUint16(buf[5:7], uint16(len(node.Entries)))
	binary.LittleEndian.PutUint32(buf[7:11], node.Next)

	n := len(node.Entries)
	keyFixed, keyWidth := layout.KeyFixed(), layout.KeySize
	valFixed, valWidth := valueSpec(layout, node.Leaf)

	switch {
	case keyFixed && valFixed:
		for i, e := range node.Entries {
			koff := HeaderSize + i*keyWidth
			copy(buf[koff:koff+keyWidth], e.Key)
			voff := PageSize - (n-i)*valWidth
			copy(buf[voff:voff+valWidth], e.Val)
		}
	case keyFixed && !valFixed:
		arr := HeaderSize
		slot := keyWidth + 4
		boundary := PageSize
		for i := 0; i < n; i++ {
			e := node.Entries[i]
			voff := boundary - len(e.Val)
			copy(buf[voff:boundary], e.Val)
			base := arr + i*slot
			copy(buf[base:base+keyWidth], e.Key)
			binary.LittleEndian.PutUint32(buf[base+keyWidth:base+keyWidth+4], uint32(voff))
			boundary = voff
		}
	case !keyFixed && valFixed:
		arr := HeaderSize
		boundary := PageSize
		for i := 0; i < n; i++ {
			e := node.Entries[i]
			koff := boundary - len(e.Key) - valWidth
			copy(buf[koff:koff+len(e.Key)], e.Key)
			copy(buf[koff+len(e.Key):boundary], e.Val)
			binary.LittleEndian.PutUint32(buf[arr+i*4:arr+i*4+4], uint32(koff))
			boundary = koff
		}
	default:
		arr := HeaderSize
		boundary := PageSize
		for i := 0; i < n; i++ {
			e := node.Entries[i]
			voff := boundary - len(e.Val)
			koff := voff - len(e.Key)
			copy(buf[koff:koff+len(e.Key)], e.Key)
			copy(buf[voff:voff+len(e.Val)], e.Val)
			base := arr + i*8
			binary.LittleEndian.PutUint32(buf[base:base+4], uint32(koff))
			binary.LittleEndian.PutUint32(buf[base+4:base+8], uint32(voff))
			boundary = koff
		}
	}
	return nil
}
