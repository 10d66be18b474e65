// Package objectstore implements the Simple Object Store: a named-blob
// store layered over the pager, used to persist the schema catalog.
// Page 0 is reserved for the object table; every other object is a
// linked list of pages, each holding a 4-byte little-endian next-page
// index (0 = end) followed by PageSize-4 bytes of payload.
package objectstore

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/pkg/pager"
)

const headerSize = 4
const payloadSize = pager.PageSize - headerSize

// CatalogPage is the reserved page index holding the object table.
const CatalogPage = 0

// entry is one named object's starting page and byte length. The length
// is recorded so a read stops at the object's true end rather than at
// the first trailing zero byte, which would misread binary payloads
// that legitimately end in 0x00.
type entry struct {
	Name string `cbor:"name"`
	Page uint32 `cbor:"page"`
	Len  uint32 `cbor:"len"`
}

// table is the object table stored at CatalogPage.
type table struct {
	Objects []entry `cbor:"objects"`
}

// Store is the Simple Object Store over a Pager.
type Store struct {
	pager *pager.Pager
}

// New wraps an open Pager.
func New(p *pager.Pager) *Store {
	return &Store{pager: p}
}

// Init writes an empty object table into page 0. Must be called once
// when creating a new database file.
func (s *Store) Init() error {
	return s.writeTable(table{})
}

// Read returns the bytes of the named object, or a NotFound error if no
// such object exists.
func (s *Store) Read(name string) ([]byte, error) {
	t, err := s.readTable()
	if err != nil {
		return nil, err
	}
	for _, e := range t.Objects {
		if e.Name == name {
			return s.readChain(int(e.Page), int(e.Len))
		}
	}
	return nil, dberr.New(dberr.NotFound, "objectstore.Read", "no object named "+name)
}

// Write creates or replaces the named object with the given bytes.
func (s *Store) Write(name string, data []byte) error {
	t, err := s.readTable()
	if err != nil {
		return err
	}

	pageIdx := -1
	for i, e := range t.Objects {
		if e.Name == name {
			pageIdx = int(e.Page)
			t.Objects[i].Len = uint32(len(data))
			break
		}
	}
	if pageIdx < 0 {
		page := &pager.Page{}
		pageIdx = s.pager.Push(page)
		t.Objects = append(t.Objects, entry{Name: name, Page: uint32(pageIdx), Len: uint32(len(data))})
	}

	if err := s.writeChain(pageIdx, data); err != nil {
		return err
	}
	return s.writeTable(t)
}

func (s *Store) readTable() (table, error) {
	// The catalog's own length isn't tracked by an entry (it IS the
	// entry list), so decode it as a self-describing CBOR stream: the
	// decoder consumes exactly the bytes the value needs and ignores
	// whatever zero-padding follows in the page chain.
	r := &chainReader{store: s, pageIdx: CatalogPage}
	dec := cbor.NewDecoder(r)
	var t table
	if err := dec.Decode(&t); err != nil {
		if err == io.EOF {
			return table{}, nil
		}
		return table{}, dberr.Wrap(dberr.Corruption, "objectstore.readTable", "decoding object table", err)
	}
	return t, nil
}

func (s *Store) writeTable(t table) error {
	raw, err := cbor.Marshal(t)
	if err != nil {
		return dberr.Wrap(dberr.Io, "objectstore.writeTable", "encoding object table", err)
	}
	return s.writeChain(CatalogPage, raw)
}

// readChain reads exactly length bytes of payload from the linked-list
// object starting at startPage, auto-advancing across pages and
// skipping each 4-byte header.
func (s *Store) readChain(startPage int, length int) ([]byte, error) {
	var buf bytes.Buffer
	r := &chainReader{store: s, pageIdx: startPage}
	if _, err := io.CopyN(&buf, r, int64(length)); err != nil && err != io.EOF {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeChain writes data into the linked-list object starting at
// startPage, allocating new pages from the pager as needed and
// truncating any pages left over from a previous, longer write.
func (s *Store) writeChain(startPage int, data []byte) error {
	w := &chainWriter{store: s, pageIdx: startPage}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.finish()
}

// chainReader implements io.Reader over an object's page chain.
type chainReader struct {
	store   *Store
	pageIdx int
	pos     int // read position within current page's payload
	done    bool
}

func (r *chainReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	total := 0
	for len(p) > 0 {
		page, err := r.store.pager.GetRef(r.pageIdx)
		if err != nil {
			return total, err
		}
		next := int(binary.LittleEndian.Uint32(page[0:headerSize]))
		avail := payloadSize - r.pos
		if avail <= 0 {
			if next == 0 {
				r.done = true
				return total, nil
			}
			r.pageIdx = next
			r.pos = 0
			continue
		}
		n := len(p)
		if n > avail {
			n = avail
		}
		copy(p[:n], page[headerSize+r.pos:headerSize+r.pos+n])
		r.pos += n
		total += n
		p = p[n:]
		if r.pos >= payloadSize {
			if next == 0 {
				r.done = true
				return total, nil
			}
			r.pageIdx = next
			r.pos = 0
		}
	}
	return total, nil
}

// chainWriter implements io.Writer over an object's page chain,
// allocating new pages as the write runs past the current page's
// payload capacity.
type chainWriter struct {
	store   *Store
	pageIdx int
	pos     int
}

func (w *chainWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		page, err := w.store.pager.GetMut(w.pageIdx)
		if err != nil {
			return total, err
		}
		next := int(binary.LittleEndian.Uint32(page[0:headerSize]))

		avail := payloadSize - w.pos
		n := len(p)
		if n > avail {
			n = avail
		}
		copy(page[headerSize+w.pos:headerSize+w.pos+n], p[:n])
		w.pos += n
		total += n
		p = p[n:]

		if w.pos >= payloadSize && len(p) > 0 {
			if next == 0 {
				newPage := &pager.Page{}
				next = w.store.pager.Push(newPage)
				binary.LittleEndian.PutUint32(page[0:headerSize], uint32(next))
			}
			w.pageIdx = next
			w.pos = 0
		}
	}
	return total, nil
}

// finish zeroes out the tail of the current page past the write
// position and severs the chain there, so a shorter overwrite does not
// leave stale trailing bytes from a previous longer object.
func (w *chainWriter) finish() error {
	page, err := w.store.pager.GetMut(w.pageIdx)
	if err != nil {
		return err
	}
	for i := headerSize + w.pos; i < pager.PageSize; i++ {
		page[i] = 0
	}
	binary.LittleEndian.PutUint32(page[0:headerSize], 0)
	return nil
}
