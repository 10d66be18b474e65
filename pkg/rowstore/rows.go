package rowstore

import (
	"bytes"

	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/pkg/btree"
	"github.com/nainya/reldb/pkg/value"
)

// AddRow inserts row into every source of tableName: the primary source
// and every secondary index source see the same row, each projecting
// its own key/value columns. A duplicate key on any source (most often
// the primary, or a unique secondary) is recovered here as a BadRequest
// rather than left to propagate as the B+Tree's bare panic, since that
// panic is an internal invariant guard, not this package's public
// contract. There is no rollback: a failure partway through leaves
// earlier sources already written.
func (st *Store) AddRow(tableName string, row []value.Value) (err error) {
	table, terr := st.Table(tableName)
	if terr != nil {
		return terr
	}
	if len(row) != len(table.Columns) {
		return dberr.New(dberr.BadRequest, "rowstore.AddRow", "row has wrong column count")
	}
	srcs, serr := st.Sources(tableName)
	if serr != nil {
		return serr
	}

	defer func() {
		if r := recover(); r != nil {
			err = dberr.New(dberr.BadRequest, "rowstore.AddRow", "duplicate key on insert")
		}
	}()

	for _, s := range srcs {
		key := s.EncodeKey(table, row)
		val := s.EncodeVal(table, row)
		if err := s.Tree.Insert(key, val); err != nil {
			return err
		}
	}
	if st.metrics != nil {
		st.metrics.RowsAddedTotal.WithLabelValues(tableName).Inc()
	}
	return nil
}

// CursorDelete removes the row at cursor (on the named source, "" for
// the primary) from every source of its table, per spec §4.4: deleting
// on a secondary source first deletes the primary entry for the PK it
// points at, then the corresponding entry in every other secondary;
// deleting on the primary deletes the corresponding entry in every
// secondary. Either way the entry at cursor itself is deleted last,
// and its successor cursor (on the same source cursor was on) is
// returned.
func (st *Store) CursorDelete(tableName, sourceName string, cursor btree.Cursor) (btree.Cursor, error) {
	table, err := st.Table(tableName)
	if err != nil {
		return btree.Cursor{}, err
	}
	src, err := st.Source(tableName, sourceName)
	if err != nil {
		return btree.Cursor{}, err
	}
	primary, err := st.Source(tableName, "")
	if err != nil {
		return btree.Cursor{}, err
	}

	row, ok, err := st.CursorGetRow(tableName, src, cursor)
	if err != nil {
		return btree.Cursor{}, err
	}
	if !ok {
		return btree.Cursor{}, dberr.New(dberr.Corruption, "rowstore.CursorDelete", "delete at end cursor")
	}

	pkBytes := primary.EncodeKey(table, row)

	if !src.IsPrimary() {
		if err := deleteMatchingEntry(primary.Tree, pkBytes, nil); err != nil {
			return btree.Cursor{}, err
		}
	}

	allSrcs, err := st.Sources(tableName)
	if err != nil {
		return btree.Cursor{}, err
	}
	for _, other := range allSrcs {
		if other == src || other == primary {
			continue // src deleted last below; primary already handled above when relevant
		}
		key := other.EncodeKey(table, row)
		if err := deleteMatchingEntry(other.Tree, key, pkBytes); err != nil {
			return btree.Cursor{}, err
		}
	}

	successor, err := src.Tree.CursorDelete(cursor)
	if err != nil {
		return btree.Cursor{}, err
	}
	if st.metrics != nil {
		st.metrics.RowsDeletedTotal.WithLabelValues(tableName).Inc()
	}
	return successor, nil
}

// deleteMatchingEntry locates the entry at keyBytes whose value equals
// pkBytes (or, when pkBytes is nil, the first entry at keyBytes) and
// deletes it, scanning forward across duplicate-key entries as spec
// §4.4 requires for secondary indices.
func deleteMatchingEntry(tree *btree.Tree, keyBytes, pkBytes []byte) error {
	cursor, found, err := tree.Find(keyBytes)
	if err != nil {
		return err
	}
	if !found {
		return dberr.New(dberr.Corruption, "rowstore.deleteMatchingEntry", "expected matching index entry not found")
	}
	for {
		entry, ok, err := tree.CursorGet(cursor)
		if err != nil {
			return err
		}
		if !ok || !bytes.Equal(entry.Key, keyBytes) {
			return dberr.New(dberr.Corruption, "rowstore.deleteMatchingEntry", "exhausted duplicates without a value match")
		}
		if pkBytes == nil || bytes.Equal(entry.Val, pkBytes) {
			_, err := tree.CursorDelete(cursor)
			return err
		}
		cursor, err = tree.CursorNext(cursor)
		if err != nil {
			return err
		}
	}
}
