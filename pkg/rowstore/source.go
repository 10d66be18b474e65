// Package rowstore implements the row store / source catalog: per-table
// primary and secondary B+Tree sources, the add_row/cursor_delete write
// protocols that keep every source of a table in sync, and the reserved
// auto_increment table.
package rowstore

import (
	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/pkg/btree"
	"github.com/nainya/reldb/pkg/schema"
	"github.com/nainya/reldb/pkg/value"
)

// Source is a single B+Tree view over a table: either the primary
// source (keyed on the table's primary key) or a secondary source
// (keyed on a declared index's columns, valued on the primary key).
type Source struct {
	Name    string // "" for the primary source, else the index name
	KeyCols []int
	ValCols []int
	Tree    *btree.Tree
}

func (s *Source) IsPrimary() bool { return s.Name == "" }

func projectTypes(t *schema.Table, cols []int) []value.Type {
	out := make([]value.Type, len(cols))
	for i, c := range cols {
		out[i] = t.Columns[c].Type
	}
	return out
}

func projectValues(row []value.Value, cols []int) []value.Value {
	out := make([]value.Value, len(cols))
	for i, c := range cols {
		out[i] = row[c]
	}
	return out
}

// EncodeKey projects row onto this source's key columns and encodes it.
func (s *Source) EncodeKey(t *schema.Table, row []value.Value) []byte {
	return value.EncodeValues(projectValues(row, s.KeyCols))
}

// EncodeVal projects row onto this source's value columns and encodes it.
func (s *Source) EncodeVal(t *schema.Table, row []value.Value) []byte {
	return value.EncodeValues(projectValues(row, s.ValCols))
}

// DecodeKey decodes this source's key columns from raw bytes.
func (s *Source) DecodeKey(t *schema.Table, key []byte) ([]value.Value, error) {
	return value.DecodeValues(projectTypes(t, s.KeyCols), key)
}

// DecodeVal decodes this source's value columns from raw bytes.
func (s *Source) DecodeVal(t *schema.Table, val []byte) ([]value.Value, error) {
	return value.DecodeValues(projectTypes(t, s.ValCols), val)
}

// complementColumns returns every column index of t not present in cols,
// in ascending order — the primary source's value-side column set.
func complementColumns(t *schema.Table, cols []int) []int {
	in := map[int]bool{}
	for _, c := range cols {
		in[c] = true
	}
	out := make([]int, 0, len(t.Columns)-len(cols))
	for i := range t.Columns {
		if !in[i] {
			out = append(out, i)
		}
	}
	return out
}

// reassembleRow places key and value component values at their original
// column positions, per the primary source's cursor_get_row contract.
func reassembleRow(t *schema.Table, keyCols, valCols []int, keyVals, valVals []value.Value) []value.Value {
	row := make([]value.Value, len(t.Columns))
	for i, c := range keyCols {
		row[c] = keyVals[i]
	}
	for i, c := range valCols {
		row[c] = valVals[i]
	}
	return row
}

// CursorGetRow reads the full row at cursor. For a secondary source this
// probes the primary source with the PK it finds.
func (st *Store) CursorGetRow(tableName string, src *Source, cursor btree.Cursor) ([]value.Value, bool, error) {
	_, table, ok := st.schema.GetTable(tableName)
	if !ok {
		return nil, false, dberr.New(dberr.NotFound, "rowstore.CursorGetRow", "no table "+tableName)
	}
	entry, ok, err := src.Tree.CursorGet(cursor)
	if err != nil || !ok {
		return nil, ok, err
	}
	if src.IsPrimary() {
		keyVals, err := src.DecodeKey(table, entry.Key)
		if err != nil {
			return nil, false, err
		}
		valVals, err := src.DecodeVal(table, entry.Val)
		if err != nil {
			return nil, false, err
		}
		return reassembleRow(table, src.KeyCols, src.ValCols, keyVals, valVals), true, nil
	}

	// Secondary: entry.Val is the encoded primary key; probe the primary.
	primary := st.sources[tableName][0]
	pkCursor, found, err := primary.Tree.Find(entry.Val)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, dberr.New(dberr.Corruption, "rowstore.CursorGetRow", "secondary entry has no matching primary row")
	}
	return st.CursorGetRow(tableName, primary, pkCursor)
}
