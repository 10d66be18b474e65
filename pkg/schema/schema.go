// Package schema defines the catalog of tables, columns, indices, and
// constraints that make up a database's structure, and its binary
// serialization as the Simple Object Store's "schema" object.
package schema

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/pkg/value"
)

// Schema is the full catalog: every table known to the database.
type Schema struct {
	Tables []Table `cbor:"tables"`
}

// Table describes one table's columns, primary key, secondary indices,
// and constraints.
type Table struct {
	Name        string       `cbor:"name"`
	Columns     []Column     `cbor:"columns"`
	PrimaryKey  []int        `cbor:"primary_key"` // column indices; may be empty
	Constraints []Constraint `cbor:"constraints"`
	Indices     []Index      `cbor:"indices"`
	RootPage    uint32       `cbor:"root_page"` // primary source's B+Tree root
}

// Column describes one column's name, type, and optional default.
type Column struct {
	Name    string   `cbor:"name"`
	Type    value.Type `cbor:"type"`
	Default *Default `cbor:"default"`
}

// Default is either a literal value or the auto-increment marker.
type Default struct {
	Kind  DefaultKind  `cbor:"kind"`
	Value value.Value  `cbor:"value,omitempty"`
}

// DefaultKind distinguishes the two Default shapes.
type DefaultKind int

const (
	DefaultData DefaultKind = iota
	DefaultAutoIncrement
)

// Constraint is structurally recorded but never enforced in this core,
// per spec: uniqueness and foreign-key checks are a front end's job.
type Constraint struct {
	Kind                ConstraintKind `cbor:"kind"`
	ColumnIndices       []int          `cbor:"column_indices,omitempty"`       // Unique
	ColumnIndex         int            `cbor:"column_index,omitempty"`         // ForeignKey
	ForeignTableName    string         `cbor:"foreign_table_name,omitempty"`   // ForeignKey
	ForeignColumnIndex  int            `cbor:"foreign_column_index,omitempty"` // ForeignKey
}

// ConstraintKind distinguishes the two Constraint shapes.
type ConstraintKind int

const (
	ConstraintUnique ConstraintKind = iota
	ConstraintForeignKey
)

// Index is one secondary index: an ordered list of indexed column
// positions.
type Index struct {
	Name          string `cbor:"name"`
	ColumnIndices []int  `cbor:"column_indices"`
	RootPage      uint32 `cbor:"root_page"` // this index's source B+Tree root
}

// NewEmpty returns a schema with no tables.
func NewEmpty() *Schema {
	return &Schema{}
}

// GetTable returns a table by name along with its index in Tables.
func (s *Schema) GetTable(name string) (int, *Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return i, &s.Tables[i], true
		}
	}
	return 0, nil, false
}

// GetColumn finds a column by name, optionally preferring a given table
// when the name is ambiguous across tables.
func (s *Schema) GetColumn(name string, preferTable string) (tableIdx int, table *Table, colIdx int, col *Column, ok bool) {
	if preferTable != "" {
		if ti, t, found := s.GetTable(preferTable); found {
			if ci, c, found := t.GetColumn(name); found {
				return ti, t, ci, c, true
			}
		}
	}
	for i := range s.Tables {
		if ci, c, found := s.Tables[i].GetColumn(name); found {
			return i, &s.Tables[i], ci, c, true
		}
	}
	return 0, nil, 0, nil, false
}

// AddTable appends a new table, failing with BadRequest if the name
// already exists, a column name repeats within it, or a secondary
// index references an out-of-range column.
func (s *Schema) AddTable(t Table) error {
	if _, _, exists := s.GetTable(t.Name); exists {
		return dberr.New(dberr.BadRequest, "schema.AddTable", "table "+t.Name+" already exists")
	}
	seen := map[string]bool{}
	for _, c := range t.Columns {
		if seen[c.Name] {
			return dberr.New(dberr.BadRequest, "schema.AddTable", "duplicate column name "+c.Name)
		}
		seen[c.Name] = true
	}
	for _, idx := range t.Indices {
		for _, ci := range idx.ColumnIndices {
			if ci < 0 || ci >= len(t.Columns) {
				return dberr.New(dberr.BadRequest, "schema.AddTable", "index "+idx.Name+" references out-of-range column")
			}
		}
	}
	s.Tables = append(s.Tables, t)
	return nil
}

// GetColumn finds a column by name within the table.
func (t *Table) GetColumn(name string) (int, *Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return i, &t.Columns[i], true
		}
	}
	return 0, nil, false
}

// ColumnTypes returns the types of a set of column indices, in order.
func (t *Table) ColumnTypes(indices []int) []value.Type {
	types := make([]value.Type, len(indices))
	for i, ci := range indices {
		types[i] = t.Columns[ci].Type
	}
	return types
}

// Marshal serializes the schema to CBOR bytes for storage as the
// Simple Object Store's "schema" object.
func Marshal(s *Schema) ([]byte, error) {
	b, err := cbor.Marshal(s)
	if err != nil {
		return nil, dberr.Wrap(dberr.Io, "schema.Marshal", "encoding schema", err)
	}
	return b, nil
}

// Unmarshal decodes a schema from CBOR bytes.
func Unmarshal(b []byte) (*Schema, error) {
	var s Schema
	if err := cbor.Unmarshal(b, &s); err != nil {
		return nil, dberr.Wrap(dberr.Corruption, "schema.Unmarshal", "decoding schema", err)
	}
	return &s, nil
}
