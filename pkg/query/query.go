// Package query defines the IR that external collaborators build and
// hand to pkg/engine for execution: Select/Insert/Delete/Update over a
// Stream pipeline of source + process items. This package holds only
// the IR's types — no evaluation logic lives here.
package query

import "github.com/nainya/reldb/pkg/value"

// Query is one of Select, Insert, Delete, or Update.
type Query struct {
	Kind   Kind
	Select *Select
	Insert *Insert
	Delete *Delete
	Update *Update
}

type Kind int

const (
	KindSelect Kind = iota
	KindInsert
	KindDelete
	KindUpdate
)

// Select runs one or more Streams, concatenates their rows (every
// stream must yield the same column list), then applies PostProcess.
type Select struct {
	// SubQueries is reserved for a future front end to populate named
	// nested selects; the engine does not evaluate it.
	SubQueries  []NamedSelect
	Streams     []Stream
	PostProcess []PostProcessItem
}

// NamedSelect is one entry of Select.SubQueries.
type NamedSelect struct {
	Name   string
	Select Select
}

// Stream pairs a scan Source with the pipeline of ProcessItems applied
// to rows as they're read.
type Stream struct {
	Source  Source
	Process []ProcessItem
}

// SourceKind distinguishes a Table scan from a synthetic Iota scan.
type SourceKind int

const (
	SourceTable SourceKind = iota
	SourceIota
)

// Source selects what a Stream scans: either a table source (by its
// key columns, i.e. which B+Tree source: primary or a named index) over
// an inclusive [From, To] key range, or a synthetic Iota counter column.
type Source struct {
	Kind SourceKind

	// Table
	TableName  string
	KeyColumns []string
	From       []value.Value
	To         []value.Value

	// Iota
	IotaColumn string
	IotaFrom   uint64
	IotaTo     uint64
}

// ProcessItemKind distinguishes the seven ProcessItem shapes.
type ProcessItemKind int

const (
	ProcessSelect ProcessItemKind = iota
	ProcessFilter
	ProcessJoin
	ProcessDistinct
	ProcessAddColumn
	ProcessSkip
	ProcessLimit
)

// ProcessItem is one pipeline stage. Only the fields relevant to Kind
// are meaningful.
type ProcessItem struct {
	Kind ProcessItemKind

	// Select
	Projections []Projection

	// Filter
	FilterItems []FilterItem

	// Join
	JoinTable     string
	JoinLeftKeys  []string
	JoinRightKeys []string

	// Distinct
	DistinctColumns []string

	// AddColumn
	AddColumnName string
	AddColumnExpr Expr

	// Skip / Limit
	Num int
}

// Projection is one (output_name, Expr) pair of a Select ProcessItem.
type Projection struct {
	Name string
	Expr Expr
}

// ExprKind distinguishes the three Expr shapes.
type ExprKind int

const (
	ExprColumn ExprKind = iota
	ExprData
	ExprEnumerate
)

// Expr is Column(name) | Data(value) | Enumerate(seed). Enumerate is a
// stateful counter: each evaluation yields the current value then
// increments it (spec.md §9 calls this out explicitly as a mutable
// operator, not a pure expression).
type Expr struct {
	Kind   ExprKind
	Column string
	Data   value.Value
	Seed   value.Value
}

// FilterOp is one of the boolean tree's node kinds.
type FilterOp int

const (
	FilterEq FilterOp = iota
	FilterNe
	FilterLt
	FilterLe
	FilterGt
	FilterGe
	FilterAnd
	FilterOr
)

// FilterItem is a boolean expression tree. Comparison ops (Eq..Ge) are
// leaves comparing Left and Right; And/Or combine LHS and RHS subtrees.
type FilterItem struct {
	Op    FilterOp
	Left  Expr
	Right Expr
	LHS   *FilterItem
	RHS   *FilterItem
}

// InsertKind distinguishes Insert::Row from Insert::Select.
type InsertKind int

const (
	InsertRow InsertKind = iota
	InsertSelect
)

// Insert is Row{table, column_names, values} or Select{table, select}.
type Insert struct {
	Kind        InsertKind
	TableName   string
	ColumnNames []string
	Values      []value.Value
	Select      *Select
}

// Delete scans Source the same way a Select stream would and deletes
// every row it would have yielded.
type Delete struct {
	TableName string
	Source    Source
}

// Update scans Source, buffers matching rows, deletes them, then
// re-inserts each with Assignments applied: assigned columns are
// evaluated against the buffered row, unassigned columns pass through
// unchanged.
type Update struct {
	TableName   string
	Source      Source
	Assignments []Projection
}

// PostProcessItemKind distinguishes the three post-process shapes.
type PostProcessItemKind int

const (
	PostSortBy PostProcessItemKind = iota
	PostSkip
	PostLimit
)

// PostProcessItem runs once over a Select's fully concatenated row set,
// after every Stream has finished.
type PostProcessItem struct {
	Kind       PostProcessItemKind
	ColumnName string // SortBy
	Num        int    // Skip / Limit
}
