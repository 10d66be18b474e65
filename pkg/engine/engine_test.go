package engine

import (
	"path/filepath"
	"testing"

	"github.com/nainya/reldb/pkg/query"
	"github.com/nainya/reldb/pkg/rowstore"
	"github.com/nainya/reldb/pkg/schema"
	"github.com/nainya/reldb/pkg/value"
)

func openTestExecutor(t *testing.T) (*Executor, *rowstore.Store) {
	t.Helper()
	st, err := rowstore.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return New(st), st
}

func widgetsTable() schema.Table {
	return schema.Table{
		Name: "widgets",
		Columns: []schema.Column{
			{Name: "id", Type: value.U64},
			{Name: "sku", Type: value.String},
			{Name: "qty", Type: value.U64},
		},
		PrimaryKey: []int{0},
		Indices: []schema.Index{
			{Name: "by_sku", ColumnIndices: []int{1}},
		},
	}
}

func mustCreateWidgets(t *testing.T, st *rowstore.Store) {
	t.Helper()
	if err := st.CreateTable(widgetsTable()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
}

func tableSource(tableName string, keyColumns []string) query.Source {
	return query.Source{Kind: query.SourceTable, TableName: tableName, KeyColumns: keyColumns}
}

func TestSelectFullTableScanInKeyOrder(t *testing.T) {
	e, st := openTestExecutor(t)
	mustCreateWidgets(t, st)
	rows := [][]value.Value{
		{value.NewU64(3), value.NewString("c"), value.NewU64(30)},
		{value.NewU64(1), value.NewString("a"), value.NewU64(10)},
		{value.NewU64(2), value.NewString("b"), value.NewU64(20)},
	}
	for _, r := range rows {
		if err := st.AddRow("widgets", r); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}

	sel := query.Select{Streams: []query.Stream{{Source: tableSource("widgets", []string{"id"})}}}
	columns, got, err := e.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	idIdx := indexOf(columns, "id")
	for i, want := range []uint64{1, 2, 3} {
		if got[i][idIdx].U64 != want {
			t.Fatalf("row %d: got id %d, want %d", i, got[i][idIdx].U64, want)
		}
	}
}

func TestSelectInclusiveKeyRange(t *testing.T) {
	e, st := openTestExecutor(t)
	mustCreateWidgets(t, st)
	for i := uint64(1); i <= 5; i++ {
		if err := st.AddRow("widgets", []value.Value{value.NewU64(i), value.NewString("x"), value.NewU64(i * 10)}); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}

	src := tableSource("widgets", []string{"id"})
	src.From = []value.Value{value.NewU64(2)}
	src.To = []value.Value{value.NewU64(4)}
	sel := query.Select{Streams: []query.Stream{{Source: src}}}
	columns, got, err := e.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	idIdx := indexOf(columns, "id")
	for i, want := range []uint64{2, 3, 4} {
		if got[i][idIdx].U64 != want {
			t.Fatalf("row %d: got %d, want %d", i, got[i][idIdx].U64, want)
		}
	}
}

func TestSelectSecondaryIndexFilterAndProjection(t *testing.T) {
	e, st := openTestExecutor(t)
	mustCreateWidgets(t, st)
	if err := st.AddRow("widgets", []value.Value{value.NewU64(1), value.NewString("alpha"), value.NewU64(5)}); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	if err := st.AddRow("widgets", []value.Value{value.NewU64(2), value.NewString("beta"), value.NewU64(9)}); err != nil {
		t.Fatalf("AddRow: %v", err)
	}

	src := tableSource("widgets", []string{"sku"})
	sel := query.Select{Streams: []query.Stream{{
		Source: src,
		Process: []query.ProcessItem{
			{Kind: query.ProcessFilter, FilterItems: []query.FilterItem{
				{Op: query.FilterEq, Left: query.Expr{Kind: query.ExprColumn, Column: "sku"}, Right: query.Expr{Kind: query.ExprData, Data: value.NewString("beta")}},
			}},
			{Kind: query.ProcessSelect, Projections: []query.Projection{
				{Name: "id", Expr: query.Expr{Kind: query.ExprColumn, Column: "id"}},
				{Name: "qty", Expr: query.Expr{Kind: query.ExprColumn, Column: "qty"}},
			}},
		},
	}}}
	columns, got, err := e.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if columns[0] != "id" || columns[1] != "qty" {
		t.Fatalf("got columns %v", columns)
	}
	if got[0][0].U64 != 2 || got[0][1].U64 != 9 {
		t.Fatalf("got row %v", got[0])
	}
}

func TestSelectLimitShortCircuitsScan(t *testing.T) {
	e, st := openTestExecutor(t)
	mustCreateWidgets(t, st)
	for i := uint64(1); i <= 50; i++ {
		if err := st.AddRow("widgets", []value.Value{value.NewU64(i), value.NewString("x"), value.NewU64(i)}); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}

	sel := query.Select{Streams: []query.Stream{{
		Source:  tableSource("widgets", []string{"id"}),
		Process: []query.ProcessItem{{Kind: query.ProcessLimit, Num: 3}},
	}}}
	_, got, err := e.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
}

func TestInsertRowResolvesAutoIncrement(t *testing.T) {
	e, st := openTestExecutor(t)
	if err := st.CreateTable(schema.Table{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", Type: value.U64, Default: &schema.Default{Kind: schema.DefaultAutoIncrement}},
			{Name: "note", Type: value.String},
		},
		PrimaryKey: []int{0},
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if err := e.Insert(query.Insert{
		Kind: query.InsertRow, TableName: "orders",
		ColumnNames: []string{"note"}, Values: []value.Value{value.NewString("first")},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := e.Insert(query.Insert{
		Kind: query.InsertRow, TableName: "orders",
		ColumnNames: []string{"note"}, Values: []value.Value{value.NewString("second")},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	sel := query.Select{Streams: []query.Stream{{Source: tableSource("orders", []string{"id"})}}}
	columns, got, err := e.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	idIdx := indexOf(columns, "id")
	if len(got) != 2 || got[0][idIdx].U64 != 1 || got[1][idIdx].U64 != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestDeleteRemovesMatchingRowsFromAllSources(t *testing.T) {
	e, st := openTestExecutor(t)
	mustCreateWidgets(t, st)
	for i := uint64(1); i <= 4; i++ {
		if err := st.AddRow("widgets", []value.Value{value.NewU64(i), value.NewString("x"), value.NewU64(i)}); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}

	src := tableSource("widgets", []string{"id"})
	src.From = []value.Value{value.NewU64(2)}
	src.To = []value.Value{value.NewU64(3)}
	n, err := e.Delete(query.Delete{TableName: "widgets", Source: src})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}

	sel := query.Select{Streams: []query.Stream{{Source: tableSource("widgets", []string{"id"})}}}
	columns, got, err := e.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	idIdx := indexOf(columns, "id")
	if len(got) != 2 || got[0][idIdx].U64 != 1 || got[1][idIdx].U64 != 4 {
		t.Fatalf("got %v", got)
	}

	idx, err := st.Source("widgets", "by_sku")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	key := value.EncodeValues([]value.Value{value.NewString("x")})
	cursor, found, err := idx.Tree.Find(key)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	remaining := 0
	for found {
		entry, ok, err := idx.Tree.CursorGet(cursor)
		if err != nil || !ok || string(entry.Key) != string(key) {
			break
		}
		remaining++
		cursor, err = idx.Tree.CursorNext(cursor)
		if err != nil {
			t.Fatalf("CursorNext: %v", err)
		}
		isEnd, err := idx.Tree.CursorIsEnd(cursor)
		if err != nil || isEnd {
			break
		}
	}
	if remaining != 2 {
		t.Fatalf("secondary index has %d entries left, want 2", remaining)
	}
}

func TestUpdateAppliesAssignmentAndReinserts(t *testing.T) {
	e, st := openTestExecutor(t)
	mustCreateWidgets(t, st)
	if err := st.AddRow("widgets", []value.Value{value.NewU64(1), value.NewString("a"), value.NewU64(5)}); err != nil {
		t.Fatalf("AddRow: %v", err)
	}

	n, err := e.Update(query.Update{
		TableName: "widgets",
		Source:    tableSource("widgets", []string{"id"}),
		Assignments: []query.Projection{
			{Name: "qty", Expr: query.Expr{Kind: query.ExprData, Data: value.NewU64(99)}},
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 1 {
		t.Fatalf("updated %d, want 1", n)
	}

	sel := query.Select{Streams: []query.Stream{{Source: tableSource("widgets", []string{"id"})}}}
	columns, got, err := e.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	qtyIdx := indexOf(columns, "qty")
	if len(got) != 1 || got[0][qtyIdx].U64 != 99 {
		t.Fatalf("got %v", got)
	}
}

func TestEquiJoinMatchesOnSharedKey(t *testing.T) {
	e, st := openTestExecutor(t)
	if err := st.CreateTable(schema.Table{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", Type: value.U64},
			{Name: "widget_id", Type: value.U64},
		},
		PrimaryKey: []int{0},
	}); err != nil {
		t.Fatalf("CreateTable orders: %v", err)
	}
	mustCreateWidgets(t, st)
	if err := st.AddRow("widgets", []value.Value{value.NewU64(1), value.NewString("a"), value.NewU64(5)}); err != nil {
		t.Fatalf("AddRow widgets: %v", err)
	}
	if err := st.AddRow("orders", []value.Value{value.NewU64(100), value.NewU64(1)}); err != nil {
		t.Fatalf("AddRow orders: %v", err)
	}

	sel := query.Select{Streams: []query.Stream{{
		Source: tableSource("orders", []string{"id"}),
		Process: []query.ProcessItem{
			{Kind: query.ProcessJoin, JoinTable: "widgets", JoinLeftKeys: []string{"widget_id"}, JoinRightKeys: []string{"id"}},
		},
	}}}
	columns, got, err := e.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	skuIdx := indexOf(columns, "widgets.sku")
	if got[0][skuIdx].Str != "a" {
		t.Fatalf("got joined row %v", got[0])
	}
}
