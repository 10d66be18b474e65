package rowstore

import (
	"github.com/nainya/reldb/pkg/schema"
	"github.com/nainya/reldb/pkg/value"
)

// createAutoIncrementTable registers the reserved
// auto_increment(table, column, num) table, keyed on (table, column),
// the first time a database file is created.
func (st *Store) createAutoIncrementTable() error {
	return st.CreateTable(schema.Table{
		Name: autoIncrementTable,
		Columns: []schema.Column{
			{Name: "table", Type: value.String},
			{Name: "column", Type: value.String},
			{Name: "num", Type: value.U64},
		},
		PrimaryKey: []int{0, 1},
	})
}

// IssueAutoIncrement returns the next auto-increment value for (table, column),
// persisting the advanced counter: 1 the first time, then the stored
// num with the stored num advanced to num+1 on every subsequent call.
func (st *Store) IssueAutoIncrement(tableName, columnName string) (uint64, error) {
	key := autoIncKey(tableName, columnName)
	aiSrc, err := st.Source(autoIncrementTable, "")
	if err != nil {
		return 0, err
	}
	aiTable, err := st.Table(autoIncrementTable)
	if err != nil {
		return 0, err
	}

	cursor, found, err := aiSrc.Tree.Find(key)
	if err != nil {
		return 0, err
	}
	if !found {
		if err := st.AddRow(autoIncrementTable, []value.Value{
			value.NewString(tableName), value.NewString(columnName), value.NewU64(2),
		}); err != nil {
			return 0, err
		}
		return 1, nil
	}

	entry, ok, err := aiSrc.Tree.CursorGet(cursor)
	if err != nil || !ok {
		return 0, err
	}
	valVals, err := aiSrc.DecodeVal(aiTable, entry.Val)
	if err != nil {
		return 0, err
	}
	num := valVals[0].U64

	if _, err := aiSrc.Tree.CursorDelete(cursor); err != nil {
		return 0, err
	}
	if err := st.AddRow(autoIncrementTable, []value.Value{
		value.NewString(tableName), value.NewString(columnName), value.NewU64(num + 1),
	}); err != nil {
		return 0, err
	}
	return num, nil
}

// AdvanceAutoIncrement bumps the stored counter for (table, column) to
// at least explicit+1, for when a row is inserted with an explicit
// value in an auto-increment column rather than letting it be issued.
func (st *Store) AdvanceAutoIncrement(tableName, columnName string, explicit uint64) error {
	key := autoIncKey(tableName, columnName)
	aiSrc, err := st.Source(autoIncrementTable, "")
	if err != nil {
		return err
	}
	aiTable, err := st.Table(autoIncrementTable)
	if err != nil {
		return err
	}

	want := explicit + 1
	cursor, found, err := aiSrc.Tree.Find(key)
	if err != nil {
		return err
	}
	if !found {
		return st.AddRow(autoIncrementTable, []value.Value{
			value.NewString(tableName), value.NewString(columnName), value.NewU64(want),
		})
	}

	entry, ok, err := aiSrc.Tree.CursorGet(cursor)
	if err != nil || !ok {
		return err
	}
	valVals, err := aiSrc.DecodeVal(aiTable, entry.Val)
	if err != nil {
		return err
	}
	if valVals[0].U64 >= want {
		return nil
	}

	if _, err := aiSrc.Tree.CursorDelete(cursor); err != nil {
		return err
	}
	return st.AddRow(autoIncrementTable, []value.Value{
		value.NewString(tableName), value.NewString(columnName), value.NewU64(want),
	})
}

func autoIncKey(tableName, columnName string) []byte {
	return value.EncodeValues([]value.Value{value.NewString(tableName), value.NewString(columnName)})
}
