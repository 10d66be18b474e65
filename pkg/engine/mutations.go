package engine

import (
	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/pkg/btree"
	"github.com/nainya/reldb/pkg/query"
	"github.com/nainya/reldb/pkg/schema"
	"github.com/nainya/reldb/pkg/value"
)

// Insert runs an Insert query: Row resolves explicit values, column
// defaults, and auto-increment columns into one full row and adds it;
// Select runs the inner select and inserts every result row the same
// way, matched onto ins.ColumnNames by position.
func (e *Executor) Insert(ins query.Insert) error {
	switch ins.Kind {
	case query.InsertRow:
		table, err := e.store.Table(ins.TableName)
		if err != nil {
			return err
		}
		row, err := e.resolveInsertRow(table, ins.ColumnNames, ins.Values)
		if err != nil {
			return err
		}
		return e.store.st.AddRow(ins.TableName, row)

	case query.InsertSelect:
		if ins.Select == nil {
			return dberr.New(dberr.BadRequest, "engine.Insert", "Select insert with no inner select")
		}
		table, err := e.store.Table(ins.TableName)
		if err != nil {
			return err
		}
		_, srcRows, err := e.Select(*ins.Select)
		if err != nil {
			return err
		}
		for _, vals := range srcRows {
			row, err := e.resolveInsertRow(table, ins.ColumnNames, vals)
			if err != nil {
				return err
			}
			if err := e.store.st.AddRow(ins.TableName, row); err != nil {
				return err
			}
		}
		return nil

	default:
		return dberr.New(dberr.BadRequest, "engine.Insert", "unknown insert kind")
	}
}

// resolveInsertRow builds a full-width row for table given an explicit
// (columnNames, values) pairing: unnamed columns fall back to their
// declared default, an explicit value supplied for an auto-increment
// column advances that column's counter instead of issuing from it.
func (e *Executor) resolveInsertRow(table *schema.Table, columnNames []string, values []value.Value) ([]value.Value, error) {
	if len(columnNames) != len(values) {
		return nil, dberr.New(dberr.BadRequest, "engine.resolveInsertRow", "column/value count mismatch")
	}
	row := make([]value.Value, len(table.Columns))
	given := make([]bool, len(table.Columns))

	for i, name := range columnNames {
		idx, col, ok := table.GetColumn(name)
		if !ok {
			return nil, dberr.New(dberr.NotFound, "engine.resolveInsertRow", "no column "+name+" on "+table.Name)
		}
		row[idx] = values[i]
		given[idx] = true
		if col.Default != nil && col.Default.Kind == schema.DefaultAutoIncrement {
			if err := e.store.st.AdvanceAutoIncrement(table.Name, col.Name, values[i].U64); err != nil {
				return nil, err
			}
		}
	}

	for idx, col := range table.Columns {
		if given[idx] {
			continue
		}
		if col.Default == nil {
			return nil, dberr.New(dberr.BadRequest, "engine.resolveInsertRow", "missing value for column "+col.Name)
		}
		switch col.Default.Kind {
		case schema.DefaultData:
			row[idx] = col.Default.Value
		case schema.DefaultAutoIncrement:
			num, err := e.store.st.IssueAutoIncrement(table.Name, col.Name)
			if err != nil {
				return nil, err
			}
			row[idx] = value.NewU64(num)
		default:
			return nil, dberr.New(dberr.BadRequest, "engine.resolveInsertRow", "unknown default kind")
		}
	}
	return row, nil
}

// matchingRows scans src the same way a Select stream would, without
// any process pipeline, and returns the full decoded rows it sees —
// used as the shared scan for Delete and Update, which both act on the
// scanned row set rather than the live cursor stream itself.
func (e *Executor) matchingRows(tableName string, src query.Source) ([][]value.Value, error) {
	if src.Kind != query.SourceTable {
		return nil, dberr.New(dberr.BadRequest, "engine.matchingRows", "delete/update source must be a table source")
	}
	table, err := e.store.Table(tableName)
	if err != nil {
		return nil, err
	}
	rsrc, err := e.sourceFor(tableName, src.KeyColumns)
	if err != nil {
		return nil, err
	}

	var cursor btree.Cursor
	if len(src.From) > 0 {
		c, _, err := rsrc.Tree.Find(value.EncodeValues(src.From))
		if err != nil {
			return nil, err
		}
		cursor = c
	} else {
		c, err := rsrc.Tree.FirstCursor()
		if err != nil {
			return nil, err
		}
		cursor = c
	}

	var rows [][]value.Value
	for {
		isEnd, err := rsrc.Tree.CursorIsEnd(cursor)
		if err != nil {
			return nil, err
		}
		if isEnd {
			return rows, nil
		}
		row, ok, err := e.store.st.CursorGetRow(tableName, rsrc, cursor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		if len(src.To) > 0 {
			keyVals, err := rsrc.DecodeKey(table, rsrc.EncodeKey(table, row))
			if err != nil {
				return nil, err
			}
			cmp, err := compareKeyPrefix(keyVals, src.To)
			if err != nil {
				return nil, err
			}
			if cmp > 0 {
				return rows, nil
			}
		}
		rows = append(rows, row)
		cursor, err = rsrc.Tree.CursorNext(cursor)
		if err != nil {
			return nil, err
		}
	}
}

// Delete runs a Delete query: scans Source once to determine the
// matching row set, then deletes each via a freshly located primary-key
// cursor (not the scan cursor, since earlier deletes on the same page
// can shift later entries' positions). Returns the number of rows
// deleted.
func (e *Executor) Delete(del query.Delete) (int, error) {
	table, err := e.store.Table(del.TableName)
	if err != nil {
		return 0, err
	}
	rows, err := e.matchingRows(del.TableName, del.Source)
	if err != nil {
		return 0, err
	}
	primary, err := e.store.Source(del.TableName, "")
	if err != nil {
		return 0, err
	}

	count := 0
	for _, row := range rows {
		pkBytes := primary.EncodeKey(table, row)
		cursor, found, err := primary.Tree.Find(pkBytes)
		if err != nil {
			return count, err
		}
		if !found {
			return count, dberr.New(dberr.Corruption, "engine.Delete", "matched row vanished before delete")
		}
		if _, err := e.store.st.CursorDelete(del.TableName, "", cursor); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Update runs an Update query: scans Source to determine the matching
// row set, deletes each matched row, applies Assignments against the
// pre-update row, and re-inserts it. Unassigned columns pass through
// unchanged. Returns the number of rows updated.
func (e *Executor) Update(upd query.Update) (int, error) {
	table, err := e.store.Table(upd.TableName)
	if err != nil {
		return 0, err
	}
	rows, err := e.matchingRows(upd.TableName, upd.Source)
	if err != nil {
		return 0, err
	}
	primary, err := e.store.Source(upd.TableName, "")
	if err != nil {
		return 0, err
	}

	columns := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		columns[i] = c.Name
	}
	assigns := make([]resolvedExpr, len(upd.Assignments))
	assignIdx := make([]int, len(upd.Assignments))
	for i, a := range upd.Assignments {
		idx, _, ok := table.GetColumn(a.Name)
		if !ok {
			return 0, dberr.New(dberr.NotFound, "engine.Update", "no column "+a.Name+" on "+upd.TableName)
		}
		assignIdx[i] = idx
		r, err := resolveExpr(a.Expr, columns)
		if err != nil {
			return 0, err
		}
		assigns[i] = r
	}

	count := 0
	for _, row := range rows {
		pkBytes := primary.EncodeKey(table, row)
		cursor, found, err := primary.Tree.Find(pkBytes)
		if err != nil {
			return count, err
		}
		if !found {
			return count, dberr.New(dberr.Corruption, "engine.Update", "matched row vanished before update")
		}
		if _, err := e.store.st.CursorDelete(upd.TableName, "", cursor); err != nil {
			return count, err
		}

		newRow := append([]value.Value{}, row...)
		for i, r := range assigns {
			v, err := r.eval(row)
			if err != nil {
				return count, err
			}
			newRow[assignIdx[i]] = v
		}
		if err := e.store.st.AddRow(upd.TableName, newRow); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
