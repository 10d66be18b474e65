// Package engine executes the pkg/query IR against a pkg/rowstore Store:
// a pull-style cursor scan feeding a push-style chain of Appenders built
// by folding each Stream's ProcessItems right-to-left, the same shape as
// the reference query engine this design is grounded on.
package engine

import (
	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/internal/logger"
	"github.com/nainya/reldb/internal/metrics"
	"github.com/nainya/reldb/pkg/btree"
	"github.com/nainya/reldb/pkg/query"
	"github.com/nainya/reldb/pkg/rowstore"
	"github.com/nainya/reldb/pkg/schema"
	"github.com/nainya/reldb/pkg/value"
)

// rowStoreView is a thin wrapper around *rowstore.Store through which
// the executor looks up tables and sources.
type rowStoreView struct {
	st *rowstore.Store
}

func (v *rowStoreView) Table(name string) (*schema.Table, error) { return v.st.Table(name) }
func (v *rowStoreView) Source(tableName, sourceName string) (*rowstore.Source, error) {
	return v.st.Source(tableName, sourceName)
}
func (v *rowStoreView) Sources(tableName string) ([]*rowstore.Source, error) {
	return v.st.Sources(tableName)
}

// Executor runs Query values against one rowstore.Store.
type Executor struct {
	store   *rowStoreView
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New builds an Executor over an already-open row store.
func New(st *rowstore.Store) *Executor {
	return &Executor{store: &rowStoreView{st: st}, log: logger.GetGlobalLogger().EngineLogger()}
}

// SetMetrics attaches a metrics sink used to record per-query counters.
func (e *Executor) SetMetrics(m *metrics.Metrics) { e.metrics = m }

// sourceFor finds the table's source (primary or secondary) whose key
// columns are exactly keyColumnNames, in order — the same source a
// Stream's Source.KeyColumns or a Join's right-hand keys name.
func (st *Executor) sourceFor(tableName string, keyColumnNames []string) (*rowstore.Source, error) {
	table, err := st.store.Table(tableName)
	if err != nil {
		return nil, err
	}
	srcs, err := st.store.Sources(tableName)
	if err != nil {
		return nil, err
	}
	for _, s := range srcs {
		if columnNames(table, s.KeyCols) == nil {
			continue
		}
		if sameNames(columnNames(table, s.KeyCols), keyColumnNames) {
			return s, nil
		}
	}
	return nil, dberr.New(dberr.NotFound, "engine.sourceFor", "no source on "+tableName+" keyed on given columns")
}

func columnNames(t *schema.Table, cols []int) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = t.Columns[c].Name
	}
	return out
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// projectInto builds a full-width row (len(table.Columns)) with only the
// given column positions populated, for encoding a probe key.
func projectInto(table *schema.Table, cols []int, vals []value.Value) []value.Value {
	row := make([]value.Value, len(table.Columns))
	for i, c := range cols {
		row[c] = vals[i]
	}
	return row
}

// Select runs a Select query end-to-end and returns its final column
// list and concatenated, post-processed rows.
func (e *Executor) Select(sel query.Select) ([]string, [][]value.Value, error) {
	var columns []string
	var rows [][]value.Value

	for _, stream := range sel.Streams {
		streamColumns, err := e.sourceColumns(stream.Source)
		if err != nil {
			return nil, nil, err
		}
		outColumns, appender, err := e.buildPipeline(streamColumns, stream.Process, func(ctx *QueryContext, row []value.Value) {
			rows = append(rows, row)
		})
		if err != nil {
			return nil, nil, err
		}
		if columns == nil {
			columns = outColumns
		} else if !sameNames(columns, outColumns) {
			return nil, nil, dberr.New(dberr.BadRequest, "engine.Select", "streams of one select must share a column list")
		}

		scanned := appender
		if e.metrics != nil {
			scanned = func(ctx *QueryContext, row []value.Value) {
				e.metrics.RowsScannedTotal.Inc()
				appender(ctx, row)
			}
		}
		if err := e.scanStream(stream.Source, scanned); err != nil {
			return nil, nil, err
		}
	}

	rows = applyPostProcess(columns, rows, sel.PostProcess)
	return columns, rows, nil
}

// sourceColumns returns the column list a Source's rows carry before any
// ProcessItem runs.
func (e *Executor) sourceColumns(src query.Source) ([]string, error) {
	switch src.Kind {
	case query.SourceTable:
		table, err := e.store.Table(src.TableName)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(table.Columns))
		for i, c := range table.Columns {
			out[i] = c.Name
		}
		return out, nil
	case query.SourceIota:
		return []string{src.IotaColumn}, nil
	default:
		return nil, dberr.New(dberr.BadRequest, "engine.sourceColumns", "unknown source kind")
	}
}

// scanStream drives a Source's cursor (or synthetic counter), calling
// appender for each row in key order until ctx.Ended or the source is
// exhausted.
func (e *Executor) scanStream(src query.Source, appender Appender) error {
	ctx := &QueryContext{store: e.store}

	switch src.Kind {
	case query.SourceIota:
		for i := src.IotaFrom; i <= src.IotaTo; i++ {
			if ctx.Ended {
				return nil
			}
			appender(ctx, []value.Value{value.NewU64(i)})
		}
		return nil

	case query.SourceTable:
		table, err := e.store.Table(src.TableName)
		if err != nil {
			return err
		}
		rsrc, err := e.sourceFor(src.TableName, src.KeyColumns)
		if err != nil {
			return err
		}

		var cursor btree.Cursor
		if len(src.From) > 0 {
			c, _, err := rsrc.Tree.Find(value.EncodeValues(src.From))
			if err != nil {
				return err
			}
			cursor = c
		} else {
			c, err := rsrc.Tree.FirstCursor()
			if err != nil {
				return err
			}
			cursor = c
		}

		for {
			if ctx.Ended {
				return nil
			}
			isEnd, err := rsrc.Tree.CursorIsEnd(cursor)
			if err != nil {
				return err
			}
			if isEnd {
				return nil
			}
			row, ok, err := e.store.st.CursorGetRow(src.TableName, rsrc, cursor)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if len(src.To) > 0 {
				keyVals, err := rsrc.DecodeKey(table, rsrc.EncodeKey(table, row))
				if err != nil {
					return err
				}
				cmp, err := compareKeyPrefix(keyVals, src.To)
				if err != nil {
					return err
				}
				if cmp > 0 {
					return nil
				}
			}
			appender(ctx, row)
			cursor, err = rsrc.Tree.CursorNext(cursor)
			if err != nil {
				return err
			}
		}

	default:
		return dberr.New(dberr.BadRequest, "engine.scanStream", "unknown source kind")
	}
}

// compareKeyPrefix compares the leading len(bound) columns of key
// against bound, value by value.
func compareKeyPrefix(key, bound []value.Value) (int, error) {
	n := len(bound)
	if n > len(key) {
		n = len(key)
	}
	for i := 0; i < n; i++ {
		c, err := value.Compare(key[i], bound[i])
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

func applyPostProcess(columns []string, rows [][]value.Value, items []query.PostProcessItem) [][]value.Value {
	for _, p := range items {
		switch p.Kind {
		case query.PostSortBy:
			idx := indexOf(columns, p.ColumnName)
			if idx < 0 {
				continue
			}
			sortRowsBy(rows, idx)
		case query.PostSkip:
			if p.Num >= len(rows) {
				rows = nil
			} else {
				rows = rows[p.Num:]
			}
		case query.PostLimit:
			if p.Num < len(rows) {
				rows = rows[:p.Num]
			}
		}
	}
	return rows
}

func sortRowsBy(rows [][]value.Value, col int) {
	// Simple insertion sort: result sets in this engine are not expected
	// to be large enough to need anything fancier, and it keeps equal
	// keys in scan order (stable), matching a plain ORDER BY.
	for i := 1; i < len(rows); i++ {
		j := i
		for j > 0 {
			c, err := value.Compare(rows[j-1][col], rows[j][col])
			if err != nil || c <= 0 {
				break
			}
			rows[j-1], rows[j] = rows[j], rows[j-1]
			j--
		}
	}
}
