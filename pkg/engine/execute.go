package engine

import (
	"time"

	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/pkg/query"
	"github.com/nainya/reldb/pkg/value"
)

// Result holds a Select's output; Insert/Delete/Update report only a
// row count via RowsAffected.
type Result struct {
	Columns      []string
	Rows         [][]value.Value
	RowsAffected int
}

// Execute runs q and logs/records its completion under its Kind, the
// single entry point front ends should call.
func (e *Executor) Execute(q query.Query) (Result, error) {
	start := time.Now()
	kind := queryKindName(q.Kind)
	res, err := e.execute(q)
	e.log.LogQuery(kind, time.Since(start), len(res.Rows)+res.RowsAffected, err)
	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordQuery(kind, status, time.Since(start))
	}
	return res, err
}

func (e *Executor) execute(q query.Query) (Result, error) {
	switch q.Kind {
	case query.KindSelect:
		if q.Select == nil {
			return Result{}, dberr.New(dberr.BadRequest, "engine.Execute", "Select query with no Select body")
		}
		columns, rows, err := e.Select(*q.Select)
		return Result{Columns: columns, Rows: rows}, err

	case query.KindInsert:
		if q.Insert == nil {
			return Result{}, dberr.New(dberr.BadRequest, "engine.Execute", "Insert query with no Insert body")
		}
		err := e.Insert(*q.Insert)
		affected := 0
		if err == nil {
			affected = 1
			if q.Insert.Kind == query.InsertSelect {
				affected = -1 // exact count not tracked for Select-driven bulk insert
			}
		}
		return Result{RowsAffected: affected}, err

	case query.KindDelete:
		if q.Delete == nil {
			return Result{}, dberr.New(dberr.BadRequest, "engine.Execute", "Delete query with no Delete body")
		}
		n, err := e.Delete(*q.Delete)
		return Result{RowsAffected: n}, err

	case query.KindUpdate:
		if q.Update == nil {
			return Result{}, dberr.New(dberr.BadRequest, "engine.Execute", "Update query with no Update body")
		}
		n, err := e.Update(*q.Update)
		return Result{RowsAffected: n}, err

	default:
		return Result{}, dberr.New(dberr.BadRequest, "engine.Execute", "unknown query kind")
	}
}

func queryKindName(k query.Kind) string {
	switch k {
	case query.KindSelect:
		return "select"
	case query.KindInsert:
		return "insert"
	case query.KindDelete:
		return "delete"
	case query.KindUpdate:
		return "update"
	default:
		return "unknown"
	}
}
