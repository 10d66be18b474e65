package engine

import (
	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/pkg/query"
	"github.com/nainya/reldb/pkg/value"
)

// QueryContext threads the store and the shared end-of-scan flag
// through the appender chain; Limit sets Ended to stop the driver loop.
type QueryContext struct {
	store *rowStoreView
	Ended bool
}

// Appender is one stage of the push-style pipeline: it receives a
// fully-evaluated row and forwards zero or more rows to the next stage.
type Appender func(ctx *QueryContext, row []value.Value)

// resolvedExpr is Expr pre-resolved against a concrete input column
// list: either a column index or a constant, or a stateful counter.
type resolvedExpr struct {
	kind query.ExprKind
	col  int
	data value.Value
	next value.Value // Enumerate's current counter value
}

func resolveExpr(e query.Expr, columns []string) (resolvedExpr, error) {
	switch e.Kind {
	case query.ExprColumn:
		i := indexOf(columns, e.Column)
		if i < 0 {
			return resolvedExpr{}, dberr.New(dberr.NotFound, "engine.resolveExpr", "no column "+e.Column)
		}
		return resolvedExpr{kind: query.ExprColumn, col: i}, nil
	case query.ExprData:
		return resolvedExpr{kind: query.ExprData, data: e.Data}, nil
	case query.ExprEnumerate:
		return resolvedExpr{kind: query.ExprEnumerate, next: e.Seed}, nil
	default:
		return resolvedExpr{}, dberr.New(dberr.BadRequest, "engine.resolveExpr", "unknown expr kind")
	}
}

// eval evaluates a resolved expression against row, advancing its
// internal counter if it is an Enumerate.
func (r *resolvedExpr) eval(row []value.Value) (value.Value, error) {
	switch r.kind {
	case query.ExprColumn:
		return row[r.col], nil
	case query.ExprData:
		return r.data, nil
	case query.ExprEnumerate:
		cur := r.next
		adv, err := value.Increment(cur)
		if err != nil {
			return value.Value{}, err
		}
		r.next = adv
		return cur, nil
	default:
		return value.Value{}, dberr.New(dberr.BadRequest, "engine.eval", "unknown expr kind")
	}
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

// columnsAfter computes the output column list of one ProcessItem given
// its input column list, mirroring the original engine's
// select_process_item_column.
func columnsAfter(st *Executor, p query.ProcessItem, columns []string) ([]string, error) {
	switch p.Kind {
	case query.ProcessSelect:
		out := make([]string, len(p.Projections))
		for i, proj := range p.Projections {
			out[i] = proj.Name
		}
		return out, nil
	case query.ProcessFilter:
		return columns, nil
	case query.ProcessJoin:
		table, err := st.store.Table(p.JoinTable)
		if err != nil {
			return nil, err
		}
		out := append([]string{}, columns...)
		for _, c := range table.Columns {
			out = append(out, p.JoinTable+"."+c.Name)
		}
		return out, nil
	case query.ProcessDistinct:
		return columns, nil
	case query.ProcessAddColumn:
		return append(append([]string{}, columns...), p.AddColumnName), nil
	case query.ProcessSkip, query.ProcessLimit:
		return columns, nil
	default:
		return nil, dberr.New(dberr.BadRequest, "engine.columnsAfter", "unknown process item kind")
	}
}

// buildPipeline folds process right-to-left, each ProcessItem wrapping
// the next appender, returning the pipeline's final output column list
// and the head appender a driver loop should call per scanned row.
func (st *Executor) buildPipeline(columns []string, process []query.ProcessItem, terminal Appender) ([]string, Appender, error) {
	columnChain := [][]string{columns}
	for _, p := range process {
		next, err := columnsAfter(st, p, columnChain[len(columnChain)-1])
		if err != nil {
			return nil, nil, err
		}
		columnChain = append(columnChain, next)
	}

	appender := terminal
	for i := len(process) - 1; i >= 0; i-- {
		pre, post := columnChain[i], columnChain[i+1]
		wrapped, err := st.processItemAppender(process[i], appender, pre, post)
		if err != nil {
			return nil, nil, err
		}
		appender = wrapped
	}
	return columnChain[len(columnChain)-1], appender, nil
}

func (st *Executor) processItemAppender(p query.ProcessItem, next Appender, pre, post []string) (Appender, error) {
	switch p.Kind {
	case query.ProcessSelect:
		exprs := make([]resolvedExpr, len(p.Projections))
		for i, proj := range p.Projections {
			r, err := resolveExpr(proj.Expr, pre)
			if err != nil {
				return nil, err
			}
			exprs[i] = r
		}
		return func(ctx *QueryContext, row []value.Value) {
			out := make([]value.Value, len(exprs))
			for i := range exprs {
				v, err := exprs[i].eval(row)
				if err != nil {
					continue
				}
				out[i] = v
			}
			next(ctx, out)
		}, nil

	case query.ProcessFilter:
		tree, err := buildFilterTree(p.FilterItems, pre)
		if err != nil {
			return nil, err
		}
		return func(ctx *QueryContext, row []value.Value) {
			ok, err := tree.eval(row)
			if err != nil || !ok {
				if st.metrics != nil {
					st.metrics.RowsFilteredTotal.Inc()
				}
				return
			}
			next(ctx, row)
		}, nil

	case query.ProcessJoin:
		leftIdx := make([]int, len(p.JoinLeftKeys))
		for i, k := range p.JoinLeftKeys {
			leftIdx[i] = indexOf(pre, k)
		}
		table, err := st.store.Table(p.JoinTable)
		if err != nil {
			return nil, err
		}
		rightIdx := make([]int, len(p.JoinRightKeys))
		for i, k := range p.JoinRightKeys {
			ci, _, found := table.GetColumn(k)
			if !found {
				return nil, dberr.New(dberr.NotFound, "engine.Join", "no column "+k+" on "+p.JoinTable)
			}
			rightIdx[i] = ci
		}
		src, err := st.sourceFor(p.JoinTable, p.JoinRightKeys)
		if err != nil {
			return nil, err
		}
		return func(ctx *QueryContext, row []value.Value) {
			probe := make([]value.Value, len(leftIdx))
			for i, li := range leftIdx {
				probe[i] = row[li]
			}
			probeKey := src.EncodeKey(table, projectInto(table, src.KeyCols, probe))
			cursor, found, err := src.Tree.Find(probeKey)
			if err != nil || !found {
				return
			}
			for {
				rightRow, ok, err := ctx.store.st.CursorGetRow(p.JoinTable, src, cursor)
				if err != nil || !ok {
					return
				}
				match := true
				for i := range leftIdx {
					if !value.Equal(rightRow[rightIdx[i]], row[leftIdx[i]]) {
						match = false
						break
					}
				}
				if !match {
					return
				}
				combined := append(append([]value.Value{}, row...), rightRow...)
				if st.metrics != nil {
					st.metrics.RowsJoinedTotal.Inc()
				}
				next(ctx, combined)
				cursor, err = src.Tree.CursorNext(cursor)
				if err != nil {
					return
				}
			}
		}, nil

	case query.ProcessDistinct:
		idx := make([]int, len(p.DistinctColumns))
		for i, c := range p.DistinctColumns {
			idx[i] = indexOf(pre, c)
		}
		seen := map[string]bool{}
		return func(ctx *QueryContext, row []value.Value) {
			key := distinctKey(row, idx)
			if seen[key] {
				return
			}
			seen[key] = true
			next(ctx, row)
		}, nil

	case query.ProcessAddColumn:
		expr, err := resolveExpr(p.AddColumnExpr, pre)
		if err != nil {
			return nil, err
		}
		return func(ctx *QueryContext, row []value.Value) {
			v, err := expr.eval(row)
			if err != nil {
				return
			}
			next(ctx, append(append([]value.Value{}, row...), v))
		}, nil

	case query.ProcessSkip:
		remaining := p.Num
		return func(ctx *QueryContext, row []value.Value) {
			if remaining > 0 {
				remaining--
				return
			}
			next(ctx, row)
		}, nil

	case query.ProcessLimit:
		remaining := p.Num
		return func(ctx *QueryContext, row []value.Value) {
			if remaining <= 0 {
				ctx.Ended = true
				return
			}
			remaining--
			next(ctx, row)
			if remaining == 0 {
				ctx.Ended = true
			}
		}, nil

	default:
		return nil, dberr.New(dberr.BadRequest, "engine.processItemAppender", "unknown process item kind")
	}
}

func distinctKey(row []value.Value, idx []int) string {
	out := make([]byte, 0, 16*len(idx))
	for _, i := range idx {
		out = row[i].Encode(out)
	}
	return string(out)
}

// filterNode is the evaluated form of a FilterItem tree. vacuousTrue
// marks the empty-filter-list node, which always passes regardless of
// row width — it carries no left/right/lhs/rhs to evaluate.
type filterNode struct {
	op          query.FilterOp
	left, right resolvedExpr
	lhs, rhs    *filterNode
	vacuousTrue bool
}

func buildFilterTree(items []query.FilterItem, columns []string) (*filterNode, error) {
	// A process item carries a list of filters that must ALL hold — the
	// same "every item must pass" semantics spec.md §9's FilterItem Eq
	// list had, generalized to the full boolean tree: fold the list with
	// And.
	if len(items) == 0 {
		return &filterNode{vacuousTrue: true}, nil
	}
	nodes := make([]*filterNode, len(items))
	for i, it := range items {
		n, err := buildFilterNode(it, columns)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	acc := nodes[0]
	for _, n := range nodes[1:] {
		acc = &filterNode{op: query.FilterAnd, lhs: acc, rhs: n}
	}
	return acc, nil
}

func buildFilterNode(item query.FilterItem, columns []string) (*filterNode, error) {
	switch item.Op {
	case query.FilterAnd, query.FilterOr:
		lhs, err := buildFilterNode(*item.LHS, columns)
		if err != nil {
			return nil, err
		}
		rhs, err := buildFilterNode(*item.RHS, columns)
		if err != nil {
			return nil, err
		}
		return &filterNode{op: item.Op, lhs: lhs, rhs: rhs}, nil
	default:
		l, err := resolveExpr(item.Left, columns)
		if err != nil {
			return nil, err
		}
		r, err := resolveExpr(item.Right, columns)
		if err != nil {
			return nil, err
		}
		return &filterNode{op: item.Op, left: l, right: r}, nil
	}
}

func (n *filterNode) eval(row []value.Value) (bool, error) {
	if n.vacuousTrue {
		return true, nil
	}
	switch n.op {
	case query.FilterAnd:
		l, err := n.lhs.eval(row)
		if err != nil || !l {
			return false, err
		}
		return n.rhs.eval(row)
	case query.FilterOr:
		l, err := n.lhs.eval(row)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return n.rhs.eval(row)
	default:
		left, err := n.left.eval(row)
		if err != nil {
			return false, err
		}
		right, err := n.right.eval(row)
		if err != nil {
			return false, err
		}
		c, err := value.Compare(left, right)
		if err != nil {
			return false, err
		}
		switch n.op {
		case query.FilterEq:
			return c == 0, nil
		case query.FilterNe:
			return c != 0, nil
		case query.FilterLt:
			return c < 0, nil
		case query.FilterLe:
			return c <= 0, nil
		case query.FilterGt:
			return c > 0, nil
		case query.FilterGe:
			return c >= 0, nil
		default:
			return false, dberr.New(dberr.BadRequest, "engine.filterNode.eval", "unknown filter op")
		}
	}
}
