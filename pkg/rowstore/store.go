package rowstore

import (
	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/internal/logger"
	"github.com/nainya/reldb/internal/metrics"
	"github.com/nainya/reldb/pkg/btree"
	"github.com/nainya/reldb/pkg/objectstore"
	"github.com/nainya/reldb/pkg/pager"
	"github.com/nainya/reldb/pkg/schema"
	"github.com/nainya/reldb/pkg/value"
)

const schemaObjectName = "schema"

// autoIncrementTable is the reserved table name from spec §4.4.
const autoIncrementTable = "auto_increment"

// Store is the row store / source catalog: a schema plus one live
// *btree.Tree per table source (primary and secondary), all sharing one
// pager-backed file.
type Store struct {
	pager   *pager.Pager
	objects *objectstore.Store
	schema  *schema.Schema
	sources map[string][]*Source // index 0 is always the primary source
	log     *logger.Logger
	metrics *metrics.Metrics
}

// Open opens or creates the database file at path, loading an existing
// schema catalog or initializing an empty one, and ensures the reserved
// auto_increment table exists.
func Open(path string) (*Store, error) {
	p, err := pager.Open(path)
	if err != nil {
		return nil, err
	}
	objs := objectstore.New(p)

	st := &Store{
		pager:   p,
		objects: objs,
		sources: map[string][]*Source{},
		log:     logger.GetGlobalLogger().RowStoreLogger(),
	}

	if p.Size() == 0 {
		if err := objs.Init(); err != nil {
			return nil, err
		}
		st.schema = schema.NewEmpty()
		if err := st.persistSchema(); err != nil {
			return nil, err
		}
	} else {
		raw, err := objs.Read(schemaObjectName)
		if err != nil {
			return nil, err
		}
		s, err := schema.Unmarshal(raw)
		if err != nil {
			return nil, err
		}
		st.schema = s
		if err := st.openSources(); err != nil {
			return nil, err
		}
	}

	if _, _, ok := st.schema.GetTable(autoIncrementTable); !ok {
		if err := st.createAutoIncrementTable(); err != nil {
			return nil, err
		}
	}

	return st, nil
}

// SetMetrics attaches a metrics sink to the store and every tree it
// already holds open.
func (st *Store) SetMetrics(m *metrics.Metrics) {
	st.metrics = m
	st.pager.SetMetrics(m)
	for _, srcs := range st.sources {
		for _, s := range srcs {
			s.Tree.SetMetrics(m)
		}
	}
	m.TablesTotal.Set(float64(len(st.schema.Tables)))
}

// Schema returns the live schema catalog. Callers must not mutate
// Tables directly; use CreateTable.
func (st *Store) Schema() *schema.Schema { return st.schema }

// Close flushes the pager.
func (st *Store) Close() error { return st.pager.Close() }

func (st *Store) persistSchema() error {
	raw, err := schema.Marshal(st.schema)
	if err != nil {
		return err
	}
	return st.objects.Write(schemaObjectName, raw)
}

// openSources rebuilds live *btree.Tree handles for every table/index
// root page recorded in the schema, after loading an existing catalog.
func (st *Store) openSources() error {
	for i := range st.schema.Tables {
		t := &st.schema.Tables[i]
		if err := st.openTableSources(t); err != nil {
			return err
		}
	}
	return nil
}

func (st *Store) openTableSources(t *schema.Table) error {
	primaryLayout := deriveLayout(t, t.PrimaryKey, complementColumns(t, t.PrimaryKey))
	primary := &Source{
		KeyCols: t.PrimaryKey,
		ValCols: complementColumns(t, t.PrimaryKey),
		Tree:    btree.Open(st.pager, t.RootPage, primaryLayout, t.Name),
	}
	srcs := []*Source{primary}

	for _, idx := range t.Indices {
		layout := deriveLayout(t, idx.ColumnIndices, t.PrimaryKey)
		srcs = append(srcs, &Source{
			Name:    idx.Name,
			KeyCols: idx.ColumnIndices,
			ValCols: t.PrimaryKey,
			Tree:    btree.Open(st.pager, idx.RootPage, layout, t.Name+"."+idx.Name),
		})
	}
	st.sources[t.Name] = srcs
	return nil
}

// deriveLayout picks a fixed-width key/value Layout when every projected
// column's type has a compile-time-known size, and falls back to
// variable-width (Layout{}) otherwise.
func deriveLayout(t *schema.Table, keyCols, valCols []int) btree.Layout {
	var l btree.Layout
	if w, ok := fixedWidth(t, keyCols); ok {
		l.KeySize = w
	}
	if w, ok := fixedWidth(t, valCols); ok {
		l.ValSize = w
	}
	return l
}

func fixedWidth(t *schema.Table, cols []int) (int, bool) {
	total := 0
	for _, c := range cols {
		typ := t.Columns[c].Type
		if !typ.Fixed() {
			return 0, false
		}
		v := value.Value{Typ: typ}
		total += v.Size()
	}
	return total, true
}

// CreateTable validates and registers a new table, allocating a fresh
// B+Tree root page for its primary source and for every declared
// secondary index, then persists the schema immediately.
func (st *Store) CreateTable(t schema.Table) error {
	if err := st.schema.AddTable(t); err != nil {
		return err
	}
	added := &st.schema.Tables[len(st.schema.Tables)-1]

	primaryLayout := deriveLayout(added, added.PrimaryKey, complementColumns(added, added.PrimaryKey))
	tree, err := btree.Create(st.pager, primaryLayout, added.Name)
	if err != nil {
		return err
	}
	added.RootPage = tree.Root()
	primary := &Source{KeyCols: added.PrimaryKey, ValCols: complementColumns(added, added.PrimaryKey), Tree: tree}
	srcs := []*Source{primary}

	for i := range added.Indices {
		idx := &added.Indices[i]
		layout := deriveLayout(added, idx.ColumnIndices, added.PrimaryKey)
		idxTree, err := btree.Create(st.pager, layout, added.Name+"."+idx.Name)
		if err != nil {
			return err
		}
		idx.RootPage = idxTree.Root()
		srcs = append(srcs, &Source{Name: idx.Name, KeyCols: idx.ColumnIndices, ValCols: added.PrimaryKey, Tree: idxTree})
	}
	if st.metrics != nil {
		for _, s := range srcs {
			s.Tree.SetMetrics(st.metrics)
		}
		st.metrics.TablesTotal.Set(float64(len(st.schema.Tables)))
		st.metrics.IndicesTotal.Add(float64(len(added.Indices)))
	}
	st.sources[added.Name] = srcs
	st.log.Info("created table").Str("table", added.Name).Send()
	return st.persistSchema()
}

// Table returns the schema definition for name.
func (st *Store) Table(name string) (*schema.Table, error) {
	_, t, ok := st.schema.GetTable(name)
	if !ok {
		return nil, dberr.New(dberr.NotFound, "rowstore.Table", "no table "+name)
	}
	return t, nil
}

// Sources returns every source of a table: index 0 is the primary
// source, the rest are secondary index sources in declaration order.
func (st *Store) Sources(tableName string) ([]*Source, error) {
	srcs, ok := st.sources[tableName]
	if !ok {
		return nil, dberr.New(dberr.NotFound, "rowstore.Sources", "no table "+tableName)
	}
	return srcs, nil
}

// Source returns one named source of a table ("" for the primary).
func (st *Store) Source(tableName, sourceName string) (*Source, error) {
	srcs, err := st.Sources(tableName)
	if err != nil {
		return nil, err
	}
	for _, s := range srcs {
		if s.Name == sourceName {
			return s, nil
		}
	}
	return nil, dberr.New(dberr.NotFound, "rowstore.Source", "no source "+sourceName+" on table "+tableName)
}
