// Package pager owns the backing database file and exposes fixed-size
// pages by index, with a resident page cache and write-back flushing.
package pager

import (
	"os"

	"github.com/nainya/reldb/internal/dberr"
	"github.com/nainya/reldb/internal/logger"
	"github.com/nainya/reldb/internal/metrics"
)

// PageSize is the fixed size in bytes of every page, matching the B+Tree
// node size and the Simple Object Store's payload chunking.
const PageSize = 4096

// Page is one fixed-size buffer.
type Page [PageSize]byte

// Pager maps page indices to fixed-size buffers backed by a single file
// at offset index*PageSize, caching resident pages and tracking which
// ones have been mutated since the last save.
type Pager struct {
	file    *os.File
	count   int // page count, monotonically non-decreasing
	pages   []*Page
	dirty   []bool
	log     *logger.Logger
	metrics *metrics.Metrics
}

// Open opens or creates the file at path and computes the current page
// count from its length. A zero-length (or newly created) file starts
// with a page count of zero.
func Open(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberr.Wrap(dberr.Io, "pager.Open", "opening database file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.Io, "pager.Open", "statting database file", err)
	}
	count := int(info.Size() / PageSize)

	p := &Pager{
		file:  f,
		count: count,
		pages: make([]*Page, count),
		dirty: make([]bool, count),
		log:   logger.GetGlobalLogger().PagerLogger(),
	}
	return p, nil
}

// SetMetrics attaches a metrics sink; optional, defaults to no-op.
func (p *Pager) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Size returns the current page count.
func (p *Pager) Size() int {
	return p.count
}

// grow extends the in-memory bookkeeping slices up to and including
// index i, without touching the file.
func (p *Pager) grow(i int) {
	for i >= len(p.pages) {
		p.pages = append(p.pages, nil)
		p.dirty = append(p.dirty, false)
	}
	if i+1 > p.count {
		p.count = i + 1
	}
}

// load reads page i from disk into the cache if it is not already
// resident, materializing an all-zero page if i is past end of file.
func (p *Pager) load(i int) error {
	if p.pages[i] != nil {
		return nil
	}
	var buf Page
	n, err := p.file.ReadAt(buf[:], int64(i)*PageSize)
	if err != nil && n == 0 {
		// Short or absent page: treat as all-zero, matching the
		// pager's "materialize as zero past EOF" contract.
		p.pages[i] = &Page{}
		return nil
	}
	p.pages[i] = &buf
	if p.metrics != nil {
		p.metrics.PageReadsTotal.Inc()
	}
	return nil
}

// GetRef returns a read-only view of page i. If i is past end-of-file
// the page is materialized as all-zero and the page count is extended.
func (p *Pager) GetRef(i int) (*Page, error) {
	p.grow(i)
	if err := p.load(i); err != nil {
		return nil, err
	}
	return p.pages[i], nil
}

// GetMut returns a mutable view of page i and marks it dirty. If i is
// past end-of-file the page is materialized as all-zero and the page
// count is extended.
func (p *Pager) GetMut(i int) (*Page, error) {
	p.grow(i)
	if err := p.load(i); err != nil {
		return nil, err
	}
	p.dirty[i] = true
	if p.metrics != nil {
		p.metrics.PageWritesTotal.Inc()
	}
	return p.pages[i], nil
}

// Push appends page as a new page at the end and returns its index.
func (p *Pager) Push(page *Page) int {
	idx := p.count
	p.grow(idx)
	p.pages[idx] = page
	p.dirty[idx] = true
	if p.metrics != nil {
		p.metrics.PageWritesTotal.Inc()
		p.metrics.PageCacheResident.Set(float64(p.count))
	}
	return idx
}

// Swap replaces page i with the given buffer and returns the page's
// previous contents, marking the new contents dirty.
func (p *Pager) Swap(i int, page *Page) (*Page, error) {
	old, err := p.GetRef(i)
	if err != nil {
		return nil, err
	}
	prev := *old
	p.pages[i] = page
	p.dirty[i] = true
	return &prev, nil
}

// Save writes every dirty cached page back to the file at its offset
// and clears dirty flags. I/O errors are fatal to the caller; there is
// no retry and no guarantee of atomicity across pages.
func (p *Pager) Save() error {
	flushed := 0
	for i, dirty := range p.dirty {
		if !dirty || p.pages[i] == nil {
			continue
		}
		if _, err := p.file.WriteAt(p.pages[i][:], int64(i)*PageSize); err != nil {
			return dberr.Wrap(dberr.Io, "pager.Save", "writing page", err)
		}
		p.dirty[i] = false
		flushed++
	}
	if flushed > 0 {
		p.log.Debug("flushed dirty pages").Int("count", flushed).Send()
		if p.metrics != nil {
			for i := 0; i < flushed; i++ {
				p.metrics.PageFlushesTotal.Inc()
			}
		}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (p *Pager) Close() error {
	if err := p.Save(); err != nil {
		return err
	}
	if err := p.file.Close(); err != nil {
		return dberr.Wrap(dberr.Io, "pager.Close", "closing database file", err)
	}
	return nil
}
