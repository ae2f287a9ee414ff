// Package cache implements the CacheEngine: a pinnable, LRU-ordered,
// capacity-bounded page table that services read/write requests, performs
// demand loading, eviction, and write-back to the backing file, under a
// single mutex for table/LRU bookkeeping plus a per-page latch for data.
package cache

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"bufferpoold/internal/diag"
	"bufferpoold/internal/layout"
	"bufferpoold/internal/lru"
	"bufferpoold/internal/page"

	"github.com/ncw/directio"
)

// Pool is the interface the dispatcher calls into, implemented by both the
// LRU cache engine here and the pass-through reference cache.
// threadIdx identifies the calling worker's stable per-connection index.
// The LRU engine ignores it; the pass-through cache uses it to pick a
// pooled file descriptor.
type Pool interface {
	ReadPage(no layout.PageNo, size uint32, out []byte, threadIdx int) error
	WritePage(no layout.PageNo, size uint32, in []byte, threadIdx int) error
	ShowHitRate(logger *log.Logger)
	Close() error
}

// ErrSizeMismatch is returned when the wire page_size does not equal the
// layout's size class for page_no.
var ErrSizeMismatch = fmt.Errorf("cache: page_size does not match layout size class")

// ErrOutOfRange is returned when page_no is beyond the declared layout.
var ErrOutOfRange = fmt.Errorf("cache: page_no out of range")

type entry struct {
	page *page.Page
	node *lru.Node
}

// Engine is the capacity-bounded, LRU-ordered page cache.
type Engine struct {
	layout   layout.SizeLayout
	capacity int
	fd       *os.File
	logger   *log.Logger

	mu        sync.Mutex
	pageTable map[layout.PageNo]*entry
	recency   *lru.List

	hits   atomic.Int64
	misses atomic.Int64
}

// Open constructs an Engine backed by the file at path (created if absent,
// mode 0666) with the given layout and resident-page capacity.
func Open(path string, l layout.SizeLayout, capacity int, logger *log.Logger) (*Engine, error) {
	fd, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("cache: open backing file: %w", err)
	}
	return &Engine{
		layout:    l,
		capacity:  capacity,
		fd:        fd,
		logger:    logger,
		pageTable: make(map[layout.PageNo]*entry),
		recency:   lru.New(),
	}, nil
}

// ReadPage copies size bytes of page no's content into out. threadIdx is
// unused by the LRU engine (all I/O goes through the shared backing fd).
func (e *Engine) ReadPage(no layout.PageNo, size uint32, out []byte, threadIdx int) error {
	p, err := e.resolve(no, size)
	if err != nil {
		return err
	}
	defer p.Unpin()
	if p.ReadAt(0, out[:size]) == 0 {
		// The page never loaded: hand back what its buffer holds (zeros
		// for a fresh page) instead of leaving out untouched.
		copy(out[:size], p.Snapshot())
	}
	return nil
}

// WritePage copies size bytes from in into page no's content. threadIdx is
// unused by the LRU engine.
func (e *Engine) WritePage(no layout.PageNo, size uint32, in []byte, threadIdx int) error {
	p, err := e.resolve(no, size)
	if err != nil {
		return err
	}
	defer p.Unpin()
	p.WriteAt(0, in[:size])
	return nil
}

// resolve validates the request, resolves (or creates and loads) the Page
// for no, and updates LRU recency and hit/miss counters. It pins the page
// while the cache-wide mutex is still held so the page cannot be selected
// for eviction in the window between resolution and the caller's access --
// the mutex is held only for table/LRU bookkeeping and the pin increment;
// disk I/O for a miss happens after the mutex is released. The returned
// page is pinned; callers must Unpin it when done.
func (e *Engine) resolve(no layout.PageNo, size uint32) (*page.Page, error) {
	classSize, ok := e.layout.SizeClassOf(no)
	if !ok {
		return nil, ErrOutOfRange
	}
	if classSize != size {
		e.logger.Printf("[CacheEngine] page_size mismatch for page %d: wire=%d layout=%d", no, size, classSize)
		return nil, ErrSizeMismatch
	}

	e.mu.Lock()
	if ent, found := e.pageTable[no]; found {
		e.hits.Add(1)
		e.recency.MoveToFront(ent.node)
		ent.page.Pin()
		e.mu.Unlock()
		return ent.page, nil
	}
	e.misses.Add(1)
	e.evictIfNeeded()

	offset, _ := e.layout.OffsetOf(no)
	p := page.New(no, size)
	p.Pin()
	node := e.recency.PushFront(no)
	e.pageTable[no] = &entry{page: p, node: node}
	e.mu.Unlock()

	if !p.LoadFromFD(e.fd, offset) {
		e.logger.Printf("[CacheEngine] load_from_fd failed for page %d, returning zero-initialized buffer", no)
	} else {
		diag.LogLoad(e.logger, diag.XXHash, no, p.Snapshot())
	}
	return p, nil
}

// evictIfNeeded scans the recency list from the LRU end toward the MRU end
// for the first unpinned page, flushes it if dirty, and drops it. The
// cache-wide mutex must be held on entry. If no unpinned page is found, it
// logs a warning and returns, leaving the cache transiently over capacity:
// insertion still proceeds rather than stalling the caller.
func (e *Engine) evictIfNeeded() {
	if len(e.pageTable) < e.capacity {
		return
	}
	for n := e.recency.Back(); n != nil; {
		prev := n.Prev()
		no := n.Key()
		ent := e.pageTable[no]
		if ent.page.PinCount() == 0 {
			if ent.page.IsDirty() {
				offset, _ := e.layout.OffsetOf(no)
				diag.LogFlush(e.logger, diag.XXHash, no, ent.page.Snapshot())
				if !ent.page.FlushToFD(e.fd, offset) {
					e.logger.Printf("[CacheEngine] flush_to_fd failed for evicted page %d; dropping dirty page anyway", no)
				}
			}
			e.recency.Remove(n)
			delete(e.pageTable, no)
			return
		}
		n = prev
	}
	e.logger.Printf("[CacheEngine] warning: all resident pages pinned, cannot evict; cache will transiently exceed capacity")
}

// Counters returns the raw hit and miss counts, for tests and diagnostics.
func (e *Engine) Counters() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}

// ShowHitRate logs the hit rate and the raw hit and total access counts.
func (e *Engine) ShowHitRate(logger *log.Logger) {
	hits := e.hits.Load()
	misses := e.misses.Load()
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = 100 * float64(hits) / float64(total)
	}
	logger.Printf("[CacheEngine] hit rate: %.2f%% (%d / %d)", rate, hits, total)
}

// Close flushes every dirty resident page to disk and closes the backing
// file descriptor. Flush failures are logged; Close always closes the fd.
func (e *Engine) Close() error {
	e.mu.Lock()
	for no, ent := range e.pageTable {
		if ent.page.IsDirty() {
			offset, _ := e.layout.OffsetOf(no)
			diag.LogFlush(e.logger, diag.XXHash, no, ent.page.Snapshot())
			if !ent.page.FlushToFD(e.fd, offset) {
				e.logger.Printf("[CacheEngine] flush failed for page %d during shutdown", no)
			}
		}
	}
	e.mu.Unlock()
	return e.fd.Close()
}
