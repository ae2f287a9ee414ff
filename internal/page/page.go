// Package page implements the fixed-size in-memory page abstraction: a
// pinnable, latched byte buffer with disk I/O primitives.
package page

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"bufferpoold/internal/layout"

	"github.com/ncw/directio"
)

// Page is a cached page instance. A Page is created once by the cache on a
// miss and reused for the lifetime of its residency; data is never
// reallocated after construction.
type Page struct {
	id   layout.PageNo // immutable
	size uint32        // immutable, matches the size class of id

	pinCount atomic.Int64
	dirty    atomic.Bool
	loaded   atomic.Bool
	lsn      uint64 // reserved metadata, never consulted by cache policy

	latch sync.RWMutex // protects data and the loaded/dirty transitions
	data  []byte
}

// New allocates a Page for id with the given size. The backing buffer is
// allocated with directio.AlignedBlock so the page is safe to use with
// O_DIRECT-opened files.
func New(id layout.PageNo, size uint32) *Page {
	return &Page{
		id:   id,
		size: size,
		data: directio.AlignedBlock(int(size)),
	}
}

// ID returns the page's logical page number.
func (p *Page) ID() layout.PageNo { return p.id }

// Size returns the page's size in bytes.
func (p *Page) Size() uint32 { return p.size }

// IsDirty reports whether the page's in-memory contents differ from disk.
func (p *Page) IsDirty() bool { return p.dirty.Load() }

// IsLoaded reports whether the page's buffer reflects a disk read or a
// client write.
func (p *Page) IsLoaded() bool { return p.loaded.Load() }

// PinCount returns the current pin count.
func (p *Page) PinCount() int64 { return p.pinCount.Load() }

// LSN returns the reserved log-sequence-number field. Not consulted by any
// cache policy; reserved for a future write-ahead log.
func (p *Page) LSN() uint64 { return p.lsn }

// SetLSN sets the reserved LSN field.
func (p *Page) SetLSN(lsn uint64) { p.lsn = lsn }

// Pin increments the pin count, asserting the page must not be evicted.
func (p *Page) Pin() {
	p.pinCount.Add(1)
}

// Unpin decrements the pin count. Unpinning a page whose count is already
// zero is a defensive no-op that keeps the count at zero -- it signals a
// caller bug but must never drive the count negative.
func (p *Page) Unpin() {
	for {
		cur := p.pinCount.Load()
		if cur <= 0 {
			p.pinCount.Store(0)
			return
		}
		if p.pinCount.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// PinGuard pins a page on construction and unpins it on every exit path via
// Release. The cache engine does not use it: it pins under its own mutex
// and releases the pin with a deferred Unpin.
type PinGuard struct {
	page *Page
}

// Pin constructs a PinGuard, pinning p.
func Pin(p *Page) PinGuard {
	p.Pin()
	return PinGuard{page: p}
}

// Release unpins the guarded page. Safe to call multiple times; only the
// first call has an effect.
func (g *PinGuard) Release() {
	if g.page == nil {
		return
	}
	g.page.Unpin()
	g.page = nil
}

// ReadAt copies min(len(out), size-offset) bytes from the page into out
// under a shared latch, returning the number of bytes copied. Returns 0 if
// offset is out of range or the page has never been loaded.
func (p *Page) ReadAt(offset uint32, out []byte) int {
	if offset >= p.size {
		return 0
	}
	p.latch.RLock()
	defer p.latch.RUnlock()
	if !p.loaded.Load() {
		return 0
	}
	n := min(len(out), int(p.size-offset))
	copy(out[:n], p.data[offset:offset+uint32(n)])
	return n
}

// WriteAt copies min(len(buf), size-offset) bytes from buf into the page
// under an exclusive latch, marking the page loaded and dirty. Returns 0 if
// offset is out of range.
func (p *Page) WriteAt(offset uint32, buf []byte) int {
	if offset >= p.size {
		return 0
	}
	p.latch.Lock()
	defer p.latch.Unlock()
	n := min(len(buf), int(p.size-offset))
	copy(p.data[offset:offset+uint32(n)], buf[:n])
	p.loaded.Store(true)
	p.dirty.Store(true)
	return n
}

// Snapshot returns a copy of the page's current bytes under a shared latch,
// for diagnostics (e.g. checksum logging) that must never observe a torn
// read and must never hold the page's own buffer past the call.
func (p *Page) Snapshot() []byte {
	p.latch.RLock()
	defer p.latch.RUnlock()
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// LoadFromFD fills the page's buffer from fd starting at fileOffset,
// retrying transient interruptions and zero-padding on a short read (the
// page is treated as sparse/uninitialized past EOF). On success the page is
// marked loaded and not dirty. On a hard I/O failure it returns false and
// leaves loaded unchanged.
func (p *Page) LoadFromFD(fd *os.File, fileOffset int64) bool {
	p.latch.Lock()
	defer p.latch.Unlock()

	total := 0
	for total < int(p.size) {
		n, err := fd.ReadAt(p.data[total:], fileOffset+int64(total))
		if n > 0 {
			total += n
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				for i := total; i < int(p.size); i++ {
					p.data[i] = 0
				}
				total = int(p.size)
				break
			}
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return false
		}
	}
	p.loaded.Store(true)
	p.dirty.Store(false)
	return true
}

// FlushToFD writes the page's buffer to fd at fileOffset if the page is
// dirty. If the page was never loaded, returns false without writing. If the
// page is loaded but not dirty, returns true without any I/O. Otherwise it
// copies the buffer under a shared latch, releases the latch, then performs
// the write I/O so a flush only blocks writers for the duration of a single
// memcpy.
func (p *Page) FlushToFD(fd *os.File, fileOffset int64) bool {
	p.latch.RLock()
	if !p.loaded.Load() {
		p.latch.RUnlock()
		return false
	}
	if !p.dirty.Load() {
		p.latch.RUnlock()
		return true
	}
	scratch := directio.AlignedBlock(int(p.size))
	copy(scratch, p.data)
	p.latch.RUnlock()

	total := 0
	for total < int(p.size) {
		n, err := fd.WriteAt(scratch[total:], fileOffset+int64(total))
		if n > 0 {
			total += n
		}
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return false
		}
	}
	p.dirty.Store(false)
	return true
}
