// Package passthrough implements a reference cache variant with no
// in-memory page table: every GET/SET performs direct positional I/O
// against the backing file, through a fixed pool of per-worker file
// descriptors indexed by thread_index to avoid lseek contention between
// concurrent connections. Useful for exercising the dispatcher contract
// without LRU semantics in the way; not meant as a production cache.
package passthrough

import (
	"fmt"
	"log"
	"os"

	"bufferpoold/internal/layout"
)

// poolSize is the number of independent pooled file descriptors.
const poolSize = 32

// Cache is the pass-through reference cache.
type Cache struct {
	layout layout.SizeLayout
	fds    [poolSize]*os.File
}

// Open opens poolSize independent file descriptors on the backing file at
// path so concurrent workers avoid contending on a shared seek cursor.
func Open(path string, l layout.SizeLayout) (*Cache, error) {
	c := &Cache{layout: l}
	for i := range c.fds {
		fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
		if err != nil {
			for j := 0; j < i; j++ {
				c.fds[j].Close()
			}
			return nil, fmt.Errorf("passthrough: open backing file: %w", err)
		}
		c.fds[i] = fd
	}
	return c, nil
}

// ReadPage reads size bytes of page no directly from disk into out, beyond
// EOF reading as zero. threadIdx selects the pooled fd to avoid lseek
// contention between concurrent workers.
func (c *Cache) ReadPage(no layout.PageNo, size uint32, out []byte, threadIdx int) error {
	offset, fd, err := c.resolve(no, size, threadIdx)
	if err != nil {
		return err
	}
	n, err := fd.ReadAt(out[:size], offset)
	if err != nil && n < int(size) {
		for i := n; i < int(size); i++ {
			out[i] = 0
		}
	}
	return nil
}

// WritePage writes size bytes of in directly to disk at page no's offset.
func (c *Cache) WritePage(no layout.PageNo, size uint32, in []byte, threadIdx int) error {
	offset, fd, err := c.resolve(no, size, threadIdx)
	if err != nil {
		return err
	}
	_, err = fd.WriteAt(in[:size], offset)
	return err
}

// resolve validates (no, size) against the layout and picks a pooled fd by
// threadIdx % poolSize.
func (c *Cache) resolve(no layout.PageNo, size uint32, threadIdx int) (int64, *os.File, error) {
	classSize, ok := c.layout.SizeClassOf(no)
	if !ok {
		return 0, nil, fmt.Errorf("passthrough: page_no %d out of range", no)
	}
	if classSize != size {
		return 0, nil, fmt.Errorf("passthrough: page_size mismatch for page %d: wire=%d layout=%d", no, size, classSize)
	}
	offset, _ := c.layout.OffsetOf(no)
	return offset, c.fds[threadIdx%poolSize], nil
}

// ShowHitRate only logs that a hit rate does not apply: this cache performs
// no in-memory caching, so it has no notion of a hit or a miss.
func (c *Cache) ShowHitRate(logger *log.Logger) {
	logger.Printf("[passthrough] show_hit_rate: not applicable, this cache performs no in-memory caching")
}

// Close closes every pooled file descriptor.
func (c *Cache) Close() error {
	var first error
	for _, fd := range c.fds {
		if fd == nil {
			continue
		}
		if err := fd.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
