// Package layout implements the mapping between logical page numbers and
// byte offsets in the backing file under a heterogeneous page-size layout.
package layout

import "fmt"

// PageNo is a dense, non-negative logical page index across the whole file.
type PageNo uint32

// SizeClass is one entry in a SizeLayout: a page size and how many pages of
// that size are addressable.
type SizeClass struct {
	Size  uint32 // page size in bytes
	Count uint32 // number of pages of this size
}

// SizeLayout is the ordered sequence of (page_size, page_count) entries that
// defines the backing file's structure. It is immutable once constructed.
type SizeLayout struct {
	classes []SizeClass
}

// New validates and constructs a SizeLayout from classes already in ascending
// size order, as required by the config collaborator that builds it from the
// fixed [8 KiB, 16 KiB, 32 KiB, 2 MiB] command-line ordering. It panics if the
// classes are not strictly ascending by size or contain a duplicate size --
// these are process-configuration bugs, not per-request errors.
func New(classes []SizeClass) SizeLayout {
	for i, c := range classes {
		if c.Size == 0 || c.Count == 0 {
			panic(fmt.Sprintf("layout: class %d has zero size or count", i))
		}
		if i > 0 && c.Size <= classes[i-1].Size {
			panic(fmt.Sprintf("layout: class %d (size %d) is not strictly greater than class %d (size %d)", i, c.Size, i-1, classes[i-1].Size))
		}
	}
	cp := make([]SizeClass, len(classes))
	copy(cp, classes)
	return SizeLayout{classes: cp}
}

// Classes returns the ordered size classes of the layout.
func (l SizeLayout) Classes() []SizeClass {
	return l.classes
}

// TotalPages returns the total number of addressable pages across all classes.
func (l SizeLayout) TotalPages() uint32 {
	var total uint32
	for _, c := range l.classes {
		total += c.Count
	}
	return total
}

// FootprintBytes returns the total byte size of the backing file implied by
// the layout, i.e. Σ sᵢ·nᵢ.
func (l SizeLayout) FootprintBytes() int64 {
	var total int64
	for _, c := range l.classes {
		total += int64(c.Size) * int64(c.Count)
	}
	return total
}

// SizeClassOf returns the page size of the class that owns no, and whether no
// is in range for the layout.
func (l SizeLayout) SizeClassOf(no PageNo) (size uint32, ok bool) {
	n := uint32(no)
	for _, c := range l.classes {
		if n < c.Count {
			return c.Size, true
		}
		n -= c.Count
	}
	return 0, false
}

// OffsetOf returns the byte offset of page no in the backing file, walking
// the layout's classes in ascending size order. The second return value is
// false if no is out of range for the layout, in which case the caller must
// reject the request without touching disk.
func (l SizeLayout) OffsetOf(no PageNo) (offset int64, ok bool) {
	var running int64
	n := uint32(no)
	for _, c := range l.classes {
		if n >= c.Count {
			n -= c.Count
			running += int64(c.Size) * int64(c.Count)
			continue
		}
		return running + int64(n)*int64(c.Size), true
	}
	return 0, false
}
