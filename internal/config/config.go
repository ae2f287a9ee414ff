// Package config parses the daemon's command-line surface and derives the
// layout and cache capacity the rest of the daemon runs with.
package config

import (
	"fmt"

	"bufferpoold/internal/layout"

	"github.com/bits-and-blooms/bitset"
)

// MaxBufferPoolSize is the hard memory bound on resident page bytes: 4 GiB.
const MaxBufferPoolSize int64 = 4 * 1024 * 1024 * 1024

// sizeClassOrder is the fixed order in which page-size-class counts are
// given on the command line.
var sizeClassOrder = [4]uint32{8 * 1024, 16 * 1024, 32 * 1024, 2 * 1024 * 1024}

// Config is the fully parsed, validated startup configuration.
type Config struct {
	DataFile   string
	SocketFile string
	Layout     layout.SizeLayout
	Capacity   int

	// Enabled marks which of the four fixed-order size classes were given a
	// positive count on the command line. Exposed for the startup log line.
	Enabled *bitset.BitSet
}

// Parse builds a Config from the data file path, socket file path, and up
// to four non-negative page-count arguments in the fixed
// [8 KiB, 16 KiB, 32 KiB, 2 MiB] order. Any class whose count is positive
// populates the layout, in ascending size order; a zero count simply omits
// that class (e.g. counts [0,0,0,N] enables only the 2 MiB class). Omitted
// classes never break the ascending-size invariant because layout.New only
// orders the classes that are actually present.
func Parse(dataFile, socketFile string, counts []int) (Config, error) {
	if dataFile == "" {
		return Config{}, fmt.Errorf("config: data file path is required")
	}
	if socketFile == "" {
		return Config{}, fmt.Errorf("config: socket file path is required")
	}
	if len(counts) > len(sizeClassOrder) {
		return Config{}, fmt.Errorf("config: at most %d page-size classes are supported", len(sizeClassOrder))
	}

	enabled := bitset.New(uint(len(sizeClassOrder)))
	var classes []layout.SizeClass
	for i, count := range counts {
		if count < 0 {
			return Config{}, fmt.Errorf("config: page count for class %d must be non-negative, got %d", i, count)
		}
		if count == 0 {
			continue
		}
		enabled.Set(uint(i))
		classes = append(classes, layout.SizeClass{
			Size:  sizeClassOrder[i],
			Count: uint32(count),
		})
	}
	if len(classes) == 0 {
		return Config{}, fmt.Errorf("config: at least one page-size class must have a positive count")
	}

	l := layout.New(classes)
	capacity := deriveCapacity(l)

	return Config{
		DataFile:   dataFile,
		SocketFile: socketFile,
		Layout:     l,
		Capacity:   capacity,
		Enabled:    enabled,
	}, nil
}

// deriveCapacity picks the largest resident-page count that keeps total
// resident bytes within MaxBufferPoolSize, sized against the layout's
// largest page class so the cache can never be configured to exceed the
// memory bound regardless of CLI input.
func deriveCapacity(l layout.SizeLayout) int {
	var maxSize uint32
	for _, c := range l.Classes() {
		if c.Size > maxSize {
			maxSize = c.Size
		}
	}
	if maxSize == 0 {
		return 0
	}
	capacity := MaxBufferPoolSize / int64(maxSize)
	if total := int64(l.TotalPages()); capacity > total {
		capacity = total
	}
	if capacity < 1 {
		capacity = 1
	}
	return int(capacity)
}

// EnabledString renders which fixed-order classes are enabled, for the
// startup log line, e.g. "8KiB,32KiB".
func (c Config) EnabledString() string {
	names := [4]string{"8KiB", "16KiB", "32KiB", "2MiB"}
	s := ""
	for i, name := range names {
		if c.Enabled.Test(uint(i)) {
			if s != "" {
				s += ","
			}
			s += name
		}
	}
	return s
}
