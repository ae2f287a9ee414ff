// Package diag holds operator-facing diagnostics that never feed back into
// cache correctness, in the spirit of the reserved-but-unused LSN field:
// page content checksums logged on load/flush, for an operator to eyeball
// when chasing down a corruption report. xxhash and murmur3 are wired in as
// interchangeable checksum algorithms.
package diag

import (
	"log"

	"bufferpoold/internal/layout"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// Algorithm selects which checksum implementation to use for diagnostic
// logging.
type Algorithm int

const (
	XXHash Algorithm = iota
	Murmur3
)

// Checksum hashes data with the selected algorithm.
func Checksum(alg Algorithm, data []byte) uint64 {
	switch alg {
	case Murmur3:
		return murmur3.Sum64(data)
	default:
		return xxhash.Sum64(data)
	}
}

// LogLoad logs a checksum of a page's content immediately after a disk
// load, for operators correlating on-disk corruption with a later GET.
func LogLoad(logger *log.Logger, alg Algorithm, no layout.PageNo, data []byte) {
	logger.Printf("[diag] load page=%d checksum=%016x", no, Checksum(alg, data))
}

// LogFlush logs a checksum of a page's content immediately before it is
// written back to disk.
func LogFlush(logger *log.Logger, alg Algorithm, no layout.PageNo, data []byte) {
	logger.Printf("[diag] flush page=%d checksum=%016x", no, Checksum(alg, data))
}
