package cache_test

import (
	"bytes"
	"log"
	"os"
	"testing"

	"bufferpoold/internal/cache"
	"bufferpoold/internal/layout"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(os.Stderr, "test: ", 0)
}

func tempDBPath(t *testing.T) string {
	t.Helper()
	return t.TempDir() + "/backing.db"
}

func TestBasicSetGetRoundtrip(t *testing.T) {
	// Basic SET/GET roundtrip.
	l := layout.New([]layout.SizeClass{{Size: 8192, Count: 4}})
	eng, err := cache.Open(tempDBPath(t), l, 4, testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	payload := bytes.Repeat([]byte{0xAB}, 8192)
	if err := eng.WritePage(2, 8192, payload, 0); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	out := make([]byte, 8192)
	if err := eng.ReadPage(2, 8192, out, 0); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Error("ReadPage did not return the bytes written by WritePage")
	}
}

func TestIdempotentSet(t *testing.T) {
	l := layout.New([]layout.SizeClass{{Size: 8192, Count: 4}})
	eng, err := cache.Open(tempDBPath(t), l, 4, testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	payload := bytes.Repeat([]byte{0x42}, 8192)
	if err := eng.WritePage(1, 8192, payload, 0); err != nil {
		t.Fatalf("WritePage 1st: %v", err)
	}
	if err := eng.WritePage(1, 8192, payload, 0); err != nil {
		t.Fatalf("WritePage 2nd: %v", err)
	}
	out := make([]byte, 8192)
	if err := eng.ReadPage(1, 8192, out, 0); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Error("idempotent SET did not round-trip")
	}
}

func TestZeroFillOnFreshFile(t *testing.T) {
	l := layout.New([]layout.SizeClass{{Size: 8192, Count: 4}})
	eng, err := cache.Open(tempDBPath(t), l, 4, testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	out := make([]byte, 8192)
	for i := range out {
		out[i] = 0xFF
	}
	if err := eng.ReadPage(0, 8192, out, 0); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(out, make([]byte, 8192)) {
		t.Error("expected zero-filled page on fresh file")
	}
}

func TestSizeMismatchRejected(t *testing.T) {
	// Cross-size-class addressing.
	l := layout.New([]layout.SizeClass{
		{Size: 8192, Count: 3},
		{Size: 16384, Count: 2},
	})
	eng, err := cache.Open(tempDBPath(t), l, 4, testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	out := make([]byte, 16384)
	if err := eng.ReadPage(3, 8192, out, 0); err != cache.ErrSizeMismatch {
		t.Errorf("ReadPage size mismatch error = %v, want ErrSizeMismatch", err)
	}
	if err := eng.ReadPage(3, 16384, out, 0); err != nil {
		t.Errorf("ReadPage with correct size = %v, want nil", err)
	}
}

func TestPageNoOutOfRangeRejected(t *testing.T) {
	l := layout.New([]layout.SizeClass{{Size: 8192, Count: 2}})
	eng, err := cache.Open(tempDBPath(t), l, 2, testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	out := make([]byte, 8192)
	if err := eng.ReadPage(5, 8192, out, 0); err != cache.ErrOutOfRange {
		t.Errorf("ReadPage out-of-range error = %v, want ErrOutOfRange", err)
	}
}

func TestLRUEviction(t *testing.T) {
	// LRU eviction: layout [(8192,8)], capacity=2.
	l := layout.New([]layout.SizeClass{{Size: 8192, Count: 8}})
	eng, err := cache.Open(tempDBPath(t), l, 2, testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	out := make([]byte, 8192)
	for _, no := range []layout.PageNo{0, 1, 2} {
		if err := eng.ReadPage(no, 8192, out, 0); err != nil {
			t.Fatalf("ReadPage(%d): %v", no, err)
		}
	}
	// Cache now holds {1, 2}; page 0 was evicted.
	// GET 0 should miss again (a 4th miss), and evict page 1 (the new LRU).
	if err := eng.ReadPage(0, 8192, out, 0); err != nil {
		t.Fatalf("ReadPage(0) again: %v", err)
	}

	hits, misses := eng.Counters()
	if misses != 4 {
		t.Errorf("misses = %d, want 4", misses)
	}
	if hits != 0 {
		t.Errorf("hits = %d, want 0", hits)
	}
}

func TestWriteBackOnEvictionPersistsAcrossReopen(t *testing.T) {
	// Write-back on eviction: layout [(8192,8)], capacity=1.
	path := tempDBPath(t)
	l := layout.New([]layout.SizeClass{{Size: 8192, Count: 8}})
	eng, err := cache.Open(path, l, 1, testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	a := bytes.Repeat([]byte{0xAA}, 8192)
	b := bytes.Repeat([]byte{0xBB}, 8192)
	if err := eng.WritePage(0, 8192, a, 0); err != nil {
		t.Fatalf("WritePage(0): %v", err)
	}
	if err := eng.WritePage(1, 8192, b, 0); err != nil {
		t.Fatalf("WritePage(1): %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	eng2, err := cache.Open(path, l, 1, testLogger(t))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer eng2.Close()

	out := make([]byte, 8192)
	if err := eng2.ReadPage(0, 8192, out, 0); err != nil {
		t.Fatalf("ReadPage(0) after restart: %v", err)
	}
	if !bytes.Equal(out, a) {
		t.Error("page 0's write-back on eviction did not survive restart")
	}
}

func TestHitRateAccounting(t *testing.T) {
	// Hit-rate accounting.
	l := layout.New([]layout.SizeClass{{Size: 8192, Count: 4}})
	eng, err := cache.Open(tempDBPath(t), l, 4, testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	out := make([]byte, 8192)
	for i := 0; i < 3; i++ {
		if err := eng.ReadPage(0, 8192, out, 0); err != nil {
			t.Fatalf("ReadPage: %v", err)
		}
	}
	hits, misses := eng.Counters()
	if hits != 2 || misses != 1 {
		t.Errorf("hits=%d misses=%d, want hits=2 misses=1", hits, misses)
	}
}
