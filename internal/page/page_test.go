package page_test

import (
	"bytes"
	"os"
	"testing"

	"bufferpoold/internal/layout"
	"bufferpoold/internal/page"

	"github.com/ncw/directio"
)

func tempBackingFile(t *testing.T) *os.File {
	t.Helper()
	name := t.TempDir() + "/backing.db"
	f, err := directio.OpenFile(name, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		t.Fatalf("open backing file: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestReadAtBeforeLoadReturnsZero(t *testing.T) {
	p := page.New(0, 8192)
	out := make([]byte, 8192)
	if n := p.ReadAt(0, out); n != 0 {
		t.Errorf("ReadAt on unloaded page returned %d, want 0", n)
	}
}

func TestWriteAtMarksLoadedAndDirty(t *testing.T) {
	p := page.New(0, 8192)
	buf := bytes.Repeat([]byte{0xAB}, 8192)
	if n := p.WriteAt(0, buf); n != 8192 {
		t.Errorf("WriteAt returned %d, want 8192", n)
	}
	if !p.IsLoaded() {
		t.Error("expected page to be loaded after WriteAt")
	}
	if !p.IsDirty() {
		t.Error("expected page to be dirty after WriteAt")
	}

	out := make([]byte, 8192)
	if n := p.ReadAt(0, out); n != 8192 {
		t.Errorf("ReadAt returned %d, want 8192", n)
	}
	if !bytes.Equal(out, buf) {
		t.Error("ReadAt did not return the bytes written by WriteAt")
	}
}

func TestReadWriteAtOffsetBeyondSize(t *testing.T) {
	p := page.New(0, 8192)
	out := make([]byte, 16)
	if n := p.ReadAt(8192, out); n != 0 {
		t.Errorf("ReadAt at offset == size returned %d, want 0", n)
	}
	if n := p.WriteAt(9000, out); n != 0 {
		t.Errorf("WriteAt at offset > size returned %d, want 0", n)
	}
}

func TestUnpinFloorsAtZero(t *testing.T) {
	p := page.New(0, 8192)
	p.Unpin()
	if got := p.PinCount(); got != 0 {
		t.Errorf("PinCount after unpin-from-zero = %d, want 0", got)
	}
	p.Pin()
	p.Pin()
	p.Unpin()
	if got := p.PinCount(); got != 1 {
		t.Errorf("PinCount = %d, want 1", got)
	}
}

func TestPinGuardReleasesOnce(t *testing.T) {
	p := page.New(0, 8192)
	g := page.Pin(p)
	if got := p.PinCount(); got != 1 {
		t.Fatalf("PinCount after Pin = %d, want 1", got)
	}
	g.Release()
	g.Release()
	if got := p.PinCount(); got != 0 {
		t.Errorf("PinCount after double Release = %d, want 0", got)
	}
}

func TestLoadFromFDZeroPadsShortFile(t *testing.T) {
	fd := tempBackingFile(t)
	p := page.New(0, 8192)
	if !p.LoadFromFD(fd, 0) {
		t.Fatal("LoadFromFD on a fresh empty file should succeed with zero padding")
	}
	if !p.IsLoaded() || p.IsDirty() {
		t.Error("expected page to be loaded and not dirty after LoadFromFD")
	}
	out := make([]byte, 8192)
	p.ReadAt(0, out)
	if !bytes.Equal(out, make([]byte, 8192)) {
		t.Error("expected zero-filled page after loading from a fresh file")
	}
}

func TestFlushThenLoadRoundTrip(t *testing.T) {
	fd := tempBackingFile(t)
	l := layout.New([]layout.SizeClass{{Size: 8192, Count: 1}})
	offset, _ := l.OffsetOf(0)

	p := page.New(0, 8192)
	buf := bytes.Repeat([]byte{0xAA}, 8192)
	p.WriteAt(0, buf)
	if !p.FlushToFD(fd, offset) {
		t.Fatal("FlushToFD failed")
	}
	if p.IsDirty() {
		t.Error("expected page to be clean after flush")
	}

	p2 := page.New(0, 8192)
	if !p2.LoadFromFD(fd, offset) {
		t.Fatal("LoadFromFD failed")
	}
	out := make([]byte, 8192)
	p2.ReadAt(0, out)
	if !bytes.Equal(out, buf) {
		t.Error("loaded page content does not match flushed content")
	}
}

func TestFlushSkipsIOWhenNotDirty(t *testing.T) {
	fd := tempBackingFile(t)
	p := page.New(0, 8192)
	if !p.LoadFromFD(fd, 0) {
		t.Fatal("LoadFromFD failed")
	}
	if !p.FlushToFD(fd, 0) {
		t.Error("FlushToFD on a clean loaded page should report success without I/O")
	}
}

func TestFlushUnloadedPageFails(t *testing.T) {
	fd := tempBackingFile(t)
	p := page.New(0, 8192)
	if p.FlushToFD(fd, 0) {
		t.Error("FlushToFD on a never-loaded page should return false")
	}
}
