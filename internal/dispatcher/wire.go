package dispatcher

import (
	"encoding/binary"
	"fmt"

	"bufferpoold/internal/layout"
)

// MsgType is the first byte of every request header.
type MsgType byte

const (
	MsgGet     MsgType = 0
	MsgSet     MsgType = 1
	msgInvalid MsgType = 255
)

// HeaderSize is the fixed, packed size of a wire request header.
const HeaderSize = 9

// MaxPageSize is the largest page class supported (2 MiB), and the size of
// the per-connection scratch buffer allocated once at worker start.
const MaxPageSize = 2 * 1024 * 1024

// Header is the fixed 9-byte request header:
//
//	byte 0       : msg_type  (0 = GET, 1 = SET, other = invalid)
//	bytes 1..4   : page_no   (unsigned 32-bit, host byte order)
//	bytes 5..8   : page_size (unsigned 32-bit, host byte order)
//
// Go has no native-order wire integer type; this daemon targets local,
// little-endian hosts (amd64/arm64), so multi-byte fields are packed with
// binary.LittleEndian -- see DESIGN.md for the rationale. Cross-endianness
// interoperability is explicitly out of scope since the socket is local.
type Header struct {
	MsgType  MsgType
	PageNo   layout.PageNo
	PageSize uint32
}

// decodeHeader unpacks a Header from a HeaderSize-byte buffer.
func decodeHeader(buf []byte) Header {
	return Header{
		MsgType:  MsgType(buf[0]),
		PageNo:   layout.PageNo(binary.LittleEndian.Uint32(buf[1:5])),
		PageSize: binary.LittleEndian.Uint32(buf[5:9]),
	}
}

// encode packs h into a HeaderSize-byte buffer.
func (h Header) encode(buf []byte) {
	buf[0] = byte(h.MsgType)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(h.PageNo))
	binary.LittleEndian.PutUint32(buf[5:9], h.PageSize)
}

// encodeSize packs a page_size acknowledgment field (4 bytes, same byte
// order as the header) into buf.
func encodeSize(buf []byte, size uint32) {
	binary.LittleEndian.PutUint32(buf, size)
}

func decodeSize(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

// ErrInvalidMsgType is logged (never returned to the caller as a fatal
// condition) when a header's msg_type is neither GET nor SET.
var ErrInvalidMsgType = fmt.Errorf("dispatcher: invalid msg_type")
