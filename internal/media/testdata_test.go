package media

import (
	"bytes"
	"encoding/binary"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

// buildMP4 assembles an ftyp box and a moov box holding only a version 0
// mvhd with the given timescale and duration.
func buildMP4(timescale, duration uint32) []byte {
	var b bytes.Buffer
	be := func(v any) { _ = binary.Write(&b, binary.BigEndian, v) }

	be(uint32(20))
	b.WriteString("ftyp")
	b.WriteString("isom")
	be(uint32(512))
	b.WriteString("isom")

	be(uint32(8 + 108))
	b.WriteString("moov")
	be(uint32(108))
	b.WriteString("mvhd")
	be(uint32(0)) // version and flags
	be(uint32(0)) // creation time
	be(uint32(0)) // modification time
	be(timescale)
	be(duration)
	be(uint32(0x00010000)) // rate 1.0
	be(uint16(0x0100))     // volume 1.0
	be(uint16(0))
	b.Write(make([]byte, 8))  // reserved
	b.Write(make([]byte, 36)) // matrix
	b.Write(make([]byte, 24)) // pre-defined
	be(uint32(1))             // next track id
	return b.Bytes()
}
