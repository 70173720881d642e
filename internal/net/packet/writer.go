package packet

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Writer builds a frame. All multi-byte writes are little-endian and no
// padding is applied.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// NewWriterWithHeader starts a server→client frame.
func NewWriterWithHeader(sender uint16, d Domain, sub uint8) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteH(sender)
	w.WriteC(byte(d))
	w.WriteC(sub)
	return w
}

// NewRequestWriter starts a client→server frame, which carries no sender id.
func NewRequestWriter(d Domain, sub uint8) *Writer {
	w := &Writer{buf: make([]byte, 0, 32)}
	w.WriteC(byte(d))
	w.WriteC(sub)
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteH writes 2 bytes little-endian.
func (w *Writer) WriteH(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteF writes a float32 as 4 bytes little-endian.
func (w *Writer) WriteF(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *Writer) WriteVec3(v mgl32.Vec3) {
	w.WriteF(v[0])
	w.WriteF(v[1])
	w.WriteF(v[2])
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length.
func (w *Writer) Len() int {
	return len(w.buf)
}
