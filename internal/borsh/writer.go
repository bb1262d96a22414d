package borsh

import (
	"encoding/binary"

	"github.com/holiman/uint256"
)

// Writer appends Borsh-encoded values to an in-memory buffer.
type Writer struct {
	buf []byte
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) U32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *Writer) U64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

// U128 writes the low 128 bits of v.
func (w *Writer) U128(v *uint256.Int) {
	w.U64(v[0])
	w.U64(v[1])
}

func (w *Writer) ByteVec(b []byte) {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) Str(s string) { w.ByteVec([]byte(s)) }

func (w *Writer) OptionU64(v *uint64) {
	if v == nil {
		w.U8(0)
		return
	}
	w.U8(1)
	w.U64(*v)
}
