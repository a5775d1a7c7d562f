// Package wire implements the ordered binary format used to persist and
// replicate navigation state. Writers and readers must visit fields in the
// same order; every value has a fixed width except length-prefixed
// sequences.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/jakecoffman/cp"
)

var (
	ErrShortBuffer = errors.New("wire: short buffer")
	ErrTrailing    = errors.New("wire: trailing bytes")
	ErrCount       = errors.New("wire: sequence count out of range")
)

// MaxCount bounds decoded sequence lengths.
const MaxCount = 1 << 20

var order = binary.LittleEndian

// Writer appends fields to a byte slice.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
		return
	}
	w.Uint8(0)
}

func (w *Writer) Uint32(v uint32) {
	w.buf = order.AppendUint32(w.buf, v)
}

func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

func (w *Writer) Uint64(v uint64) {
	w.buf = order.AppendUint64(w.buf, v)
}

func (w *Writer) Float64(v float64) {
	w.Uint64(math.Float64bits(v))
}

func (w *Writer) Vector(v cp.Vector) {
	w.Float64(v.X)
	w.Float64(v.Y)
}

// Count writes a sequence length.
func (w *Writer) Count(n int) {
	w.Uint32(uint32(n))
}

// Reader consumes fields in write order. The first failure sticks and every
// later read returns zero values.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

func (r *Reader) Err() error {
	return r.err
}

// Finish reports the sticky error, or ErrTrailing when bytes remain.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d left", ErrTrailing, len(r.buf)-r.off)
	}
	return nil
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: need %d at offset %d: %w", ErrShortBuffer, n, r.off, io.ErrUnexpectedEOF)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return order.Uint32(b)
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return order.Uint64(b)
}

func (r *Reader) Float64() float64 {
	return math.Float64frombits(r.Uint64())
}

func (r *Reader) Vector() cp.Vector {
	x := r.Float64()
	y := r.Float64()
	return cp.Vector{X: x, Y: y}
}

// Count reads a sequence length whose elements take at least elemSize
// bytes each. Values above MaxCount or beyond what the remaining bytes can
// hold are rejected before the caller allocates.
func (r *Reader) Count(elemSize int) int {
	n := r.Uint32()
	if r.err != nil {
		return 0
	}
	if n > MaxCount {
		r.err = fmt.Errorf("%w: %d", ErrCount, n)
		return 0
	}
	if elemSize > 0 && int(n) > r.Remaining()/elemSize {
		r.err = fmt.Errorf("%w: %d elements of %d bytes with %d left", ErrCount, n, elemSize, r.Remaining())
		return 0
	}
	return int(n)
}

// Remaining is the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}
