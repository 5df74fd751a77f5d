package huff

import (
	"bufio"
	"io"
)

// BitWriter packs codes into bytes, least significant bit first. The first
// bit written lands in bit 0 of the first byte. Write errors are sticky and
// reported by every later call.
type BitWriter struct {
	out   io.ByteWriter
	buf   *bufio.Writer // non-nil when out wraps a plain io.Writer
	acc   uint32        // pending bits, low nbits valid
	nbits uint
	n     int64
	err   error
}

// NewBitWriter returns a BitWriter emitting to w. Writers that are already
// io.ByteWriters receive each byte as soon as it is complete; others are
// buffered until Flush.
func NewBitWriter(w io.Writer) *BitWriter {
	return newBitWriterSize(w, 0)
}

func newBitWriterSize(w io.Writer, size int) *BitWriter {
	if bw, ok := w.(io.ByteWriter); ok {
		return &BitWriter{out: bw}
	}
	var buf *bufio.Writer
	if size > 0 {
		buf = bufio.NewWriterSize(w, size)
	} else {
		buf = bufio.NewWriter(w)
	}
	return &BitWriter{out: buf, buf: buf}
}

// Write appends the bits of code.
func (w *BitWriter) Write(code BitBuffer) error {
	if w.err != nil {
		return w.err
	}
	remaining := uint(code.Len)
	for i := 0; remaining > 0; i++ {
		take := min(remaining, 8)
		b := code.Bits[i] & byte(1<<take-1)
		w.acc |= uint32(b) << w.nbits
		w.nbits += take
		remaining -= take
		for w.nbits >= 8 {
			if err := w.emit(byte(w.acc)); err != nil {
				return err
			}
			w.acc >>= 8
			w.nbits -= 8
		}
	}
	return nil
}

// Flush writes the held bits, if any, as one final byte with zero high bits,
// then drains any internal buffer.
func (w *BitWriter) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.nbits > 0 {
		if err := w.emit(byte(w.acc)); err != nil {
			return err
		}
	}
	w.acc = 0
	w.nbits = 0
	if w.buf != nil {
		if err := w.buf.Flush(); err != nil {
			w.err = err
			return err
		}
	}
	return nil
}

// Written returns the number of bytes emitted so far.
func (w *BitWriter) Written() int64 {
	return w.n
}

func (w *BitWriter) emit(b byte) error {
	if err := w.out.WriteByte(b); err != nil {
		w.err = err
		return err
	}
	w.n++
	return nil
}
