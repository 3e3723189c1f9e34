package cuedata

import (
	"encoding/binary"
	"math"
)

// Reader is a bounds-checked cursor over a sound bank buffer. Every read past
// the end returns a FormatError wrapping ErrTruncated.
type Reader struct {
	buf   []byte
	pos   int64
	order binary.ByteOrder
}

// NewReader reads little-endian data, the layout of every shipped bank.
func NewReader(buf []byte) *Reader {
	return NewReaderOrder(buf, binary.LittleEndian)
}

// NewReaderOrder reads with an explicit byte order for byte-swapped content.
func NewReaderOrder(buf []byte, order binary.ByteOrder) *Reader {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Reader{buf: buf, order: order}
}

func (r *Reader) Pos() int64 { return r.pos }

func (r *Reader) Len() int { return len(r.buf) }

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(r.buf)) {
		return formatErr(r.pos, ErrTruncated, "seek to %d outside %d byte buffer", offset, len(r.buf))
	}
	r.pos = offset
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	end := r.pos + int64(n)
	if end > int64(len(r.buf)) {
		return nil, formatErr(r.pos, ErrTruncated, "need %d bytes, %d left", n, int64(len(r.buf))-r.pos)
	}
	b := r.buf[r.pos:end]
	r.pos = end
	return b, nil
}

func (r *Reader) Skip(n int) error {
	_, err := r.take(n)
	return err
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}
