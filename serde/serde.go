package serde

import (
	"encoding/binary"
	"slices"
)

// Encoding is Big Endian as per the protocol
var Encoding = binary.BigEndian

// Encoder is a byte slice with an offset
type Encoder struct {
	b      []byte // Buffer to hold encoded data
	offset int    // Current position in the buffer
}

// BufferIncrement is the size of increment when buffer limit is reached
const BufferIncrement = 4096

// NewEncoder creates a new Encoder with an initial buffer
func NewEncoder() Encoder {
	return Encoder{b: make([]byte, BufferIncrement)}
}

// ensureBufferSpace ensures the buffer has enough space to accommodate n more bytes
func (e *Encoder) ensureBufferSpace(n int) {
	if missing := e.offset + n - len(e.b); missing > 0 {
		grow := (missing/BufferIncrement + 1) * BufferIncrement
		newBuffer := make([]byte, len(e.b)+grow)
		copy(newBuffer, e.b[:e.offset])
		e.b = newBuffer
	}
}

// Offset returns the number of bytes written so far
func (e *Encoder) Offset() int {
	return e.offset
}

// PutInt8 encodes an int8 value into the buffer
func (e *Encoder) PutInt8(i int8) {
	e.ensureBufferSpace(1)
	e.b[e.offset] = byte(i)
	e.offset++
}

// PutInt16 encodes an int16 value into the buffer
func (e *Encoder) PutInt16(i int16) {
	e.ensureBufferSpace(2)
	Encoding.PutUint16(e.b[e.offset:], uint16(i))
	e.offset += 2
}

// PutInt32 encodes an int32 value into the buffer
func (e *Encoder) PutInt32(i int32) {
	e.ensureBufferSpace(4)
	Encoding.PutUint32(e.b[e.offset:], uint32(i))
	e.offset += 4
}

// PutInt64 encodes an int64 value into the buffer
func (e *Encoder) PutInt64(i int64) {
	e.ensureBufferSpace(8)
	Encoding.PutUint64(e.b[e.offset:], uint64(i))
	e.offset += 8
}

// PutRaw copies b into the buffer without a length prefix
func (e *Encoder) PutRaw(b []byte) {
	e.ensureBufferSpace(len(b))
	copy(e.b[e.offset:], b)
	e.offset += len(b)
}

// PutBytes encodes a byte slice with an int32 length
func (e *Encoder) PutBytes(b []byte) {
	e.PutInt32(int32(len(b)))
	e.PutRaw(b)
}

// PutNullableBytes encodes nil as a -1 length
func (e *Encoder) PutNullableBytes(b []byte) {
	if b == nil {
		e.PutInt32(-1)
		return
	}
	e.PutBytes(b)
}

// PutString encodes a string with an int16 length
func (e *Encoder) PutString(s string) {
	e.PutInt16(int16(len(s)))
	e.ensureBufferSpace(len(s))
	copy(e.b[e.offset:], s)
	e.offset += len(s)
}

// PutArrayLen encodes an array element count
func (e *Encoder) PutArrayLen(l int) {
	e.PutInt32(int32(l))
}

// PutArray encodes the element count followed by each element
func PutArray[T any](e *Encoder, items []T, put func(*Encoder, T)) {
	e.PutArrayLen(len(items))
	for _, item := range items {
		put(e, item)
	}
}

// Reserve skips n bytes to be filled later and returns their position
func (e *Encoder) Reserve(n int) int {
	e.ensureBufferSpace(n)
	pos := e.offset
	clear(e.b[pos : pos+n])
	e.offset += n
	return pos
}

// PutInt32At overwrites the int32 at pos, typically a reserved size or CRC
func (e *Encoder) PutInt32At(pos int, i int32) {
	Encoding.PutUint32(e.b[pos:], uint32(i))
}

// Since returns the bytes written after pos
func (e *Encoder) Since(pos int) []byte {
	return e.b[pos:e.offset]
}

// PutLen prepends the 4-byte length of everything encoded so far
func (e *Encoder) PutLen() {
	lengthBytes := make([]byte, 4)
	Encoding.PutUint32(lengthBytes, uint32(e.offset))
	e.b = slices.Insert(e.b, 0, lengthBytes...)
	e.offset += 4
}

// Bytes returns the encoded bytes
func (e *Encoder) Bytes() []byte {
	return e.b[:e.offset]
}

// FinishAndReturn prepends the length and returns the framed bytes
func (e *Encoder) FinishAndReturn() []byte {
	e.PutLen()
	return e.Bytes()
}
