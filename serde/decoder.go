package serde

import (
	"fmt"
	"unicode/utf8"
)

// Decoder reads Kafka primitives from the front of a byte slice.
// Reads never go out of bounds: a short input yields an *IncompleteError and
// a failed read leaves Offset where it was.
type Decoder struct {
	b      []byte
	Offset int
}

// NewDecoder creates a Decoder over b. Slices returned by Bytes and Raw alias b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

// Remaining returns the number of unread bytes
func (d *Decoder) Remaining() int {
	return len(d.b) - d.Offset
}

// Rest returns the unread bytes without consuming them
func (d *Decoder) Rest() []byte {
	return d.b[d.Offset:]
}

func (d *Decoder) need(n int) error {
	if r := d.Remaining(); r < n {
		return &IncompleteError{Needed: n - r}
	}
	return nil
}

// Int8 decodes an int8
func (d *Decoder) Int8() (int8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := int8(d.b[d.Offset])
	d.Offset++
	return v, nil
}

// Int16 decodes a big endian int16
func (d *Decoder) Int16() (int16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := int16(Encoding.Uint16(d.b[d.Offset:]))
	d.Offset += 2
	return v, nil
}

// Int32 decodes a big endian int32
func (d *Decoder) Int32() (int32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := int32(Encoding.Uint32(d.b[d.Offset:]))
	d.Offset += 4
	return v, nil
}

// Int64 decodes a big endian int64
func (d *Decoder) Int64() (int64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := int64(Encoding.Uint64(d.b[d.Offset:]))
	d.Offset += 8
	return v, nil
}

// Raw takes the next n bytes as-is
func (d *Decoder) Raw(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative raw length %d", ErrParser, n)
	}
	if err := d.need(n); err != nil {
		return nil, err
	}
	v := d.b[d.Offset : d.Offset+n : d.Offset+n]
	d.Offset += n
	return v, nil
}

// Window consumes the next n bytes and returns a Decoder limited to them
func (d *Decoder) Window(n int) (*Decoder, error) {
	b, err := d.Raw(n)
	if err != nil {
		return nil, err
	}
	return NewDecoder(b), nil
}

func (d *Decoder) sized(length int) ([]byte, error) {
	switch {
	case length == -1:
		return nil, fmt.Errorf("%w: null value", ErrNotImplemented)
	case length < -1:
		return nil, fmt.Errorf("%w: negative length %d", ErrParser, length)
	}
	return d.Raw(length)
}

// Bytes decodes an int32 length followed by that many bytes
func (d *Decoder) Bytes() ([]byte, error) {
	start := d.Offset
	length, err := d.Int32()
	if err != nil {
		return nil, err
	}
	b, err := d.sized(int(length))
	if err != nil {
		d.Offset = start
		return nil, err
	}
	return b, nil
}

// NullableBytes is like Bytes but a -1 length decodes to nil
func (d *Decoder) NullableBytes() ([]byte, error) {
	start := d.Offset
	length, err := d.Int32()
	if err != nil {
		return nil, err
	}
	if length == -1 {
		return nil, nil
	}
	b, err := d.sized(int(length))
	if err != nil {
		d.Offset = start
		return nil, err
	}
	return b, nil
}

// Str decodes an int16 length followed by that many bytes of UTF-8
func (d *Decoder) Str() (string, error) {
	start := d.Offset
	length, err := d.Int16()
	if err != nil {
		return "", err
	}
	b, err := d.sized(int(length))
	if err != nil {
		d.Offset = start
		return "", err
	}
	if !utf8.Valid(b) {
		d.Offset = start
		return "", fmt.Errorf("%w: string is not valid UTF-8", ErrParser)
	}
	return string(b), nil
}

// ArrayLen decodes an int32 element count
func (d *Decoder) ArrayLen() (int, error) {
	n, err := d.Int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		d.Offset -= 4
		return 0, fmt.Errorf("%w: negative array length %d", ErrParser, n)
	}
	return int(n), nil
}

// Array decodes an int32 count followed by that many elements
func Array[T any](d *Decoder, decode func(*Decoder) (T, error)) ([]T, error) {
	start := d.Offset
	n, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	// the count is untrusted, every element takes at least one byte
	items := make([]T, 0, min(n, d.Remaining()))
	for i := 0; i < n; i++ {
		item, err := decode(d)
		if err != nil {
			d.Offset = start
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Int32Array decodes an array of int32
func Int32Array(d *Decoder) ([]int32, error) {
	return Array(d, (*Decoder).Int32)
}

// StringArray decodes an array of strings
func StringArray(d *Decoder) ([]string, error) {
	return Array(d, (*Decoder).Str)
}
