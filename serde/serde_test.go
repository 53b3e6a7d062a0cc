package serde

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestDecodeIntegers(t *testing.T) {
	d := NewDecoder([]byte{0xff, 0x01, 0x02, 0x00, 0x00, 0x05, 0x39, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe})
	i8, err := d.Int8()
	if err != nil || i8 != -1 {
		t.Fatalf("Int8: got %v, %v", i8, err)
	}
	i16, err := d.Int16()
	if err != nil || i16 != 0x0102 {
		t.Fatalf("Int16: got %v, %v", i16, err)
	}
	i32, err := d.Int32()
	if err != nil || i32 != 1337 {
		t.Fatalf("Int32: got %v, %v", i32, err)
	}
	i64, err := d.Int64()
	if err != nil || i64 != -2 {
		t.Fatalf("Int64: got %v, %v", i64, err)
	}
	if d.Remaining() != 0 {
		t.Errorf("expected all input consumed, %d bytes left", d.Remaining())
	}
}

func TestDecodeShortInputIsIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		decode func(*Decoder) error
		needed int
	}{
		{"int16", []byte{0x00}, func(d *Decoder) error { _, err := d.Int16(); return err }, 1},
		{"int32", []byte{0x00, 0x00}, func(d *Decoder) error { _, err := d.Int32(); return err }, 2},
		{"int64", nil, func(d *Decoder) error { _, err := d.Int64(); return err }, 8},
		{"bytes body", []byte{0x00, 0x00, 0x00, 0x01}, func(d *Decoder) error { _, err := d.Bytes(); return err }, 1},
		{"bytes partial body", []byte{0x00, 0x00, 0x00, 0x05, 'a', 'b'}, func(d *Decoder) error { _, err := d.Bytes(); return err }, 3},
		{"string body", []byte{0x00, 0x03, 'a'}, func(d *Decoder) error { _, err := d.Str(); return err }, 2},
		{"array elements", []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01, 0x00}, func(d *Decoder) error { _, err := Int32Array(d); return err }, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(tt.input)
			err := tt.decode(d)
			needed, ok := Incomplete(err)
			if !ok {
				t.Fatalf("expected incomplete error, got %v", err)
			}
			if needed != tt.needed {
				t.Errorf("expected %d missing bytes, got %d", tt.needed, needed)
			}
			if d.Offset != 0 {
				t.Errorf("failed decode advanced the offset to %d", d.Offset)
			}
		})
	}
}

func TestDecodeLengthSigns(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		decode func(*Decoder) error
		want   error
	}{
		{"null bytes", []byte{0xff, 0xff, 0xff, 0xff}, func(d *Decoder) error { _, err := d.Bytes(); return err }, ErrNotImplemented},
		{"negative bytes", []byte{0xff, 0xff, 0xff, 0xfe}, func(d *Decoder) error { _, err := d.Bytes(); return err }, ErrParser},
		{"null string", []byte{0xff, 0xff}, func(d *Decoder) error { _, err := d.Str(); return err }, ErrNotImplemented},
		{"negative string", []byte{0x80, 0x00}, func(d *Decoder) error { _, err := d.Str(); return err }, ErrParser},
		{"negative array", []byte{0xff, 0xff, 0xff, 0xff}, func(d *Decoder) error { _, err := Int32Array(d); return err }, ErrParser},
		{"invalid utf8", []byte{0x00, 0x02, 0xc3, 0x28}, func(d *Decoder) error { _, err := d.Str(); return err }, ErrParser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode(NewDecoder(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeStringLeavesRemainder(t *testing.T) {
	d := NewDecoder([]byte{0x00, 0x01, 'A', 0x00})
	s, err := d.Str()
	if err != nil {
		t.Fatal(err)
	}
	if s != "A" {
		t.Errorf("expected %q, got %q", "A", s)
	}
	if !bytes.Equal(d.Rest(), []byte{0x00}) {
		t.Errorf("unexpected remainder %v", d.Rest())
	}
}

func TestNullableBytes(t *testing.T) {
	d := NewDecoder([]byte{0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00})
	b, err := d.NullableBytes()
	if err != nil || b != nil {
		t.Fatalf("expected nil bytes, got %v, %v", b, err)
	}
	b, err = d.NullableBytes()
	if err != nil || b == nil || len(b) != 0 {
		t.Fatalf("expected empty non-nil bytes, got %v, %v", b, err)
	}
}

func TestDecodeNeverPanics(t *testing.T) {
	// every prefix of a valid input must decode to a value or an error
	e := NewEncoder()
	PutArray(&e, []string{"topic", "ü"}, (*Encoder).PutString)
	e.PutBytes([]byte("value"))
	e.PutInt64(42)
	full := e.Bytes()
	for i := 0; i <= len(full); i++ {
		d := NewDecoder(full[:i])
		if _, err := StringArray(d); err != nil {
			continue
		}
		if _, err := d.Bytes(); err != nil {
			continue
		}
		if _, err := d.Int64(); err != nil {
			continue
		}
		if i != len(full) {
			t.Errorf("prefix of %d bytes decoded completely", i)
		}
	}
}

func TestEncodeDecodeInverse(t *testing.T) {
	e := NewEncoder()
	e.PutInt8(-3)
	e.PutInt16(-300)
	e.PutInt32(70000)
	e.PutInt64(-1 << 40)
	e.PutString("proust")
	e.PutBytes([]byte{1, 2, 3})
	PutArray(&e, []int32{7, 8, 9}, (*Encoder).PutInt32)

	d := NewDecoder(e.Bytes())
	i8, _ := d.Int8()
	i16, _ := d.Int16()
	i32, _ := d.Int32()
	i64, _ := d.Int64()
	s, _ := d.Str()
	b, _ := d.Bytes()
	arr, err := Int32Array(d)
	if err != nil {
		t.Fatal(err)
	}
	if i8 != -3 || i16 != -300 || i32 != 70000 || i64 != -1<<40 || s != "proust" || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Errorf("unexpected values %v %v %v %v %q %v", i8, i16, i32, i64, s, b)
	}
	if !reflect.DeepEqual(arr, []int32{7, 8, 9}) {
		t.Errorf("unexpected array %v", arr)
	}
	if d.Remaining() != 0 {
		t.Errorf("%d bytes left", d.Remaining())
	}
}

func TestEncoderGrowsAndFrames(t *testing.T) {
	e := NewEncoder()
	payload := bytes.Repeat([]byte{0xab}, 3*BufferIncrement+17)
	e.PutBytes(payload)
	framed := e.FinishAndReturn()
	if len(framed) != 4+4+len(payload) {
		t.Fatalf("unexpected framed length %d", len(framed))
	}
	if got := Encoding.Uint32(framed); int(got) != len(framed)-4 {
		t.Errorf("length header %d does not match body length %d", got, len(framed)-4)
	}
}

func TestReserveAndBackfill(t *testing.T) {
	e := NewEncoder()
	pos := e.Reserve(4)
	e.PutString("ab")
	e.PutInt32At(pos, int32(len(e.Since(pos+4))))
	want := []byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x02, 'a', 'b'}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("expected %v, got %v", want, e.Bytes())
	}
}
