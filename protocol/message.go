package protocol

import (
	"fmt"
	"hash/crc32"

	"github.com/Geal/proust/compress"
	"github.com/Geal/proust/serde"
)

const (
	// crc + magic + attributes + key length + value length
	messageOverhead = 4 + 1 + 1 + 4 + 4
	// offset + message size
	entryHeaderSize = 8 + 4
)

// Message is a v0 kafka message. A nil Key is the null key.
type Message struct {
	CRC        int32
	MagicByte  int8
	Attributes int8
	Key        []byte
	Value      []byte
}

// MessageSetEntry is a message tagged with its offset in the partition
type MessageSetEntry struct {
	Offset  int64
	Message Message
}

// MessageSet is an ordered sequence of offset tagged messages
type MessageSet []MessageSetEntry

// NewMessage builds a message and fills in its CRC
func NewMessage(attributes int8, key, value []byte) Message {
	m := Message{Attributes: attributes, Key: key, Value: value}
	e := serde.NewEncoder()
	m.encode(&e)
	m.CRC = int32(serde.Encoding.Uint32(e.Bytes()))
	return m
}

// Codec returns the compression codec named by the message attributes
func (m Message) Codec() compress.CompressionType {
	return compress.FromAttributes(m.Attributes)
}

// Size is the encoded size of the message
func (m Message) Size() int {
	return messageOverhead + len(m.Key) + len(m.Value)
}

// DecodeMessage decodes a message of exactly size bytes and verifies its CRC
func DecodeMessage(d *serde.Decoder, size int32) (Message, error) {
	if size < 0 {
		return Message{}, fmt.Errorf("%w: %d", ErrInvalidMessageSize, size)
	}
	start := d.Offset
	raw, err := d.Raw(int(size))
	if err != nil {
		return Message{}, err
	}
	msg, err := decodeMessageBytes(raw)
	if err != nil {
		d.Offset = start
		return Message{}, err
	}
	return msg, nil
}

func decodeMessageBytes(raw []byte) (Message, error) {
	if len(raw) < 4 {
		return Message{}, fmt.Errorf("%w: %d bytes cannot hold a crc", ErrInvalidMessageSize, len(raw))
	}
	var msg Message
	msg.CRC = int32(serde.Encoding.Uint32(raw))
	if computed := crc32.ChecksumIEEE(raw[4:]); computed != uint32(msg.CRC) {
		return Message{}, fmt.Errorf("%w: crc %08x, computed %08x", ErrInvalidMessage, uint32(msg.CRC), computed)
	}

	d := serde.NewDecoder(raw[4:])
	var err error
	if msg.MagicByte, err = d.Int8(); err != nil {
		return Message{}, messageSizeError(err)
	}
	if msg.Attributes, err = d.Int8(); err != nil {
		return Message{}, messageSizeError(err)
	}
	if msg.Key, err = d.NullableBytes(); err != nil {
		return Message{}, messageSizeError(err)
	}
	if msg.Value, err = d.Bytes(); err != nil {
		return Message{}, messageSizeError(err)
	}
	if d.Remaining() != 0 {
		return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidMessageSize, d.Remaining())
	}
	return msg, nil
}

// running short inside a message means its declared size is wrong
func messageSizeError(err error) error {
	if needed, ok := serde.Incomplete(err); ok {
		return fmt.Errorf("%w: content overruns declared size by %d bytes", ErrInvalidMessageSize, needed)
	}
	return err
}

// DecodeMessageSet decodes exactly size bytes of offset tagged messages.
// A trailing entry that does not fit in size is dropped. If not even the
// first entry fits the result is an *serde.IncompleteError.
func DecodeMessageSet(d *serde.Decoder, size int32) (MessageSet, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMessageSetSize, size)
	}
	start := d.Offset
	w, err := d.Window(int(size))
	if err != nil {
		return nil, err
	}

	set := MessageSet{}
	shortfall := 0
	for w.Remaining() > 0 {
		if w.Remaining() < entryHeaderSize {
			shortfall = entryHeaderSize - w.Remaining()
			break
		}
		entryStart := w.Offset
		offset, _ := w.Int64()
		msgSize, _ := w.Int32()
		if msgSize < 0 {
			d.Offset = start
			return nil, fmt.Errorf("%w: %d at offset %d", ErrInvalidMessageSize, msgSize, offset)
		}
		if int(msgSize) > w.Remaining() {
			shortfall = int(msgSize) - w.Remaining()
			w.Offset = entryStart
			break
		}
		msg, err := DecodeMessage(w, msgSize)
		if err != nil {
			d.Offset = start
			return nil, err
		}
		set = append(set, MessageSetEntry{Offset: offset, Message: msg})
	}
	if shortfall > 0 && len(set) == 0 {
		d.Offset = start
		return nil, &serde.IncompleteError{Needed: shortfall}
	}
	return set, nil
}

func (m Message) encode(e *serde.Encoder) {
	crcPos := e.Reserve(4)
	e.PutInt8(m.MagicByte)
	e.PutInt8(m.Attributes)
	e.PutNullableBytes(m.Key)
	e.PutBytes(m.Value)
	e.PutInt32At(crcPos, int32(crc32.ChecksumIEEE(e.Since(crcPos+4))))
}

// encode writes the entries without a leading size, callers write it when the grammar needs one
func (ms MessageSet) encode(e *serde.Encoder) {
	for _, entry := range ms {
		e.PutInt64(entry.Offset)
		sizePos := e.Reserve(4)
		entry.Message.encode(e)
		e.PutInt32At(sizePos, int32(len(e.Since(sizePos+4))))
	}
}

// encodeSized writes the byte size of the set followed by its entries
func (ms MessageSet) encodeSized(e *serde.Encoder) {
	sizePos := e.Reserve(4)
	ms.encode(e)
	e.PutInt32At(sizePos, int32(len(e.Since(sizePos+4))))
}

// Size is the encoded size of the set, without a leading size field
func (ms MessageSet) Size() int {
	size := 0
	for _, entry := range ms {
		size += entryHeaderSize + entry.Message.Size()
	}
	return size
}

// EncodeMessageSet returns the wire bytes of a message set, without a leading size field
func EncodeMessageSet(ms MessageSet) []byte {
	e := serde.NewEncoder()
	ms.encode(&e)
	return e.Bytes()
}

// Decompress inflates a compressed wrapper message into the message set it carries.
// A wrapper inflating past limit bytes is an invalid message.
func (m Message) Decompress(limit int) (MessageSet, error) {
	c, err := compress.GetCompressor(m.Codec())
	if err != nil {
		return nil, err
	}
	raw, err := c.Decompress(m.Value, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return DecodeMessageSet(serde.NewDecoder(raw), int32(len(raw)))
}

// CompressMessageSet wraps a message set into a single message compressed with codec
func CompressMessageSet(codec compress.CompressionType, ms MessageSet) (Message, error) {
	c, err := compress.GetCompressor(codec)
	if err != nil {
		return Message{}, err
	}
	value, err := c.Compress(EncodeMessageSet(ms))
	if err != nil {
		return Message{}, err
	}
	return NewMessage(int8(codec), nil, value), nil
}
