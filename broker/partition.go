package broker

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru"

	"github.com/Geal/proust/compress"
	log "github.com/Geal/proust/logging"
	"github.com/Geal/proust/protocol"
	"github.com/Geal/proust/serde"
	"github.com/Geal/proust/storage"
	"github.com/Geal/proust/utils"
)

// A record is a message set entry prefixed by its append time:
// [append_ts i64][offset i64][size i32][message]
const (
	recordHeaderSize = 8 + 8 + 4
	logFileName      = "00000000000000000000.log"
)

var (
	// ErrOffsetOutOfRange is returned when fetching past the end of a partition
	ErrOffsetOutOfRange = errors.New("offset out of range")
	// ErrEmptyMessage is returned when a compressed wrapper carries no message
	ErrEmptyMessage = errors.New("compressed message is empty")
)

// indexEntry locates a record. LastOffset is the offset written in the record, which for a
// compressed wrapper is the offset of its last inner message.
type indexEntry struct {
	FirstOffset int64
	LastOffset  int64
	Position    int64
	Size        int32 // size of the message set entry, without the append time
	AppendTime  int64
}

func lessIndexEntry(a, b indexEntry) bool {
	return a.LastOffset < b.LastOffset
}

// Partition is the append-only log of one topic partition
type Partition struct {
	Topic string
	Index int32
	// MaxDecompressedSize bounds what a compressed wrapper may inflate to on Append
	MaxDecompressedSize int

	mu         sync.RWMutex
	file       *storage.MappedFile
	index      *btree.BTreeG[indexEntry]
	cache      *lru.Cache
	nextOffset int64
	end        int64
}

// OpenPartition opens or creates the log of topic-index under logDir, and rebuilds its index
func OpenPartition(logDir, topic string, index int32, increment int64, cacheSize int) (*Partition, error) {
	path := filepath.Join(utils.PartitionDir(logDir, topic, index), logFileName)
	file, err := storage.Open(path, increment)
	if err != nil {
		return nil, fmt.Errorf("opening partition %v-%v: %w", topic, index, err)
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	p := &Partition{
		Topic: topic,
		Index: index,
		file:  file,
		index: btree.NewG(32, lessIndexEntry),
		cache: cache,

		MaxDecompressedSize: compress.DefaultDecompressLimit,
	}
	if err := p.recover(); err != nil {
		file.Close()
		return nil, err
	}
	log.Debug("opened partition %v with %d records, next offset %d", p, p.index.Len(), p.nextOffset)
	return p, nil
}

func (p *Partition) String() string {
	return fmt.Sprintf("%v-%v", p.Topic, p.Index)
}

// recover scans the records until a zero size header or the end of the file
func (p *Partition) recover() error {
	var pos int64
	for pos+recordHeaderSize <= p.file.Len() {
		header, err := p.file.Read(pos, recordHeaderSize)
		if err != nil {
			return err
		}
		d := serde.NewDecoder(header)
		appendTime, _ := d.Int64()
		offset, _ := d.Int64()
		size, _ := d.Int32()
		if size <= 0 {
			break
		}
		if pos+recordHeaderSize+int64(size) > p.file.Len() || offset < p.nextOffset {
			log.Warn("partition %v: truncating corrupt record at position %d", p, pos)
			break
		}
		p.index.ReplaceOrInsert(indexEntry{
			FirstOffset: p.nextOffset,
			LastOffset:  offset,
			Position:    pos,
			Size:        int32(8+4) + size,
			AppendTime:  appendTime,
		})
		p.nextOffset = offset + 1
		pos += recordHeaderSize + int64(size)
	}
	p.end = pos
	return nil
}

// NextOffset is the offset of the next appended message, the high watermark
func (p *Partition) NextOffset() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextOffset
}

// StartOffset is the first offset held by the partition
func (p *Partition) StartOffset() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if first, ok := p.index.Min(); ok {
		return first.FirstOffset
	}
	return p.nextOffset
}

// Append assigns offsets to the entries of ms and writes them, returning the first assigned offset.
// The messages carried by a compressed wrapper get one offset each and the wrapper takes the last one.
func (p *Partition) Append(ms protocol.MessageSet, appendTime int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	base := p.nextOffset
	next := base
	entries := make([]indexEntry, 0, len(ms))
	records := serde.NewEncoder()
	for _, entry := range ms {
		msg, last, err := assignOffsets(entry.Message, next, p.MaxDecompressedSize)
		if err != nil {
			return base, err
		}
		start := records.Offset()
		records.PutInt64(appendTime)
		records.PutRaw(protocol.EncodeMessageSet(protocol.MessageSet{{Offset: last, Message: msg}}))
		entries = append(entries, indexEntry{
			FirstOffset: next,
			LastOffset:  last,
			Position:    p.end + int64(start),
			Size:        int32(records.Offset() - start - 8),
			AppendTime:  appendTime,
		})
		next = last + 1
	}
	// nothing is written unless every entry is valid
	b := records.Bytes()
	if len(b) == 0 {
		return base, nil
	}
	if err := p.file.Write(p.end, b); err != nil {
		return base, fmt.Errorf("appending to %v: %w", p, err)
	}
	for _, e := range entries {
		p.index.ReplaceOrInsert(e)
	}
	p.end += int64(len(b))
	p.nextOffset = next
	return base, nil
}

// assignOffsets returns the message to store for first and its last offset
func assignOffsets(msg protocol.Message, first int64, limit int) (protocol.Message, int64, error) {
	codec := msg.Codec()
	if codec == compress.NONE {
		return protocol.NewMessage(msg.Attributes, msg.Key, msg.Value), first, nil
	}
	inner, err := msg.Decompress(limit)
	if err != nil {
		return msg, first, err
	}
	if len(inner) == 0 {
		return msg, first, ErrEmptyMessage
	}
	for i := range inner {
		inner[i].Offset = first + int64(i)
	}
	wrapper, err := protocol.CompressMessageSet(codec, inner)
	if err != nil {
		return msg, first, err
	}
	return wrapper, first + int64(len(inner)) - 1, nil
}

// Read returns the entries holding offset and the following ones, up to maxBytes.
// At least one entry is returned when offset is below the high watermark.
func (p *Partition) Read(offset int64, maxBytes int32) (protocol.MessageSet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if offset < 0 || offset > p.nextOffset {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrOffsetOutOfRange, offset, p.nextOffset)
	}
	var entries []indexEntry
	total := 0
	p.index.AscendGreaterOrEqual(indexEntry{LastOffset: offset}, func(e indexEntry) bool {
		if len(entries) > 0 && total+int(e.Size) > int(maxBytes) {
			return false
		}
		entries = append(entries, e)
		total += int(e.Size)
		return true
	})

	ms := make(protocol.MessageSet, 0, len(entries))
	for _, e := range entries {
		entry, err := p.entryAt(e)
		if err != nil {
			return ms, err
		}
		ms = append(ms, entry)
	}
	return ms, nil
}

func (p *Partition) entryAt(e indexEntry) (protocol.MessageSetEntry, error) {
	if cached, ok := p.cache.Get(e.LastOffset); ok {
		return cached.(protocol.MessageSetEntry), nil
	}
	raw, err := p.file.Read(e.Position+8, int64(e.Size))
	if err != nil {
		return protocol.MessageSetEntry{}, err
	}
	set, err := protocol.DecodeMessageSet(serde.NewDecoder(raw), e.Size)
	if err != nil {
		return protocol.MessageSetEntry{}, fmt.Errorf("partition %v: record at %d: %w", p, e.Position, err)
	}
	if len(set) != 1 {
		return protocol.MessageSetEntry{}, fmt.Errorf("partition %v: record at %d holds %d entries", p, e.Position, len(set))
	}
	p.cache.Add(e.LastOffset, set[0])
	return set[0], nil
}

// OffsetForTime resolves a ListOffsets time: LatestTime, EarliestTime or a timestamp in ms.
// A timestamp gives the first offset appended at or after it, or the next offset.
func (p *Partition) OffsetForTime(t int64) int64 {
	switch t {
	case protocol.LatestTime:
		return p.NextOffset()
	case protocol.EarliestTime:
		return p.StartOffset()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := p.nextOffset
	p.index.Ascend(func(e indexEntry) bool {
		if e.AppendTime >= t {
			result = e.FirstOffset
			return false
		}
		return true
	})
	return result
}

// Sync flushes the log to disk
func (p *Partition) Sync() error {
	return p.file.Sync()
}

// Close syncs and closes the log
func (p *Partition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
	return p.file.Close()
}
