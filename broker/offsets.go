package broker

import (
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/Geal/proust/serde"
	"github.com/Geal/proust/utils"
)

var offsetsBucket = []byte("consumer_offsets")

// CommittedOffset is the position committed by a consumer group for a partition
type CommittedOffset struct {
	Offset    int64
	Timestamp int64
	Metadata  string
}

// OffsetStore persists committed consumer offsets in a bolt database.
// Keys and values use the wire encoding of the protocol.
type OffsetStore struct {
	db *bolt.DB
}

// OpenOffsetStore opens or creates the database at path
func OpenOffsetStore(path string) (*OffsetStore, error) {
	if err := utils.EnsurePath(path, false); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening offset store %v: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(offsetsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &OffsetStore{db: db}, nil
}

func offsetKey(group, topic string, partition int32) []byte {
	e := serde.NewEncoder()
	e.PutString(group)
	e.PutString(topic)
	e.PutInt32(partition)
	return e.Bytes()
}

// Commit stores the offset of group for topic-partition
func (s *OffsetStore) Commit(group, topic string, partition int32, c CommittedOffset) error {
	e := serde.NewEncoder()
	e.PutInt64(c.Offset)
	e.PutInt64(c.Timestamp)
	e.PutString(c.Metadata)
	value := e.Bytes()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(offsetsBucket).Put(offsetKey(group, topic, partition), value)
	})
}

// Fetch returns the offset committed by group for topic-partition, if any
func (s *OffsetStore) Fetch(group, topic string, partition int32) (CommittedOffset, bool, error) {
	var c CommittedOffset
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(offsetsBucket).Get(offsetKey(group, topic, partition))
		if v == nil {
			return nil
		}
		d := serde.NewDecoder(v)
		var err error
		if c.Offset, err = d.Int64(); err != nil {
			return err
		}
		if c.Timestamp, err = d.Int64(); err != nil {
			return err
		}
		if c.Metadata, err = d.Str(); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return CommittedOffset{}, false, fmt.Errorf("reading offset of %v for %v-%v: %w", group, topic, partition, err)
	}
	return c, found, nil
}

// Close closes the database
func (s *OffsetStore) Close() error {
	return s.db.Close()
}
