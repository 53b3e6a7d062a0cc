package protocol

import "github.com/Geal/proust/serde"

// OffsetCommit (Api key = 8). Each version has its own request shape.

// OffsetCommitRequestV0 commits offsets for a group.
type OffsetCommitRequestV0 struct {
	GroupID string
	Topics  []OffsetCommitTopicV0
}

// OffsetCommitRequestV1 adds the group generation, the consumer id and a per partition timestamp.
type OffsetCommitRequestV1 struct {
	GroupID      string
	GenerationID int32
	ConsumerID   string
	Topics       []OffsetCommitTopicV1
}

// OffsetCommitRequestV2 replaces the per partition timestamp with a request wide retention time.
type OffsetCommitRequestV2 struct {
	GroupID       string
	GenerationID  int32
	ConsumerID    string
	RetentionTime int64
	Topics        []OffsetCommitTopicV0
}

// OffsetCommitTopicV0 is used by v0 and v2.
type OffsetCommitTopicV0 struct {
	Name       string
	Partitions []OffsetCommitPartitionV0
}

// OffsetCommitPartitionV0 is used by v0 and v2.
type OffsetCommitPartitionV0 struct {
	Partition int32
	Offset    int64
	Metadata  string
}

// OffsetCommitTopicV1 holds v1 partitions.
type OffsetCommitTopicV1 struct {
	Name       string
	Partitions []OffsetCommitPartitionV1
}

// OffsetCommitPartitionV1 carries a commit timestamp.
type OffsetCommitPartitionV1 struct {
	Partition int32
	Offset    int64
	Timestamp int64
	Metadata  string
}

func decodeOffsetCommitTopicV0(d *serde.Decoder) (t OffsetCommitTopicV0, err error) {
	if t.Name, err = d.Str(); err != nil {
		return t, err
	}
	t.Partitions, err = serde.Array(d, func(d *serde.Decoder) (p OffsetCommitPartitionV0, err error) {
		if p.Partition, err = d.Int32(); err != nil {
			return p, err
		}
		if p.Offset, err = d.Int64(); err != nil {
			return p, err
		}
		p.Metadata, err = d.Str()
		return p, err
	})
	return t, err
}

func decodeOffsetCommitTopicV1(d *serde.Decoder) (t OffsetCommitTopicV1, err error) {
	if t.Name, err = d.Str(); err != nil {
		return t, err
	}
	t.Partitions, err = serde.Array(d, func(d *serde.Decoder) (p OffsetCommitPartitionV1, err error) {
		if p.Partition, err = d.Int32(); err != nil {
			return p, err
		}
		if p.Offset, err = d.Int64(); err != nil {
			return p, err
		}
		if p.Timestamp, err = d.Int64(); err != nil {
			return p, err
		}
		p.Metadata, err = d.Str()
		return p, err
	})
	return t, err
}

func (r *OffsetCommitRequestV0) decode(d *serde.Decoder) (err error) {
	if r.GroupID, err = d.Str(); err != nil {
		return err
	}
	r.Topics, err = serde.Array(d, decodeOffsetCommitTopicV0)
	return err
}

func (r *OffsetCommitRequestV1) decode(d *serde.Decoder) (err error) {
	if r.GroupID, err = d.Str(); err != nil {
		return err
	}
	if r.GenerationID, err = d.Int32(); err != nil {
		return err
	}
	if r.ConsumerID, err = d.Str(); err != nil {
		return err
	}
	r.Topics, err = serde.Array(d, decodeOffsetCommitTopicV1)
	return err
}

func (r *OffsetCommitRequestV2) decode(d *serde.Decoder) (err error) {
	if r.GroupID, err = d.Str(); err != nil {
		return err
	}
	if r.GenerationID, err = d.Int32(); err != nil {
		return err
	}
	if r.ConsumerID, err = d.Str(); err != nil {
		return err
	}
	if r.RetentionTime, err = d.Int64(); err != nil {
		return err
	}
	r.Topics, err = serde.Array(d, decodeOffsetCommitTopicV0)
	return err
}

// OffsetCommitResponse reports the commit result of every partition.
type OffsetCommitResponse struct {
	Topics []OffsetCommitTopicResponse
}

// OffsetCommitTopicResponse is the commit result for one topic.
type OffsetCommitTopicResponse struct {
	Name       string
	Partitions []OffsetCommitPartitionResponse
}

// OffsetCommitPartitionResponse is the commit result for one partition.
type OffsetCommitPartitionResponse struct {
	Partition int32
	ErrorCode int16
}

func (r *OffsetCommitResponse) encode(e *serde.Encoder) {
	serde.PutArray(e, r.Topics, func(e *serde.Encoder, t OffsetCommitTopicResponse) {
		e.PutString(t.Name)
		serde.PutArray(e, t.Partitions, func(e *serde.Encoder, p OffsetCommitPartitionResponse) {
			e.PutInt32(p.Partition)
			e.PutInt16(p.ErrorCode)
		})
	})
}
