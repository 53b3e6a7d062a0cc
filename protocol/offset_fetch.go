package protocol

import "github.com/Geal/proust/serde"

// OffsetFetch (Api key = 9)

// OffsetFetchRequest asks for the committed offsets of a group.
type OffsetFetchRequest struct {
	GroupID string
	Topics  []OffsetFetchTopic
}

// OffsetFetchTopic lists the partitions queried in one topic.
type OffsetFetchTopic struct {
	Name       string
	Partitions []int32
}

func (r *OffsetFetchRequest) decode(d *serde.Decoder) (err error) {
	if r.GroupID, err = d.Str(); err != nil {
		return err
	}
	r.Topics, err = serde.Array(d, func(d *serde.Decoder) (t OffsetFetchTopic, err error) {
		if t.Name, err = d.Str(); err != nil {
			return t, err
		}
		t.Partitions, err = serde.Int32Array(d)
		return t, err
	})
	return err
}

// OffsetFetchResponse holds the committed offsets.
type OffsetFetchResponse struct {
	Topics []OffsetFetchTopicResponse
}

// OffsetFetchTopicResponse holds the committed offsets of one topic.
type OffsetFetchTopicResponse struct {
	Name       string
	Partitions []OffsetFetchPartitionResponse
}

// OffsetFetchPartitionResponse is the committed offset of one partition, -1 if none.
type OffsetFetchPartitionResponse struct {
	Partition int32
	Offset    int64
	Metadata  string
	ErrorCode int16
}

func (r *OffsetFetchResponse) encode(e *serde.Encoder) {
	serde.PutArray(e, r.Topics, func(e *serde.Encoder, t OffsetFetchTopicResponse) {
		e.PutString(t.Name)
		serde.PutArray(e, t.Partitions, func(e *serde.Encoder, p OffsetFetchPartitionResponse) {
			e.PutInt32(p.Partition)
			e.PutInt64(p.Offset)
			e.PutString(p.Metadata)
			e.PutInt16(p.ErrorCode)
		})
	})
}
