package protocol

import "github.com/Geal/proust/serde"

// ListOffsets (Api key = 2)

// Special values of ListOffsetsPartition.Time
const (
	LatestTime   int64 = -1
	EarliestTime int64 = -2
)

// ListOffsetsRequest asks for offsets by time, per topic and partition.
type ListOffsetsRequest struct {
	ReplicaID int32
	Topics    []ListOffsetsTopic
}

// ListOffsetsTopic lists the partitions queried in one topic.
type ListOffsetsTopic struct {
	Name       string
	Partitions []ListOffsetsPartition
}

// ListOffsetsPartition is the time queried for one partition.
type ListOffsetsPartition struct {
	Partition          int32
	Time               int64
	MaxNumberOfOffsets int32
}

func (r *ListOffsetsRequest) decode(d *serde.Decoder) (err error) {
	if r.ReplicaID, err = d.Int32(); err != nil {
		return err
	}
	r.Topics, err = serde.Array(d, func(d *serde.Decoder) (t ListOffsetsTopic, err error) {
		if t.Name, err = d.Str(); err != nil {
			return t, err
		}
		t.Partitions, err = serde.Array(d, func(d *serde.Decoder) (p ListOffsetsPartition, err error) {
			if p.Partition, err = d.Int32(); err != nil {
				return p, err
			}
			if p.Time, err = d.Int64(); err != nil {
				return p, err
			}
			p.MaxNumberOfOffsets, err = d.Int32()
			return p, err
		})
		return t, err
	})
	return err
}

// ListOffsetsResponse answers a ListOffsetsRequest.
type ListOffsetsResponse struct {
	Topics []ListOffsetsTopicResponse
}

// ListOffsetsTopicResponse holds the offsets of one topic.
type ListOffsetsTopicResponse struct {
	Name       string
	Partitions []ListOffsetsPartitionResponse
}

// ListOffsetsPartitionResponse holds the offsets of one partition.
type ListOffsetsPartitionResponse struct {
	Partition int32
	ErrorCode int16
	Offsets   []int64
}

func (r *ListOffsetsResponse) encode(e *serde.Encoder) {
	serde.PutArray(e, r.Topics, func(e *serde.Encoder, t ListOffsetsTopicResponse) {
		e.PutString(t.Name)
		serde.PutArray(e, t.Partitions, func(e *serde.Encoder, p ListOffsetsPartitionResponse) {
			e.PutInt32(p.Partition)
			e.PutInt16(p.ErrorCode)
			serde.PutArray(e, p.Offsets, (*serde.Encoder).PutInt64)
		})
	})
}
