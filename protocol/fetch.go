package protocol

import "github.com/Geal/proust/serde"

// Fetch (Api key = 1)

// FetchRequest asks for messages starting at an offset, per topic and partition.
type FetchRequest struct {
	ReplicaID   int32
	MaxWaitTime int32
	MinBytes    int32
	Topics      []FetchTopic
}

// FetchTopic lists the partitions fetched from one topic.
type FetchTopic struct {
	Name       string
	Partitions []FetchPartition
}

// FetchPartition is the position and size limit for one partition.
type FetchPartition struct {
	Partition   int32
	FetchOffset int64
	MaxBytes    int32
}

func (r *FetchRequest) decode(d *serde.Decoder) (err error) {
	if r.ReplicaID, err = d.Int32(); err != nil {
		return err
	}
	if r.MaxWaitTime, err = d.Int32(); err != nil {
		return err
	}
	if r.MinBytes, err = d.Int32(); err != nil {
		return err
	}
	r.Topics, err = serde.Array(d, func(d *serde.Decoder) (t FetchTopic, err error) {
		if t.Name, err = d.Str(); err != nil {
			return t, err
		}
		t.Partitions, err = serde.Array(d, func(d *serde.Decoder) (p FetchPartition, err error) {
			if p.Partition, err = d.Int32(); err != nil {
				return p, err
			}
			if p.FetchOffset, err = d.Int64(); err != nil {
				return p, err
			}
			p.MaxBytes, err = d.Int32()
			return p, err
		})
		return t, err
	})
	return err
}

// FetchResponse carries the fetched message sets.
type FetchResponse struct {
	Topics []FetchTopicResponse
}

// FetchTopicResponse is the fetch result for one topic.
type FetchTopicResponse struct {
	Name       string
	Partitions []FetchPartitionResponse
}

// FetchPartitionResponse is the fetch result for one partition.
type FetchPartitionResponse struct {
	Partition           int32
	ErrorCode           int16
	HighwaterMarkOffset int64
	MessageSet          MessageSet
}

func (r *FetchResponse) encode(e *serde.Encoder) {
	serde.PutArray(e, r.Topics, func(e *serde.Encoder, t FetchTopicResponse) {
		e.PutString(t.Name)
		serde.PutArray(e, t.Partitions, func(e *serde.Encoder, p FetchPartitionResponse) {
			e.PutInt32(p.Partition)
			e.PutInt16(p.ErrorCode)
			e.PutInt64(p.HighwaterMarkOffset)
			p.MessageSet.encodeSized(e)
		})
	})
}
