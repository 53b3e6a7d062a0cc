package protocol

import "github.com/Geal/proust/serde"

// Produce (Api key = 0)

// ProduceRequest carries message sets to append, grouped by topic and partition.
type ProduceRequest struct {
	Acks      int16
	TimeoutMs int32
	Topics    []ProduceTopic
}

// ProduceTopic is the data produced to one topic.
type ProduceTopic struct {
	Name       string
	Partitions []ProducePartition
}

// ProducePartition is the message set produced to one partition.
type ProducePartition struct {
	Partition      int32
	MessageSetSize int32
	MessageSet     MessageSet
}

func (r *ProduceRequest) decode(d *serde.Decoder) (err error) {
	if r.Acks, err = d.Int16(); err != nil {
		return err
	}
	if r.TimeoutMs, err = d.Int32(); err != nil {
		return err
	}
	r.Topics, err = serde.Array(d, decodeProduceTopic)
	return err
}

func decodeProduceTopic(d *serde.Decoder) (t ProduceTopic, err error) {
	if t.Name, err = d.Str(); err != nil {
		return t, err
	}
	t.Partitions, err = serde.Array(d, decodeProducePartition)
	return t, err
}

func decodeProducePartition(d *serde.Decoder) (p ProducePartition, err error) {
	if p.Partition, err = d.Int32(); err != nil {
		return p, err
	}
	if p.MessageSetSize, err = d.Int32(); err != nil {
		return p, err
	}
	p.MessageSet, err = DecodeMessageSet(d, p.MessageSetSize)
	return p, err
}

// ProduceResponse reports the base offset assigned to each produced partition.
type ProduceResponse struct {
	Topics []ProduceTopicResponse
}

// ProduceTopicResponse is the produce result for one topic.
type ProduceTopicResponse struct {
	Name       string
	Partitions []ProducePartitionResponse
}

// ProducePartitionResponse is the produce result for one partition.
type ProducePartitionResponse struct {
	Partition int32
	ErrorCode int16
	Offset    int64
}

func (r *ProduceResponse) encode(e *serde.Encoder) {
	serde.PutArray(e, r.Topics, func(e *serde.Encoder, t ProduceTopicResponse) {
		e.PutString(t.Name)
		serde.PutArray(e, t.Partitions, func(e *serde.Encoder, p ProducePartitionResponse) {
			e.PutInt32(p.Partition)
			e.PutInt16(p.ErrorCode)
			e.PutInt64(p.Offset)
		})
	})
}
