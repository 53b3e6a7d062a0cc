package protocol

import "github.com/Geal/proust/serde"

// Metadata	(Api key = 3)

// MetadataRequest lists topic names. An empty list means every topic.
type MetadataRequest struct {
	Topics []string
}

func (r *MetadataRequest) decode(d *serde.Decoder) (err error) {
	r.Topics, err = serde.StringArray(d)
	return err
}

// MetadataBroker represents a broker in a metadata response.
type MetadataBroker struct {
	NodeID int32
	Host   string
	Port   int32
}

// MetadataPartition represents partition information in a metadata response.
type MetadataPartition struct {
	ErrorCode   int16
	PartitionID int32
	Leader      int32
	Replicas    []int32
	Isr         []int32
}

// MetadataTopic represents a topic in the metadata response.
type MetadataTopic struct {
	ErrorCode  int16
	Name       string
	Partitions []MetadataPartition
}

// MetadataResponse lists the brokers and the requested topics.
type MetadataResponse struct {
	Brokers []MetadataBroker
	Topics  []MetadataTopic
}

func (r *MetadataResponse) encode(e *serde.Encoder) {
	serde.PutArray(e, r.Brokers, func(e *serde.Encoder, b MetadataBroker) {
		e.PutInt32(b.NodeID)
		e.PutString(b.Host)
		e.PutInt32(b.Port)
	})
	serde.PutArray(e, r.Topics, func(e *serde.Encoder, t MetadataTopic) {
		e.PutInt16(t.ErrorCode)
		e.PutString(t.Name)
		serde.PutArray(e, t.Partitions, func(e *serde.Encoder, p MetadataPartition) {
			e.PutInt16(p.ErrorCode)
			e.PutInt32(p.PartitionID)
			e.PutInt32(p.Leader)
			serde.PutArray(e, p.Replicas, (*serde.Encoder).PutInt32)
			serde.PutArray(e, p.Isr, (*serde.Encoder).PutInt32)
		})
	})
}
