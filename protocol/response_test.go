package protocol

import (
	"bytes"
	"testing"

	"github.com/Geal/proust/serde"
)

func TestEncodeGroupCoordinatorResponse(t *testing.T) {
	res := &ResponseMessage{Payload: &GroupCoordinatorResponse{CoordinatorID: 1337, Host: "", Port: 9000}}
	want := []byte{
		0x00, 0x00, 0x00, 0x10,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00, 0x05, 0x39,
		0x00, 0x00,
		0x00, 0x00, 0x23, 0x28,
	}
	if got := EncodeResponse(res); !bytes.Equal(got, want) {
		t.Errorf("expected %x, got %x", want, got)
	}
}

func TestEncodeAPIVersionsResponse(t *testing.T) {
	res := &ResponseMessage{CorrelationID: 1, Payload: &APIVersionsResponse{APIKeys: []APIVersion{
		{APIKey: ProduceKey, MinVersion: 0, MaxVersion: 0},
		{APIKey: OffsetCommitKey, MinVersion: 0, MaxVersion: 2},
	}}}
	want := []byte{
		0x00, 0x00, 0x00, 0x16,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00,
		0x00, 0x00, 0x00, 0x02, // entry count, not byte count
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x08, 0x00, 0x00, 0x00, 0x02,
	}
	if got := EncodeResponse(res); !bytes.Equal(got, want) {
		t.Errorf("expected %x, got %x", want, got)
	}
}

func TestEncodeFetchResponseMessageSet(t *testing.T) {
	set := MessageSet{{Offset: 5, Message: NewMessage(0, []byte("a"), []byte("hi"))}}
	res := &ResponseMessage{CorrelationID: 9, Payload: &FetchResponse{Topics: []FetchTopicResponse{{
		Name:       "t",
		Partitions: []FetchPartitionResponse{{Partition: 0, HighwaterMarkOffset: 6, MessageSet: set}},
	}}}}

	e := serde.NewEncoder()
	e.PutInt32(9)
	e.PutArrayLen(1)
	e.PutString("t")
	e.PutArrayLen(1)
	e.PutInt32(0)
	e.PutInt16(0)
	e.PutInt64(6)
	raw := entry(5, messageWithKey)
	e.PutInt32(int32(len(raw)))
	e.PutRaw(raw)
	want := e.FinishAndReturn()

	if got := EncodeResponse(res); !bytes.Equal(got, want) {
		t.Errorf("expected %x, got %x", want, got)
	}
}

func TestEncodeResponsesFraming(t *testing.T) {
	payloads := map[string]ResponsePayload{
		"produce": &ProduceResponse{Topics: []ProduceTopicResponse{{Name: "t", Partitions: []ProducePartitionResponse{{Partition: 0, Offset: 1337}}}}},
		"fetch": &FetchResponse{Topics: []FetchTopicResponse{{Name: "t", Partitions: []FetchPartitionResponse{
			{Partition: 0, HighwaterMarkOffset: 2, MessageSet: MessageSet{{Offset: 1, Message: NewMessage(0, nil, []byte("v"))}}},
			{Partition: 1, ErrorCode: ErrUnknownTopicOrPartition.Code},
		}}}},
		"list offsets": &ListOffsetsResponse{Topics: []ListOffsetsTopicResponse{{Name: "t", Partitions: []ListOffsetsPartitionResponse{{Partition: 0, Offsets: []int64{10, 0}}}}}},
		"metadata": &MetadataResponse{
			Brokers: []MetadataBroker{{NodeID: 0, Host: "localhost", Port: 9092}},
			Topics: []MetadataTopic{{Name: "t", Partitions: []MetadataPartition{{PartitionID: 0, Leader: 0, Replicas: []int32{0}, Isr: []int32{0}}}},
				{Name: "missing", ErrorCode: ErrUnknownTopicOrPartition.Code}},
		},
		"offset commit":     &OffsetCommitResponse{Topics: []OffsetCommitTopicResponse{{Name: "t", Partitions: []OffsetCommitPartitionResponse{{Partition: 0}}}}},
		"offset fetch":      &OffsetFetchResponse{Topics: []OffsetFetchTopicResponse{{Name: "t", Partitions: []OffsetFetchPartitionResponse{{Partition: 0, Offset: -1}}}}},
		"group coordinator": &GroupCoordinatorResponse{CoordinatorID: 1, Host: "localhost", Port: 9092},
		"api versions":      &APIVersionsResponse{APIKeys: SupportedVersions},
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			res := &ResponseMessage{CorrelationID: 42, Payload: payload}
			first := EncodeResponse(res)
			second := EncodeResponse(res)
			if !bytes.Equal(first, second) {
				t.Errorf("encoding is not deterministic")
			}
			if got := serde.Encoding.Uint32(first); int(got) != len(first)-4 {
				t.Errorf("length header %d, body is %d bytes", got, len(first)-4)
			}
			if got := int32(serde.Encoding.Uint32(first[4:])); got != 42 {
				t.Errorf("correlation id %d", got)
			}
		})
	}
}

func TestEncodeMetadataResponse(t *testing.T) {
	res := &ResponseMessage{CorrelationID: 0, Payload: &MetadataResponse{
		Brokers: []MetadataBroker{{NodeID: 0, Host: "localhost", Port: 8080}},
		Topics: []MetadataTopic{{Name: "default-topic", Partitions: []MetadataPartition{
			{PartitionID: 0, Leader: 0, Replicas: []int32{}, Isr: []int32{}},
		}}},
	}}
	e := serde.NewEncoder()
	e.PutInt32(0)
	e.PutArrayLen(1)
	e.PutInt32(0)
	e.PutString("localhost")
	e.PutInt32(8080)
	e.PutArrayLen(1)
	e.PutInt16(0)
	e.PutString("default-topic")
	e.PutArrayLen(1)
	e.PutInt16(0)
	e.PutInt32(0)
	e.PutInt32(0)
	e.PutArrayLen(0)
	e.PutArrayLen(0)
	want := e.FinishAndReturn()
	if got := EncodeResponse(res); !bytes.Equal(got, want) {
		t.Errorf("expected %x, got %x", want, got)
	}
}
