package broker

import (
	"errors"
	"testing"

	"github.com/Geal/proust/compress"
	"github.com/Geal/proust/protocol"
	"github.com/Geal/proust/serde"
	"github.com/Geal/proust/types"
)

func testConfig(t *testing.T) *types.Configuration {
	t.Helper()
	config := types.DefaultConfiguration()
	config.LogDir = t.TempDir()
	config.BrokerHost = "localhost"
	config.NodeID = 1
	config.StorageIncrement = 4096
	config.FlushIntervalMs = 0
	return &config
}

func newTestBroker(t *testing.T, config *types.Configuration) *Broker {
	t.Helper()
	b, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func handle(t *testing.T, b *Broker, payload protocol.RequestPayload) protocol.ResponsePayload {
	t.Helper()
	res, err := b.Handle(&protocol.RequestMessage{CorrelationID: 9, ClientID: "test", Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		return nil
	}
	if res.CorrelationID != 9 {
		t.Errorf("expected correlation id 9, got %d", res.CorrelationID)
	}
	return res.Payload
}

func produceRequest(topic string, partition int32, acks int16, values ...string) *protocol.ProduceRequest {
	return &protocol.ProduceRequest{
		Acks:      acks,
		TimeoutMs: 1000,
		Topics: []protocol.ProduceTopic{{
			Name:       topic,
			Partitions: []protocol.ProducePartition{{Partition: partition, MessageSet: messages(values...)}},
		}},
	}
}

func fetchRequest(topic string, partition int32, offset int64) *protocol.FetchRequest {
	return &protocol.FetchRequest{
		ReplicaID: -1,
		Topics: []protocol.FetchTopic{{
			Name:       topic,
			Partitions: []protocol.FetchPartition{{Partition: partition, FetchOffset: offset, MaxBytes: 1 << 20}},
		}},
	}
}

func TestMetadata(t *testing.T) {
	config := testConfig(t)
	b := newTestBroker(t, config)
	defer b.Shutdown()

	res := handle(t, b, &protocol.MetadataRequest{Topics: []string{"events", "bad/name"}}).(*protocol.MetadataResponse)
	if len(res.Brokers) != 1 || res.Brokers[0].Host != "localhost" || res.Brokers[0].Port != 9092 || res.Brokers[0].NodeID != 1 {
		t.Errorf("unexpected brokers %+v", res.Brokers)
	}
	if len(res.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(res.Topics))
	}
	events := res.Topics[0]
	if events.ErrorCode != 0 || len(events.Partitions) != 1 || events.Partitions[0].Leader != 1 {
		t.Errorf("expected events to be auto created with one partition led by 1, got %+v", events)
	}
	if res.Topics[1].ErrorCode != protocol.ErrInvalidTopic.Code {
		t.Errorf("expected INVALID_TOPIC for bad/name, got %d", res.Topics[1].ErrorCode)
	}

	// an empty list means every topic
	res = handle(t, b, &protocol.MetadataRequest{}).(*protocol.MetadataResponse)
	if len(res.Topics) != 1 || res.Topics[0].Name != "events" {
		t.Errorf("expected [events], got %+v", res.Topics)
	}
}

func TestMetadataWithoutAutoCreate(t *testing.T) {
	config := testConfig(t)
	config.AutoCreateTopics = false
	b := newTestBroker(t, config)
	defer b.Shutdown()

	res := handle(t, b, &protocol.MetadataRequest{Topics: []string{"events"}}).(*protocol.MetadataResponse)
	if res.Topics[0].ErrorCode != protocol.ErrUnknownTopicOrPartition.Code {
		t.Errorf("expected UNKNOWN_TOPIC_OR_PARTITION, got %d", res.Topics[0].ErrorCode)
	}
}

func TestProduceFetch(t *testing.T) {
	b := newTestBroker(t, testConfig(t))
	defer b.Shutdown()

	pr := handle(t, b, produceRequest("events", 0, 1, "a", "b")).(*protocol.ProduceResponse)
	if p := pr.Topics[0].Partitions[0]; p.ErrorCode != 0 || p.Offset != 0 {
		t.Fatalf("unexpected produce response %+v", p)
	}
	pr = handle(t, b, produceRequest("events", 0, -1, "c")).(*protocol.ProduceResponse)
	if p := pr.Topics[0].Partitions[0]; p.Offset != 2 {
		t.Errorf("expected base offset 2, got %d", p.Offset)
	}

	fr := handle(t, b, fetchRequest("events", 0, 1)).(*protocol.FetchResponse)
	p := fr.Topics[0].Partitions[0]
	if p.ErrorCode != 0 || p.HighwaterMarkOffset != 3 {
		t.Fatalf("unexpected fetch response %+v", p)
	}
	if len(p.MessageSet) != 2 || string(p.MessageSet[0].Message.Value) != "b" || p.MessageSet[1].Offset != 2 {
		t.Errorf("unexpected message set %+v", p.MessageSet)
	}

	tests := []struct {
		name      string
		req       *protocol.FetchRequest
		errorCode int16
	}{
		{"out of range", fetchRequest("events", 0, 10), protocol.ErrOffsetOutOfRange.Code},
		{"unknown topic", fetchRequest("missing", 0, 0), protocol.ErrUnknownTopicOrPartition.Code},
		{"unknown partition", fetchRequest("events", 3, 0), protocol.ErrUnknownTopicOrPartition.Code},
	}
	for _, tt := range tests {
		fr := handle(t, b, tt.req).(*protocol.FetchResponse)
		if got := fr.Topics[0].Partitions[0].ErrorCode; got != tt.errorCode {
			t.Errorf("%v: expected error %d, got %d", tt.name, tt.errorCode, got)
		}
	}
}

func TestProduceAcks(t *testing.T) {
	b := newTestBroker(t, testConfig(t))
	defer b.Shutdown()

	if res := handle(t, b, produceRequest("events", 0, 0, "fire and forget")); res != nil {
		t.Errorf("expected no response with acks=0, got %+v", res)
	}
	fr := handle(t, b, fetchRequest("events", 0, 0)).(*protocol.FetchResponse)
	if len(fr.Topics[0].Partitions[0].MessageSet) != 1 {
		t.Errorf("message produced with acks=0 was not appended")
	}

	pr := handle(t, b, produceRequest("events", 0, 5, "x")).(*protocol.ProduceResponse)
	if got := pr.Topics[0].Partitions[0].ErrorCode; got != protocol.ErrInvalidRequiredAcks.Code {
		t.Errorf("expected INVALID_REQUIRED_ACKS, got %d", got)
	}
}

func TestListOffsets(t *testing.T) {
	b := newTestBroker(t, testConfig(t))
	defer b.Shutdown()
	handle(t, b, produceRequest("events", 0, 1, "a", "b", "c"))

	tests := []struct {
		time      int64
		max       int32
		offsets   []int64
		errorCode int16
	}{
		{protocol.LatestTime, 1, []int64{3}, 0},
		{protocol.EarliestTime, 1, []int64{0}, 0},
		{0, 1, []int64{0}, 0},
		{protocol.LatestTime, 0, []int64{}, 0},
	}
	for _, tt := range tests {
		req := &protocol.ListOffsetsRequest{ReplicaID: -1, Topics: []protocol.ListOffsetsTopic{{
			Name:       "events",
			Partitions: []protocol.ListOffsetsPartition{{Partition: 0, Time: tt.time, MaxNumberOfOffsets: tt.max}},
		}}}
		res := handle(t, b, req).(*protocol.ListOffsetsResponse)
		p := res.Topics[0].Partitions[0]
		if p.ErrorCode != tt.errorCode || len(p.Offsets) != len(tt.offsets) || (len(p.Offsets) > 0 && p.Offsets[0] != tt.offsets[0]) {
			t.Errorf("time %d: expected %v, got %+v", tt.time, tt.offsets, p)
		}
	}
}

func TestOffsetCommitFetch(t *testing.T) {
	b := newTestBroker(t, testConfig(t))
	defer b.Shutdown()

	commit := &protocol.OffsetCommitRequestV1{
		GroupID:      "group",
		GenerationID: 1,
		ConsumerID:   "consumer",
		Topics: []protocol.OffsetCommitTopicV1{{Name: "events", Partitions: []protocol.OffsetCommitPartitionV1{
			{Partition: 0, Offset: 12, Timestamp: -1, Metadata: "meta"},
			{Partition: 1, Offset: 3, Timestamp: 5, Metadata: string(make([]byte, maxOffsetMetadataSize+1))},
		}}},
	}
	cr := handle(t, b, commit).(*protocol.OffsetCommitResponse)
	if cr.Topics[0].Name != "events" || cr.Topics[0].Partitions[0].ErrorCode != 0 {
		t.Errorf("unexpected commit response %+v", cr.Topics[0])
	}
	if got := cr.Topics[0].Partitions[1].ErrorCode; got != protocol.ErrOffsetMetadataTooLarge.Code {
		t.Errorf("expected OFFSET_METADATA_TOO_LARGE, got %d", got)
	}

	v0 := &protocol.OffsetCommitRequestV0{GroupID: "", Topics: []protocol.OffsetCommitTopicV0{{Name: "events", Partitions: []protocol.OffsetCommitPartitionV0{{Partition: 0, Offset: 1}}}}}
	cr = handle(t, b, v0).(*protocol.OffsetCommitResponse)
	if got := cr.Topics[0].Partitions[0].ErrorCode; got != protocol.ErrInvalidGroupID.Code {
		t.Errorf("expected INVALID_GROUP_ID for an empty group, got %d", got)
	}

	v2 := &protocol.OffsetCommitRequestV2{GroupID: "group", RetentionTime: -1, Topics: []protocol.OffsetCommitTopicV0{{Name: "logs", Partitions: []protocol.OffsetCommitPartitionV0{{Partition: 2, Offset: 99}}}}}
	handle(t, b, v2)

	fetch := &protocol.OffsetFetchRequest{GroupID: "group", Topics: []protocol.OffsetFetchTopic{
		{Name: "events", Partitions: []int32{0, 1}},
		{Name: "logs", Partitions: []int32{2}},
	}}
	fr := handle(t, b, fetch).(*protocol.OffsetFetchResponse)
	events := fr.Topics[0].Partitions
	if events[0].Offset != 12 || events[0].Metadata != "meta" {
		t.Errorf("unexpected committed offset %+v", events[0])
	}
	if events[1].Offset != -1 || events[1].Metadata != "" || events[1].ErrorCode != 0 {
		t.Errorf("expected a missing offset to be -1, got %+v", events[1])
	}
	if fr.Topics[1].Partitions[0].Offset != 99 {
		t.Errorf("expected the v2 commit, got %+v", fr.Topics[1].Partitions[0])
	}
}

func TestGroupCoordinatorAndAPIVersions(t *testing.T) {
	b := newTestBroker(t, testConfig(t))
	defer b.Shutdown()

	gc := handle(t, b, &protocol.GroupCoordinatorRequest{GroupID: "group"}).(*protocol.GroupCoordinatorResponse)
	if gc.ErrorCode != 0 || gc.CoordinatorID != 1 || gc.Host != "localhost" || gc.Port != 9092 {
		t.Errorf("unexpected coordinator %+v", gc)
	}
	gc = handle(t, b, &protocol.GroupCoordinatorRequest{}).(*protocol.GroupCoordinatorResponse)
	if gc.ErrorCode != protocol.ErrInvalidGroupID.Code {
		t.Errorf("expected INVALID_GROUP_ID, got %d", gc.ErrorCode)
	}

	av := handle(t, b, &protocol.APIVersionsRequest{}).(*protocol.APIVersionsResponse)
	if len(av.APIKeys) != len(protocol.SupportedVersions) {
		t.Errorf("expected %d api keys, got %d", len(protocol.SupportedVersions), len(av.APIKeys))
	}
}

func requestBody(key, version int16, correlationID int32, put func(e *serde.Encoder)) []byte {
	e := serde.NewEncoder()
	e.PutInt16(key)
	e.PutInt16(version)
	e.PutInt32(correlationID)
	e.PutString("test-client")
	put(&e)
	return e.Bytes()
}

func metadataBody(correlationID int32, topics ...string) []byte {
	return requestBody(protocol.MetadataKey, 0, correlationID, func(e *serde.Encoder) {
		serde.PutArray(e, topics, func(e *serde.Encoder, s string) { e.PutString(s) })
	})
}

func TestDispatch(t *testing.T) {
	b := newTestBroker(t, testConfig(t))
	defer b.Shutdown()

	out, err := b.Dispatch(metadataBody(42, "events"))
	if err != nil {
		t.Fatal(err)
	}
	d := serde.NewDecoder(out)
	size, _ := d.Int32()
	correlationID, _ := d.Int32()
	if int(size) != len(out)-4 {
		t.Errorf("size header %d does not match %d bytes", size, len(out)-4)
	}
	if correlationID != 42 {
		t.Errorf("expected correlation id 42, got %d", correlationID)
	}

	join := requestBody(protocol.JoinGroupKey, 0, 1, func(e *serde.Encoder) {})
	if _, err := b.Dispatch(join); !errors.Is(err, protocol.ErrNotImplemented) {
		t.Errorf("expected ErrNotImplemented, got %v", err)
	}
	if _, err := b.Dispatch([]byte{0, 3}); !errors.Is(err, protocol.ErrInvalidRequestSize) {
		t.Errorf("expected ErrInvalidRequestSize for a truncated body, got %v", err)
	}
}

func TestRestartKeepsData(t *testing.T) {
	config := testConfig(t)
	b := newTestBroker(t, config)
	handle(t, b, produceRequest("events", 0, 1, "a", "b"))
	handle(t, b, &protocol.OffsetCommitRequestV0{GroupID: "g", Topics: []protocol.OffsetCommitTopicV0{{Name: "events", Partitions: []protocol.OffsetCommitPartitionV0{{Partition: 0, Offset: 1}}}}})
	b.Flush()
	if err := b.Shutdown(); err != nil {
		t.Fatal(err)
	}

	config.AutoCreateTopics = false
	b = newTestBroker(t, config)
	defer b.Shutdown()
	fr := handle(t, b, fetchRequest("events", 0, 0)).(*protocol.FetchResponse)
	p := fr.Topics[0].Partitions[0]
	if p.ErrorCode != 0 || p.HighwaterMarkOffset != 2 || len(p.MessageSet) != 2 {
		t.Errorf("data lost across restart: %+v", p)
	}
	of := handle(t, b, &protocol.OffsetFetchRequest{GroupID: "g", Topics: []protocol.OffsetFetchTopic{{Name: "events", Partitions: []int32{0}}}}).(*protocol.OffsetFetchResponse)
	if of.Topics[0].Partitions[0].Offset != 1 {
		t.Errorf("committed offset lost across restart")
	}
}

func TestFailedProduceStoresNothing(t *testing.T) {
	b := newTestBroker(t, testConfig(t))
	defer b.Shutdown()

	req := produceRequest("events", 0, 1, "plain")
	corrupt := protocol.NewMessage(int8(compress.GZIP), nil, []byte("not gzip"))
	req.Topics[0].Partitions[0].MessageSet = append(req.Topics[0].Partitions[0].MessageSet, protocol.MessageSetEntry{Message: corrupt})
	pr := handle(t, b, req).(*protocol.ProduceResponse)
	if p := pr.Topics[0].Partitions[0]; p.ErrorCode != protocol.ErrCorruptMessage.Code || p.Offset != -1 {
		t.Errorf("expected CORRUPT_MESSAGE and offset -1, got %+v", p)
	}

	fr := handle(t, b, fetchRequest("events", 0, 0)).(*protocol.FetchResponse)
	if p := fr.Topics[0].Partitions[0]; p.HighwaterMarkOffset != 0 || len(p.MessageSet) != 0 {
		t.Errorf("a rejected produce left data behind: hw=%d entries=%d", p.HighwaterMarkOffset, len(p.MessageSet))
	}
}
