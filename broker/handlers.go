package broker

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-metrics"

	"github.com/Geal/proust/compress"
	log "github.com/Geal/proust/logging"
	"github.com/Geal/proust/protocol"
	"github.com/Geal/proust/utils"
)

// maxOffsetMetadataSize mirrors Kafka's offset.metadata.max.bytes default
const maxOffsetMetadataSize = 4096

// Handle implements protocol.Handler
func (b *Broker) Handle(req *protocol.RequestMessage) (*protocol.ResponseMessage, error) {
	var payload protocol.ResponsePayload
	switch r := req.Payload.(type) {
	case *protocol.MetadataRequest:
		payload = b.handleMetadata(r)
	case *protocol.ProduceRequest:
		res := b.handleProduce(r)
		if r.Acks == 0 {
			return nil, nil
		}
		payload = res
	case *protocol.FetchRequest:
		payload = b.handleFetch(r)
	case *protocol.ListOffsetsRequest:
		payload = b.handleListOffsets(r)
	case *protocol.OffsetCommitRequestV0:
		payload = b.handleOffsetCommit(r.GroupID, commitsV0(r.Topics))
	case *protocol.OffsetCommitRequestV1:
		payload = b.handleOffsetCommit(r.GroupID, commitsV1(r.Topics))
	case *protocol.OffsetCommitRequestV2:
		payload = b.handleOffsetCommit(r.GroupID, commitsV0(r.Topics))
	case *protocol.OffsetFetchRequest:
		payload = b.handleOffsetFetch(r)
	case *protocol.GroupCoordinatorRequest:
		payload = b.handleGroupCoordinator(r)
	case *protocol.APIVersionsRequest:
		payload = &protocol.APIVersionsResponse{ErrorCode: protocol.ErrNone.Code, APIKeys: protocol.SupportedVersions}
	default:
		return nil, fmt.Errorf("%w: %v", protocol.ErrNotImplemented, protocol.APIName(req.APIKey))
	}
	return &protocol.ResponseMessage{CorrelationID: req.CorrelationID, Payload: payload}, nil
}

// Metadata (Api key = 3)
func (b *Broker) handleMetadata(req *protocol.MetadataRequest) *protocol.MetadataResponse {
	res := &protocol.MetadataResponse{}
	for _, node := range b.Registry.Nodes() {
		res.Brokers = append(res.Brokers, protocol.MetadataBroker{NodeID: node.NodeID, Host: node.Host, Port: node.Port})
	}

	names := req.Topics
	if len(names) == 0 {
		names = b.Registry.TopicNames()
	}
	res.Topics = make([]protocol.MetadataTopic, 0, len(names))
	for _, name := range names {
		topic, perr := b.ensureTopic(name)
		mt := protocol.MetadataTopic{ErrorCode: perr.Code, Name: name, Partitions: []protocol.MetadataPartition{}}
		for _, id := range topic.PartitionIDs() {
			p := topic.Partitions[id]
			mt.Partitions = append(mt.Partitions, protocol.MetadataPartition{
				ErrorCode:   protocol.ErrNone.Code,
				PartitionID: id,
				Leader:      p.LeaderID,
				Replicas:    p.ReplicaNodes,
				Isr:         p.IsrNodes,
			})
		}
		res.Topics = append(res.Topics, mt)
	}
	return res
}

// Produce (Api key = 0)
func (b *Broker) handleProduce(req *protocol.ProduceRequest) *protocol.ProduceResponse {
	now := utils.NowAsUnixMilli()
	res := &protocol.ProduceResponse{Topics: make([]protocol.ProduceTopicResponse, 0, len(req.Topics))}
	for _, topic := range req.Topics {
		tr := protocol.ProduceTopicResponse{Name: topic.Name, Partitions: make([]protocol.ProducePartitionResponse, 0, len(topic.Partitions))}
		_, topicErr := b.ensureTopic(topic.Name)
		for _, part := range topic.Partitions {
			pr := protocol.ProducePartitionResponse{Partition: part.Partition, Offset: -1}
			pr.ErrorCode = b.produce(req.Acks, topicErr, topic.Name, part, now, &pr.Offset)
			if pr.ErrorCode != protocol.ErrNone.Code {
				log.Debug("produce to %v-%v rejected: %v", topic.Name, part.Partition, protocol.ErrorFromCode(pr.ErrorCode))
			}
			tr.Partitions = append(tr.Partitions, pr)
		}
		res.Topics = append(res.Topics, tr)
	}
	return res
}

func (b *Broker) produce(acks int16, topicErr protocol.Error, topic string, part protocol.ProducePartition, now int64, offset *int64) int16 {
	if acks < -1 || acks > 1 {
		return protocol.ErrInvalidRequiredAcks.Code
	}
	if topicErr != protocol.ErrNone {
		return topicErr.Code
	}
	p, perr := b.partition(topic, part.Partition)
	if perr != protocol.ErrNone {
		return perr.Code
	}
	base, err := p.Append(part.MessageSet, now)
	if err != nil {
		log.Error("producing to %v: %v", p, err)
		switch {
		case errors.Is(err, protocol.ErrInvalidMessage), errors.Is(err, protocol.ErrInvalidMessageSize),
			errors.Is(err, ErrEmptyMessage), errors.Is(err, compress.ErrUnsupportedCodec):
			return protocol.ErrCorruptMessage.Code
		}
		return protocol.ErrUnknownServerError.Code
	}
	*offset = base
	metrics.IncrCounter([]string{"broker", "messages_in"}, float32(len(part.MessageSet)))
	return protocol.ErrNone.Code
}

// Fetch (Api key = 1)
func (b *Broker) handleFetch(req *protocol.FetchRequest) *protocol.FetchResponse {
	res := &protocol.FetchResponse{Topics: make([]protocol.FetchTopicResponse, 0, len(req.Topics))}
	for _, topic := range req.Topics {
		tr := protocol.FetchTopicResponse{Name: topic.Name, Partitions: make([]protocol.FetchPartitionResponse, 0, len(topic.Partitions))}
		for _, part := range topic.Partitions {
			pr := protocol.FetchPartitionResponse{Partition: part.Partition, HighwaterMarkOffset: -1, MessageSet: protocol.MessageSet{}}
			p, perr := b.partition(topic.Name, part.Partition)
			if perr != protocol.ErrNone {
				pr.ErrorCode = perr.Code
				tr.Partitions = append(tr.Partitions, pr)
				continue
			}
			pr.HighwaterMarkOffset = p.NextOffset()
			ms, err := p.Read(part.FetchOffset, part.MaxBytes)
			switch {
			case errors.Is(err, ErrOffsetOutOfRange):
				pr.ErrorCode = protocol.ErrOffsetOutOfRange.Code
			case err != nil:
				log.Error("fetching from %v: %v", p, err)
				pr.ErrorCode = protocol.ErrUnknownServerError.Code
			default:
				pr.MessageSet = ms
				metrics.IncrCounter([]string{"broker", "messages_out"}, float32(len(ms)))
			}
			tr.Partitions = append(tr.Partitions, pr)
		}
		res.Topics = append(res.Topics, tr)
	}
	return res
}

// ListOffsets (Api key = 2)
func (b *Broker) handleListOffsets(req *protocol.ListOffsetsRequest) *protocol.ListOffsetsResponse {
	res := &protocol.ListOffsetsResponse{Topics: make([]protocol.ListOffsetsTopicResponse, 0, len(req.Topics))}
	for _, topic := range req.Topics {
		tr := protocol.ListOffsetsTopicResponse{Name: topic.Name, Partitions: make([]protocol.ListOffsetsPartitionResponse, 0, len(topic.Partitions))}
		for _, part := range topic.Partitions {
			pr := protocol.ListOffsetsPartitionResponse{Partition: part.Partition, Offsets: []int64{}}
			p, perr := b.partition(topic.Name, part.Partition)
			if perr != protocol.ErrNone {
				pr.ErrorCode = perr.Code
			} else if part.MaxNumberOfOffsets > 0 {
				pr.Offsets = append(pr.Offsets, p.OffsetForTime(part.Time))
			}
			tr.Partitions = append(tr.Partitions, pr)
		}
		res.Topics = append(res.Topics, tr)
	}
	return res
}

// topicCommits holds the partition commits of a topic, common to every OffsetCommit version
type topicCommits struct {
	topic      string
	partitions []int32
	offsets    []CommittedOffset
}

func commitsV0(topics []protocol.OffsetCommitTopicV0) []topicCommits {
	out := make([]topicCommits, 0, len(topics))
	for _, t := range topics {
		tc := topicCommits{topic: t.Name}
		for _, p := range t.Partitions {
			tc.partitions = append(tc.partitions, p.Partition)
			tc.offsets = append(tc.offsets, CommittedOffset{Offset: p.Offset, Timestamp: -1, Metadata: p.Metadata})
		}
		out = append(out, tc)
	}
	return out
}

func commitsV1(topics []protocol.OffsetCommitTopicV1) []topicCommits {
	out := make([]topicCommits, 0, len(topics))
	for _, t := range topics {
		tc := topicCommits{topic: t.Name}
		for _, p := range t.Partitions {
			tc.partitions = append(tc.partitions, p.Partition)
			tc.offsets = append(tc.offsets, CommittedOffset{Offset: p.Offset, Timestamp: p.Timestamp, Metadata: p.Metadata})
		}
		out = append(out, tc)
	}
	return out
}

// OffsetCommit (Api key = 8)
func (b *Broker) handleOffsetCommit(group string, topics []topicCommits) *protocol.OffsetCommitResponse {
	now := utils.NowAsUnixMilli()
	res := &protocol.OffsetCommitResponse{Topics: make([]protocol.OffsetCommitTopicResponse, 0, len(topics))}
	for _, tc := range topics {
		tr := protocol.OffsetCommitTopicResponse{Name: tc.topic, Partitions: make([]protocol.OffsetCommitPartitionResponse, 0, len(tc.partitions))}
		for i, partition := range tc.partitions {
			c := tc.offsets[i]
			code := protocol.ErrNone.Code
			switch {
			case group == "":
				code = protocol.ErrInvalidGroupID.Code
			case len(c.Metadata) > maxOffsetMetadataSize:
				code = protocol.ErrOffsetMetadataTooLarge.Code
			default:
				if c.Timestamp < 0 {
					c.Timestamp = now
				}
				if err := b.Offsets.Commit(group, tc.topic, partition, c); err != nil {
					log.Error("committing offset of %v for %v-%v: %v", group, tc.topic, partition, err)
					code = protocol.ErrUnknownServerError.Code
				}
			}
			tr.Partitions = append(tr.Partitions, protocol.OffsetCommitPartitionResponse{Partition: partition, ErrorCode: code})
		}
		res.Topics = append(res.Topics, tr)
	}
	return res
}

// OffsetFetch (Api key = 9)
func (b *Broker) handleOffsetFetch(req *protocol.OffsetFetchRequest) *protocol.OffsetFetchResponse {
	res := &protocol.OffsetFetchResponse{Topics: make([]protocol.OffsetFetchTopicResponse, 0, len(req.Topics))}
	for _, topic := range req.Topics {
		tr := protocol.OffsetFetchTopicResponse{Name: topic.Name, Partitions: make([]protocol.OffsetFetchPartitionResponse, 0, len(topic.Partitions))}
		for _, partition := range topic.Partitions {
			pr := protocol.OffsetFetchPartitionResponse{Partition: partition, Offset: -1}
			c, found, err := b.Offsets.Fetch(req.GroupID, topic.Name, partition)
			switch {
			case err != nil:
				log.Error("%v", err)
				pr.ErrorCode = protocol.ErrUnknownServerError.Code
			case found:
				pr.Offset, pr.Metadata = c.Offset, c.Metadata
			}
			tr.Partitions = append(tr.Partitions, pr)
		}
		res.Topics = append(res.Topics, tr)
	}
	return res
}

// GroupCoordinator (Api key = 10)
func (b *Broker) handleGroupCoordinator(req *protocol.GroupCoordinatorRequest) *protocol.GroupCoordinatorResponse {
	if req.GroupID == "" {
		return &protocol.GroupCoordinatorResponse{ErrorCode: protocol.ErrInvalidGroupID.Code, CoordinatorID: -1, Host: "", Port: -1}
	}
	return &protocol.GroupCoordinatorResponse{
		ErrorCode:     protocol.ErrNone.Code,
		CoordinatorID: b.Config.NodeID,
		Host:          b.Config.AdvertisedHost(),
		Port:          b.Config.BrokerPort,
	}
}
