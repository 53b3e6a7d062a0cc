package raft

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	hraft "github.com/hashicorp/raft"

	log "github.com/Geal/proust/logging"
	"github.com/Geal/proust/types"
)

// FSM is the finite-state-machine of the metadata log: brokers and topics
type FSM struct {
	NodeID int32
	Nodes  map[int32]types.Node
	Topics map[string]types.Topic
	sync.RWMutex
}

// NewFSM creates an empty state machine
func NewFSM(nodeID int32) *FSM {
	return &FSM{NodeID: nodeID, Nodes: make(map[int32]types.Node), Topics: make(map[string]types.Topic)}
}

// Apply applies a `raft.Log` to the FSM, the returned value is nil or an error
func (fsm *FSM) Apply(l *hraft.Log) any {
	switch l.Type {
	case hraft.LogCommand:
		cmd, err := DecodeLogEntry(l.Data)
		if err != nil {
			return fmt.Errorf("could not parse payload: %w", err)
		}
		if err := fsm.ApplyCommand(cmd); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown raft log type: %v", l.Type)
	}
	return nil
}

type fsmState struct {
	Nodes  map[int32]types.Node
	Topics map[string]types.Topic
}

type fsmSnapshot struct {
	data []byte
}

func (s fsmSnapshot) Persist(sink hraft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s fsmSnapshot) Release() {}

// Snapshot encodes the current state, the snapshot is persisted later without holding the FSM
func (fsm *FSM) Snapshot() (hraft.FSMSnapshot, error) {
	fsm.RLock()
	defer fsm.RUnlock()
	data, err := encodeMsgpack(fsmState{Nodes: fsm.Nodes, Topics: fsm.Topics})
	if err != nil {
		return nil, err
	}
	return fsmSnapshot{data: data}, nil
}

// Restore replaces the state with a snapshot
func (fsm *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	var state fsmState
	if err := decodeMsgpack(data, &state); err != nil {
		return fmt.Errorf("could not decode snapshot: %w", err)
	}
	if state.Nodes == nil {
		state.Nodes = make(map[int32]types.Node)
	}
	if state.Topics == nil {
		state.Topics = make(map[string]types.Topic)
	}
	for name, topic := range state.Topics {
		if topic.Partitions == nil {
			topic.Partitions = make(map[int32]types.PartitionState)
			state.Topics[name] = topic
		}
	}
	fsm.Lock()
	fsm.Nodes, fsm.Topics = state.Nodes, state.Topics
	fsm.Unlock()
	log.Info("restored metadata snapshot with %d topics", len(state.Topics))
	return nil
}

// StoreNode stores a node (broker) in the FSM
func (fsm *FSM) StoreNode(node types.Node) {
	fsm.Lock()
	defer fsm.Unlock()
	fsm.Nodes[node.NodeID] = node
}

// StoreTopic stores a topic in the FSM, existing topics are left untouched
func (fsm *FSM) StoreTopic(topic types.Topic) {
	fsm.Lock()
	defer fsm.Unlock()
	if _, ok := fsm.Topics[topic.Name]; !ok {
		fsm.Topics[topic.Name] = types.Topic{Name: topic.Name, Partitions: make(map[int32]types.PartitionState), Configs: topic.Configs}
	}
}

// StorePartition stores a partition of an existing topic
func (fsm *FSM) StorePartition(partition types.PartitionState) error {
	fsm.Lock()
	defer fsm.Unlock()
	topic, ok := fsm.Topics[partition.Topic]
	if !ok {
		return fmt.Errorf("topic %v doesn't exist in raft FSM", partition.Topic)
	}
	topic.Partitions[partition.PartitionIndex] = partition
	return nil
}

// DeleteTopic removes a topic and its partitions
func (fsm *FSM) DeleteTopic(name string) {
	fsm.Lock()
	defer fsm.Unlock()
	delete(fsm.Topics, name)
}

// GetNode retrieves a node (broker) from the FSM
func (fsm *FSM) GetNode(nodeID int32) (types.Node, bool) {
	fsm.RLock()
	defer fsm.RUnlock()
	node, exists := fsm.Nodes[nodeID]
	return node, exists
}

// GetNodes returns every node sorted by id
func (fsm *FSM) GetNodes() []types.Node {
	fsm.RLock()
	defer fsm.RUnlock()
	nodes := slices.Collect(maps.Values(fsm.Nodes))
	slices.SortFunc(nodes, func(a, b types.Node) int { return int(a.NodeID) - int(b.NodeID) })
	return nodes
}

// GetTopic retrieves a copy of a topic from the FSM
func (fsm *FSM) GetTopic(topicName string) (types.Topic, bool) {
	fsm.RLock()
	defer fsm.RUnlock()
	topic, exists := fsm.Topics[topicName]
	if !exists {
		return types.Topic{}, false
	}
	topic.Partitions = maps.Clone(topic.Partitions)
	return topic, true
}

// GetPartition retrieves a partition from the FSM
func (fsm *FSM) GetPartition(topicName string, partitionIndex int32) (types.PartitionState, bool) {
	fsm.RLock()
	defer fsm.RUnlock()
	topic, topicExists := fsm.Topics[topicName]
	if !topicExists {
		return types.PartitionState{}, false
	}
	partition, partitionExists := topic.Partitions[partitionIndex]
	return partition, partitionExists
}

// TopicNames returns the sorted topic names
func (fsm *FSM) TopicNames() []string {
	fsm.RLock()
	defer fsm.RUnlock()
	return slices.Sorted(maps.Keys(fsm.Topics))
}

// TopicExists checks if topicName exists in the FSM
func (fsm *FSM) TopicExists(topicName string) bool {
	fsm.RLock()
	defer fsm.RUnlock()
	_, exists := fsm.Topics[topicName]
	return exists
}
