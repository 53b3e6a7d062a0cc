package raft

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	hraft "github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	log "github.com/Geal/proust/logging"
	"github.com/Geal/proust/types"
)

const (
	applyTimeout      = 10 * time.Second
	leadershipWait    = 30 * time.Second
	snapshotsRetained = 2
)

// ErrNoLeader is returned when the metadata log has no leader to apply commands
var ErrNoLeader = errors.New("no raft leader")

// Registry owns the topic metadata. Changes go through the raft log when raft is
// enabled, otherwise they are applied directly to the state machine.
type Registry struct {
	FSM *FSM

	raft    *hraft.Raft
	store   *raftboltdb.BoltStore
	address string
	mu      sync.Mutex // serializes topic creation
}

// NewLocalRegistry returns a registry applying commands to an in-memory FSM
func NewLocalRegistry(nodeID int32) *Registry {
	return &Registry{FSM: NewFSM(nodeID)}
}

// Setup inits a raft backed registry, bootstrapping a single node cluster if configured
func Setup(config *types.Configuration) (*Registry, error) {
	r := &Registry{FSM: NewFSM(config.NodeID)}
	dir := filepath.Join(config.LogDir, "raft-"+config.RaftID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create data directory: %w", err)
	}

	logger := log.Logger().Named("raft")
	store, err := raftboltdb.NewBoltStore(filepath.Join(dir, "bolt"))
	if err != nil {
		return nil, fmt.Errorf("could not create bolt store: %w", err)
	}
	r.store = store

	snapshots, err := hraft.NewFileSnapshotStoreWithLogger(filepath.Join(dir, "snapshot"), snapshotsRetained, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("could not create snapshot store: %w", err)
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", config.RaftAddress)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("could not resolve address: %w", err)
	}
	var advertise net.Addr
	if tcpAddr.Port != 0 {
		advertise = tcpAddr
	}
	transport, err := hraft.NewTCPTransportWithLogger(config.RaftAddress, advertise, 3, applyTimeout, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("could not create tcp transport: %w", err)
	}

	r.address = string(transport.LocalAddr())

	raftCfg := hraft.DefaultConfig()
	raftCfg.LocalID = hraft.ServerID(config.RaftID)
	raftCfg.Logger = logger
	notifyCh := make(chan bool, 1)
	raftCfg.NotifyCh = notifyCh

	r.raft, err = hraft.NewRaft(raftCfg, r.FSM, store, store, snapshots, transport)
	if err != nil {
		transport.Close()
		store.Close()
		return nil, fmt.Errorf("could not create raft instance: %w", err)
	}

	if config.Bootstrap {
		hasState, err := hraft.HasExistingState(store, store, snapshots)
		if err != nil {
			r.Close()
			return nil, err
		}
		if !hasState {
			log.Info("bootstrapping raft with id %v at %v", config.RaftID, transport.LocalAddr())
			future := r.raft.BootstrapCluster(hraft.Configuration{
				Servers: []hraft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
			})
			if err := future.Error(); err != nil {
				r.Close()
				return nil, fmt.Errorf("bootstrap cluster: %w", err)
			}
		}
		if err := waitForLeadership(notifyCh, r.raft); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

func waitForLeadership(notifyCh <-chan bool, r *hraft.Raft) error {
	if r.State() == hraft.Leader {
		return r.Barrier(applyTimeout).Error()
	}
	timeout := time.After(leadershipWait)
	for {
		select {
		case isLeader := <-notifyCh:
			if isLeader {
				log.Info("raft leadership acquired")
				return r.Barrier(applyTimeout).Error()
			}
		case <-timeout:
			return fmt.Errorf("%w after %v", ErrNoLeader, leadershipWait)
		}
	}
}

// Address is the raft transport address, empty for local registries
func (r *Registry) Address() string {
	return r.address
}

// IsController returns true if this node can change the metadata
func (r *Registry) IsController() bool {
	return r.raft == nil || r.raft.State() == hraft.Leader
}

func (r *Registry) apply(kind CommandType, entry any) error {
	b, err := EncodeLogEntry(kind, entry)
	if err != nil {
		return err
	}
	var res any
	if r.raft == nil {
		res = r.FSM.Apply(&hraft.Log{Type: hraft.LogCommand, Data: b})
	} else {
		future := r.raft.Apply(b, applyTimeout)
		if err := future.Error(); err != nil {
			if errors.Is(err, hraft.ErrNotLeader) {
				return fmt.Errorf("%w: %w", ErrNoLeader, err)
			}
			return err
		}
		res = future.Response()
	}
	if err, ok := res.(error); ok {
		return err
	}
	return nil
}

// RegisterNode adds a broker to the metadata
func (r *Registry) RegisterNode(node types.Node) error {
	return r.apply(AddNode, node)
}

// CreateTopic creates a topic with partitions led by leader. An existing topic is returned as is.
func (r *Registry) CreateTopic(name string, partitions int32, leader int32) (types.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if topic, ok := r.FSM.GetTopic(name); ok {
		return topic, nil
	}
	if err := r.apply(AddTopic, types.Topic{Name: name}); err != nil {
		return types.Topic{}, fmt.Errorf("creating topic %v: %w", name, err)
	}
	for i := int32(0); i < partitions; i++ {
		p := types.PartitionState{
			Topic:          name,
			PartitionIndex: i,
			LeaderID:       leader,
			ReplicaNodes:   []int32{leader},
			IsrNodes:       []int32{leader},
		}
		if err := r.apply(AddPartition, p); err != nil {
			return types.Topic{}, fmt.Errorf("creating partition %v-%v: %w", name, i, err)
		}
	}
	log.Info("created topic %v with %d partitions", name, partitions)
	topic, _ := r.FSM.GetTopic(name)
	return topic, nil
}

// DeleteTopic removes a topic from the metadata
func (r *Registry) DeleteTopic(name string) error {
	return r.apply(RemoveTopic, name)
}

// Topic returns a topic by name
func (r *Registry) Topic(name string) (types.Topic, bool) {
	return r.FSM.GetTopic(name)
}

// Partition returns the state of a partition
func (r *Registry) Partition(topic string, partition int32) (types.PartitionState, bool) {
	return r.FSM.GetPartition(topic, partition)
}

// TopicNames returns the sorted names of all topics
func (r *Registry) TopicNames() []string {
	return r.FSM.TopicNames()
}

// Nodes returns the registered brokers
func (r *Registry) Nodes() []types.Node {
	return r.FSM.GetNodes()
}

// Snapshot forces a raft snapshot, it is a no-op for local registries
func (r *Registry) Snapshot() error {
	if r.raft == nil {
		return nil
	}
	return r.raft.Snapshot().Error()
}

// Close shuts raft down and closes its stores
func (r *Registry) Close() error {
	if r.raft == nil {
		return nil
	}
	var errs []error
	if err := r.raft.Shutdown().Error(); err != nil {
		errs = append(errs, fmt.Errorf("shutting down raft: %w", err))
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	r.raft = nil
	return errors.Join(errs...)
}
