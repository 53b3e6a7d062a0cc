package raft

import (
	"bytes"
	"io"
	"path/filepath"
	"slices"
	"testing"

	hraft "github.com/hashicorp/raft"

	"github.com/Geal/proust/types"
)

type memorySink struct {
	bytes.Buffer
	cancelled bool
}

func (s *memorySink) ID() string    { return "memory" }
func (s *memorySink) Close() error  { return nil }
func (s *memorySink) Cancel() error { s.cancelled = true; return nil }

func applyEntry(t *testing.T, fsm *FSM, kind CommandType, entry any) any {
	t.Helper()
	b, err := EncodeLogEntry(kind, entry)
	if err != nil {
		t.Fatal(err)
	}
	return fsm.Apply(&hraft.Log{Type: hraft.LogCommand, Data: b})
}

func TestFSMApply(t *testing.T) {
	fsm := NewFSM(1)
	if res := applyEntry(t, fsm, AddNode, types.Node{NodeID: 1, Host: "localhost", Port: 9092}); res != nil {
		t.Fatalf("AddNode: %v", res)
	}
	if res := applyEntry(t, fsm, AddTopic, types.Topic{Name: "events"}); res != nil {
		t.Fatalf("AddTopic: %v", res)
	}
	if res := applyEntry(t, fsm, AddPartition, types.PartitionState{Topic: "events", PartitionIndex: 0, LeaderID: 1}); res != nil {
		t.Fatalf("AddPartition: %v", res)
	}
	if res := applyEntry(t, fsm, AddPartition, types.PartitionState{Topic: "missing"}); res == nil {
		t.Errorf("expected an error for a partition of an unknown topic")
	}

	p, ok := fsm.GetPartition("events", 0)
	if !ok || p.LeaderID != 1 {
		t.Errorf("expected partition events-0 led by 1, got %+v", p)
	}
	if node, ok := fsm.GetNode(1); !ok || node.Host != "localhost" {
		t.Errorf("expected node 1, got %+v", node)
	}

	if res := applyEntry(t, fsm, RemoveTopic, "events"); res != nil {
		t.Fatalf("RemoveTopic: %v", res)
	}
	if fsm.TopicExists("events") {
		t.Errorf("topic still exists after RemoveTopic")
	}

	if res := fsm.Apply(&hraft.Log{Type: hraft.LogCommand, Data: []byte{0xc1}}); res == nil {
		t.Errorf("expected an error for an undecodable entry")
	}
	if res := fsm.Apply(&hraft.Log{Type: hraft.LogNoop}); res == nil {
		t.Errorf("expected an error for an unknown log type")
	}
	if res := applyEntry(t, fsm, CommandType(42), "x"); res == nil {
		t.Errorf("expected an error for an unknown command")
	}
}

func TestFSMSnapshotRestore(t *testing.T) {
	fsm := NewFSM(1)
	applyEntry(t, fsm, AddNode, types.Node{NodeID: 1, Host: "h", Port: 1})
	for _, name := range []string{"b", "a"} {
		applyEntry(t, fsm, AddTopic, types.Topic{Name: name, Configs: map[string]string{"retention.ms": "1000"}})
		applyEntry(t, fsm, AddPartition, types.PartitionState{Topic: name, PartitionIndex: 0, LeaderID: 1, ReplicaNodes: []int32{1}})
		applyEntry(t, fsm, AddPartition, types.PartitionState{Topic: name, PartitionIndex: 1, LeaderID: 1, ReplicaNodes: []int32{1}})
	}

	snap, err := fsm.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	sink := &memorySink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatal(err)
	}
	snap.Release()

	restored := NewFSM(1)
	if err := restored.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))); err != nil {
		t.Fatal(err)
	}
	if got := restored.TopicNames(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("expected topics [a b], got %v", got)
	}
	topic, ok := restored.GetTopic("a")
	if !ok || len(topic.Partitions) != 2 || topic.Configs["retention.ms"] != "1000" {
		t.Errorf("topic a not restored: %+v", topic)
	}
	if p, _ := restored.GetPartition("b", 1); !slices.Equal(p.ReplicaNodes, []int32{1}) {
		t.Errorf("partition b-1 not restored: %+v", p)
	}
	if len(restored.GetNodes()) != 1 {
		t.Errorf("expected one node")
	}

	// restored topics accept new partitions
	if res := applyEntry(t, restored, AddPartition, types.PartitionState{Topic: "a", PartitionIndex: 2}); res != nil {
		t.Errorf("AddPartition after restore: %v", res)
	}
}

func TestLocalRegistryCreateTopic(t *testing.T) {
	r := NewLocalRegistry(3)
	topic, err := r.CreateTopic("orders", 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(topic.PartitionIDs(), []int32{0, 1, 2}) {
		t.Errorf("expected 3 partitions, got %v", topic.PartitionIDs())
	}
	again, err := r.CreateTopic("orders", 5, 3)
	if err != nil || len(again.Partitions) != 3 {
		t.Errorf("creating an existing topic must return it unchanged, got %d partitions and %v", len(again.Partitions), err)
	}
	if !r.IsController() {
		t.Errorf("a local registry is always the controller")
	}
	if err := r.RegisterNode(types.Node{NodeID: 3, Host: "localhost", Port: 9092}); err != nil {
		t.Fatal(err)
	}
	if nodes := r.Nodes(); len(nodes) != 1 || nodes[0].NodeID != 3 {
		t.Errorf("unexpected nodes %+v", nodes)
	}
	if err := r.DeleteTopic("orders"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Topic("orders"); ok || len(r.TopicNames()) != 0 {
		t.Errorf("orders still registered after DeleteTopic")
	}
	if err := r.Close(); err != nil {
		t.Error(err)
	}
}

func TestRaftRegistry(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a raft node")
	}
	config := types.DefaultConfiguration()
	config.LogDir = t.TempDir()
	config.RaftAddress = "127.0.0.1:0"
	config.RaftID = "test-node"
	config.NodeID = 1

	r, err := Setup(&config)
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsController() {
		t.Fatalf("a bootstrapped single node must lead")
	}
	if _, err := r.CreateTopic("replicated", 2, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Partition("replicated", 1); !ok {
		t.Errorf("partition replicated-1 not applied")
	}
	if err := r.Snapshot(); err != nil {
		t.Errorf("snapshot: %v", err)
	}
	config.RaftAddress = r.Address()
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	// the log is replayed on restart
	r, err = Setup(&config)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, ok := r.Topic("replicated"); !ok {
		t.Errorf("topic lost after restart, data in %v", filepath.Join(config.LogDir, "raft-test-node"))
	}
}
