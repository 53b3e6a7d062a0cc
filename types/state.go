package types

import "slices"

// Topic in the metadata state
type Topic struct {
	Name       string
	Partitions map[int32]PartitionState
	Configs    map[string]string
}

// PartitionIDs returns the sorted partition indexes of the topic
func (t Topic) PartitionIDs() []int32 {
	ids := make([]int32, 0, len(t.Partitions))
	for id := range t.Partitions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Node represents a broker
type Node struct {
	NodeID int32
	Host   string
	Port   int32
}

// PartitionState represents a partition in the metadata state
type PartitionState struct {
	Topic          string // Topic Name
	PartitionIndex int32
	LeaderID       int32
	ReplicaNodes   []int32
	IsrNodes       []int32
}
