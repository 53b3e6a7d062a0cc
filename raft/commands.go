package raft

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	log "github.com/Geal/proust/logging"
	"github.com/Geal/proust/types"
)

// CommandType is a raft log command type
type CommandType uint8

// Commands types that can be applied to the raft log to change the state machine
const (
	AddNode CommandType = iota
	AddTopic
	AddPartition
	RemoveTopic
)

func (c CommandType) String() string {
	switch c {
	case AddNode:
		return "AddNode"
	case AddTopic:
		return "AddTopic"
	case AddPartition:
		return "AddPartition"
	case RemoveTopic:
		return "RemoveTopic"
	}
	return fmt.Sprintf("CommandType(%d)", uint8(c))
}

// Command represents a command type with its msgpack encoded payload
type Command struct {
	Kind    CommandType
	Payload []byte
}

var msgpackHandle = &codec.MsgpackHandle{}

func encodeMsgpack(v any) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, msgpackHandle).Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeMsgpack(b []byte, v any) error {
	return codec.NewDecoderBytes(b, msgpackHandle).Decode(v)
}

// EncodeLogEntry converts a command and its payload into a raft log entry
func EncodeLogEntry(kind CommandType, entry any) ([]byte, error) {
	payload, err := encodeMsgpack(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding %v payload: %w", kind, err)
	}
	return encodeMsgpack(Command{Kind: kind, Payload: payload})
}

// DecodeLogEntry is the inverse of EncodeLogEntry, the payload stays encoded
func DecodeLogEntry(b []byte) (Command, error) {
	var cmd Command
	err := decodeMsgpack(b, &cmd)
	return cmd, err
}

// ApplyCommand changes the state machine according to cmd
func (fsm *FSM) ApplyCommand(cmd Command) error {
	switch cmd.Kind {
	case AddNode:
		var node types.Node
		if err := decodeMsgpack(cmd.Payload, &node); err != nil {
			return fmt.Errorf("could not parse node: %w", err)
		}
		fsm.StoreNode(node)
	case AddTopic:
		var topic types.Topic
		if err := decodeMsgpack(cmd.Payload, &topic); err != nil {
			return fmt.Errorf("could not parse topic: %w", err)
		}
		log.Debug("raft AddTopic: %v", topic.Name)
		fsm.StoreTopic(topic)
	case AddPartition:
		var partition types.PartitionState
		if err := decodeMsgpack(cmd.Payload, &partition); err != nil {
			return fmt.Errorf("could not parse partition: %w", err)
		}
		log.Debug("raft AddPartition: %v-%v", partition.Topic, partition.PartitionIndex)
		return fsm.StorePartition(partition)
	case RemoveTopic:
		var name string
		if err := decodeMsgpack(cmd.Payload, &name); err != nil {
			return fmt.Errorf("could not parse topic name: %w", err)
		}
		fsm.DeleteTopic(name)
	default:
		return fmt.Errorf("unknown command type: %v", cmd.Kind)
	}
	return nil
}
