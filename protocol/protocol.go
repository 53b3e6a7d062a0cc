package protocol

import (
	"fmt"

	"github.com/Geal/proust/serde"
)

// https://kafka.apache.org/protocol#protocol_api_keys
const (
	ProduceKey            int16 = 0
	FetchKey              int16 = 1
	ListOffsetsKey        int16 = 2
	MetadataKey           int16 = 3
	LeaderAndIsrKey       int16 = 4
	StopReplicaKey        int16 = 5
	UpdateMetadataKey     int16 = 6
	ControlledShutdownKey int16 = 7
	OffsetCommitKey       int16 = 8
	OffsetFetchKey        int16 = 9
	GroupCoordinatorKey   int16 = 10
	JoinGroupKey          int16 = 11
	HeartbeatKey          int16 = 12
	APIVersionsKey        int16 = 18
)

var apiNames = map[int16]string{
	ProduceKey:            "Produce",
	FetchKey:              "Fetch",
	ListOffsetsKey:        "ListOffsets",
	MetadataKey:           "Metadata",
	LeaderAndIsrKey:       "LeaderAndIsr",
	StopReplicaKey:        "StopReplica",
	UpdateMetadataKey:     "UpdateMetadata",
	ControlledShutdownKey: "ControlledShutdown",
	OffsetCommitKey:       "OffsetCommit",
	OffsetFetchKey:        "OffsetFetch",
	GroupCoordinatorKey:   "GroupCoordinator",
	JoinGroupKey:          "JoinGroup",
	HeartbeatKey:          "Heartbeat",
	APIVersionsKey:        "ApiVersions",
}

// APIName returns a readable name for an api key
func APIName(key int16) string {
	if name, ok := apiNames[key]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", key)
}

// Decode errors, shared with serde so callers only need this package
var (
	ErrParser                = serde.ErrParser
	ErrNotImplemented        = serde.ErrNotImplemented
	ErrInvalidRequestSize    = serde.ErrInvalidRequestSize
	ErrInvalidMessageSetSize = serde.ErrInvalidMessageSetSize
	ErrInvalidMessageSize    = serde.ErrInvalidMessageSize
	ErrInvalidMessage        = serde.ErrInvalidMessage
)

// Handler turns a decoded request into a response.
// A nil response with a nil error means nothing is sent back (produce with acks=0).
type Handler interface {
	Handle(req *RequestMessage) (*ResponseMessage, error)
}
