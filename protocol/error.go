package protocol

// https://kafka.apache.org/protocol#protocol_error_codes

// Error is a struct to hold the code, message, and retriability status
type Error struct {
	Code        int16
	Message     string
	IsRetriable bool
}

func (e Error) Error() string {
	return e.Message
}

// Error codes answered by a v0 broker
var (
	ErrUnknownServerError           = Error{Code: -1, Message: "The server experienced an unexpected error when processing the request.", IsRetriable: false}
	ErrNone                         = Error{Code: 0, Message: "", IsRetriable: false}
	ErrOffsetOutOfRange             = Error{Code: 1, Message: "The requested offset is not within the range of offsets maintained by the server.", IsRetriable: false}
	ErrCorruptMessage               = Error{Code: 2, Message: "This message has failed its CRC checksum, exceeds the valid size, or is otherwise corrupt.", IsRetriable: true}
	ErrUnknownTopicOrPartition      = Error{Code: 3, Message: "This server does not host this topic-partition.", IsRetriable: true}
	ErrInvalidFetchSize             = Error{Code: 4, Message: "The requested fetch size is invalid.", IsRetriable: false}
	ErrLeaderNotAvailable           = Error{Code: 5, Message: "There is no leader for this topic-partition.", IsRetriable: true}
	ErrNotLeaderForPartition        = Error{Code: 6, Message: "This server is not the leader for that topic-partition.", IsRetriable: true}
	ErrRequestTimedOut              = Error{Code: 7, Message: "The request timed out.", IsRetriable: true}
	ErrMessageTooLarge              = Error{Code: 10, Message: "The request included a message larger than the max message size the server will accept.", IsRetriable: false}
	ErrOffsetMetadataTooLarge       = Error{Code: 12, Message: "The metadata field of the offset request was too large.", IsRetriable: false}
	ErrGroupLoadInProgress          = Error{Code: 14, Message: "The coordinator is loading and hence can't process requests.", IsRetriable: true}
	ErrGroupCoordinatorNotAvailable = Error{Code: 15, Message: "The coordinator is not available.", IsRetriable: true}
	ErrNotCoordinatorForGroup       = Error{Code: 16, Message: "This is not the correct coordinator.", IsRetriable: true}
	ErrInvalidTopic                 = Error{Code: 17, Message: "The request attempted to perform an operation on an invalid topic.", IsRetriable: false}
	ErrInvalidRequiredAcks          = Error{Code: 21, Message: "Produce request specified an invalid value for required acks.", IsRetriable: false}
	ErrIllegalGeneration            = Error{Code: 22, Message: "Specified group generation id is not valid.", IsRetriable: false}
	ErrInvalidGroupID               = Error{Code: 24, Message: "The configured groupId is invalid.", IsRetriable: false}
	ErrUnsupportedVersion           = Error{Code: 35, Message: "The version of API is not supported.", IsRetriable: false}
)

// ErrorMap associates error codes with corresponding Error structs
var ErrorMap = map[int16]Error{
	-1: ErrUnknownServerError,
	0:  ErrNone,
	1:  ErrOffsetOutOfRange,
	2:  ErrCorruptMessage,
	3:  ErrUnknownTopicOrPartition,
	4:  ErrInvalidFetchSize,
	5:  ErrLeaderNotAvailable,
	6:  ErrNotLeaderForPartition,
	7:  ErrRequestTimedOut,
	10: ErrMessageTooLarge,
	12: ErrOffsetMetadataTooLarge,
	14: ErrGroupLoadInProgress,
	15: ErrGroupCoordinatorNotAvailable,
	16: ErrNotCoordinatorForGroup,
	17: ErrInvalidTopic,
	21: ErrInvalidRequiredAcks,
	22: ErrIllegalGeneration,
	24: ErrInvalidGroupID,
	35: ErrUnsupportedVersion,
}

// ErrorFromCode returns the Error for a code, ErrUnknownServerError if the code is unknown
func ErrorFromCode(code int16) Error {
	if e, ok := ErrorMap[code]; ok {
		return e
	}
	return ErrUnknownServerError
}
