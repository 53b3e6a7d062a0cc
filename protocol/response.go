package protocol

import (
	"github.com/Geal/proust/serde"
)

// ResponseMessage is a response waiting to be encoded
type ResponseMessage struct {
	CorrelationID int32
	Payload       ResponsePayload
}

// ResponsePayload is one of the response types of this package
type ResponsePayload interface {
	encode(e *serde.Encoder)
}

// EncodeResponse serializes the correlation id and payload and prepends the encoded length
func EncodeResponse(res *ResponseMessage) []byte {
	encoder := serde.NewEncoder()
	encoder.PutInt32(res.CorrelationID)
	res.Payload.encode(&encoder)
	return encoder.FinishAndReturn()
}
