package protocol

import (
	"fmt"

	"github.com/Geal/proust/serde"
)

// RequestMessage is a decoded request frame
type RequestMessage struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      string
	Payload       RequestPayload
}

// RequestPayload is one of the request types of this package
type RequestPayload interface {
	decode(d *serde.Decoder) error
}

// newRequestPayload picks the payload type for an api key and version
func newRequestPayload(key, version int16) (RequestPayload, error) {
	switch key {
	case ProduceKey:
		return &ProduceRequest{}, nil
	case FetchKey:
		return &FetchRequest{}, nil
	case ListOffsetsKey:
		return &ListOffsetsRequest{}, nil
	case MetadataKey:
		return &MetadataRequest{}, nil
	case OffsetCommitKey:
		switch version {
		case 0:
			return &OffsetCommitRequestV0{}, nil
		case 1:
			return &OffsetCommitRequestV1{}, nil
		case 2:
			return &OffsetCommitRequestV2{}, nil
		}
		return nil, fmt.Errorf("%w: OffsetCommit version %d", ErrParser, version)
	case OffsetFetchKey:
		return &OffsetFetchRequest{}, nil
	case GroupCoordinatorKey:
		return &GroupCoordinatorRequest{}, nil
	case APIVersionsKey:
		return &APIVersionsRequest{}, nil
	}
	return nil, fmt.Errorf("%w: api key %s", ErrNotImplemented, APIName(key))
}

// DecodeRequest decodes a complete request body (the frame without its size).
// The payload must end exactly at the end of b. Since the body is complete,
// running short is reported as ErrInvalidRequestSize wrapping the *serde.IncompleteError.
func DecodeRequest(b []byte) (*RequestMessage, error) {
	d := serde.NewDecoder(b)
	req, err := decodeRequest(d)
	if err != nil {
		if _, ok := serde.Incomplete(err); ok {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequestSize, err)
		}
		return nil, err
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s request", ErrInvalidRequestSize, d.Remaining(), APIName(req.APIKey))
	}
	return req, nil
}

func decodeRequest(d *serde.Decoder) (*RequestMessage, error) {
	var req RequestMessage
	var err error
	if req.APIKey, err = d.Int16(); err != nil {
		return nil, err
	}
	if req.APIVersion, err = d.Int16(); err != nil {
		return nil, err
	}
	if req.CorrelationID, err = d.Int32(); err != nil {
		return nil, err
	}
	if req.ClientID, err = d.Str(); err != nil {
		return nil, err
	}
	if req.Payload, err = newRequestPayload(req.APIKey, req.APIVersion); err != nil {
		return nil, err
	}
	if err = req.Payload.decode(d); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeFramedRequest decodes one size prefixed request from the front of b.
// It returns the request and the number of bytes consumed (4 + size), bytes after
// the frame are left untouched.
func DecodeFramedRequest(b []byte) (*RequestMessage, int, error) {
	d := serde.NewDecoder(b)
	size, err := d.Int32()
	if err != nil {
		return nil, 0, err
	}
	if size < 0 {
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidRequestSize, size)
	}
	body, err := d.Raw(int(size))
	if err != nil {
		return nil, 0, err
	}
	req, err := DecodeRequest(body)
	if err != nil {
		return nil, 0, err
	}
	return req, d.Offset, nil
}
