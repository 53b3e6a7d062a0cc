package protocol

import "github.com/Geal/proust/serde"

// ApiVersions (Api key = 18)

// APIVersionsRequest has no body in v0.
type APIVersionsRequest struct{}

func (r *APIVersionsRequest) decode(_ *serde.Decoder) error {
	return nil
}

// APIVersion represents an API key and its supported version range.
type APIVersion struct {
	APIKey     int16
	MinVersion int16
	MaxVersion int16
}

// APIVersionsResponse represents the response for API versions request.
type APIVersionsResponse struct {
	ErrorCode int16
	APIKeys   []APIVersion
}

// SupportedVersions is the version range decoded for each api key
var SupportedVersions = []APIVersion{
	{APIKey: ProduceKey, MinVersion: 0, MaxVersion: 0},
	{APIKey: FetchKey, MinVersion: 0, MaxVersion: 0},
	{APIKey: ListOffsetsKey, MinVersion: 0, MaxVersion: 0},
	{APIKey: MetadataKey, MinVersion: 0, MaxVersion: 0},
	{APIKey: OffsetCommitKey, MinVersion: 0, MaxVersion: 2},
	{APIKey: OffsetFetchKey, MinVersion: 0, MaxVersion: 1},
	{APIKey: GroupCoordinatorKey, MinVersion: 0, MaxVersion: 0},
	{APIKey: APIVersionsKey, MinVersion: 0, MaxVersion: 0},
}

func (r *APIVersionsResponse) encode(e *serde.Encoder) {
	e.PutInt16(r.ErrorCode)
	serde.PutArray(e, r.APIKeys, func(e *serde.Encoder, v APIVersion) {
		e.PutInt16(v.APIKey)
		e.PutInt16(v.MinVersion)
		e.PutInt16(v.MaxVersion)
	})
}
