package protocol

import "github.com/Geal/proust/serde"

// GroupCoordinator, also known as ConsumerMetadata (Api key = 10)

// GroupCoordinatorRequest asks which broker coordinates a group.
type GroupCoordinatorRequest struct {
	GroupID string
}

func (r *GroupCoordinatorRequest) decode(d *serde.Decoder) (err error) {
	r.GroupID, err = d.Str()
	return err
}

// GroupCoordinatorResponse names the coordinator broker.
type GroupCoordinatorResponse struct {
	ErrorCode     int16
	CoordinatorID int32
	Host          string
	Port          int32
}

func (r *GroupCoordinatorResponse) encode(e *serde.Encoder) {
	e.PutInt16(r.ErrorCode)
	e.PutInt32(r.CoordinatorID)
	e.PutString(r.Host)
	e.PutInt32(r.Port)
}
