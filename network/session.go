package network

import (
	"errors"
	"fmt"
	"io"

	"github.com/Geal/proust/serde"
	"github.com/google/uuid"

	log "github.com/Geal/proust/logging"
)

// ErrWouldBlock is returned by a Conn when a nonblocking read or write cannot progress
var ErrWouldBlock = errors.New("operation would block")

// Result tells the event loop what to do with a connection after an event
type Result int

// Event results
const (
	// Continue keeps the connection open, processing resumes on the next event
	Continue Result = iota
	// ShouldClose removes the connection
	ShouldClose
)

func (r Result) String() string {
	if r == ShouldClose {
		return "ShouldClose"
	}
	return "Continue"
}

// State is the frame reassembly state of a session
type State int

// Session states
const (
	// StateNormal waits for a new frame
	StateNormal State = iota
	// StateAwaitingSize holds part of the 4-byte size header
	StateAwaitingSize
	// StateAwaitingBody holds part of the frame body
	StateAwaitingBody
)

func (s State) String() string {
	switch s {
	case StateAwaitingSize:
		return "AwaitingSize"
	case StateAwaitingBody:
		return "AwaitingBody"
	}
	return "Normal"
}

// Dispatcher handles a complete frame body and returns the encoded response.
// A nil response sends nothing back. An error is logged and the connection stays open.
type Dispatcher interface {
	Dispatch(frame []byte) ([]byte, error)
}

// DefaultMaxPendingWrite is the amount of unsent response bytes after which a session stops reading
const DefaultMaxPendingWrite = 4 << 20

// Session reassembles frames read from a nonblocking connection, dispatches them
// in order and writes the responses back.
// It is owned by the event loop and never used concurrently.
type Session struct {
	ID    string
	Token Token
	Peer  string

	conn         io.ReadWriteCloser
	dispatcher   Dispatcher
	maxFrameSize int32
	maxPending   int

	state      State
	header     [4]byte
	headerRead int
	body       []byte
	filled     int

	pending     []byte
	readBlocked bool
	// the peer closed its side, the session closes once pending is written
	readClosed  bool
}

// NewSession creates a session in the Normal state.
// conn must return ErrWouldBlock instead of blocking and io.EOF once the peer closed.
func NewSession(conn io.ReadWriteCloser, peer string, d Dispatcher, maxFrameSize int32) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Peer:         peer,
		conn:         conn,
		dispatcher:   d,
		maxFrameSize: maxFrameSize,
		maxPending:   DefaultMaxPendingWrite,
	}
}

// State returns the reassembly state
func (s *Session) State() State {
	return s.state
}

// Remaining returns the number of bytes missing from the current header or body
func (s *Session) Remaining() int {
	if s.state == StateAwaitingBody {
		return len(s.body) - s.filled
	}
	return len(s.header) - s.headerRead
}

// Pending returns the number of response bytes not yet written
func (s *Session) Pending() int {
	return len(s.pending)
}

// target is the part of the header or body the next read fills
func (s *Session) target() []byte {
	if s.state == StateAwaitingBody {
		return s.body[s.filled:]
	}
	return s.header[s.headerRead:]
}

// OnReadable reads until the connection would block, dispatching every complete frame
func (s *Session) OnReadable() Result {
	if s.readClosed {
		return Continue
	}
	for {
		if s.state == StateAwaitingBody && s.filled == len(s.body) {
			if res := s.dispatch(); res == ShouldClose {
				return ShouldClose
			}
			continue
		}
		if len(s.pending) > s.maxPending {
			// resumed by OnWritable once the peer reads its responses
			s.readBlocked = true
			return Continue
		}

		n, err := s.conn.Read(s.target())
		if n > 0 {
			if res := s.advance(n); res == ShouldClose {
				return ShouldClose
			}
		}
		if err != nil {
			return s.ioResult("read", err)
		}
		if n == 0 {
			return Continue
		}
	}
}

// advance accounts for n bytes read into the current target
func (s *Session) advance(n int) Result {
	if s.state == StateAwaitingBody {
		s.filled += n
		return Continue
	}
	s.headerRead += n
	if s.headerRead < len(s.header) {
		s.state = StateAwaitingSize
		return Continue
	}
	size := int32(serde.Encoding.Uint32(s.header[:]))
	s.headerRead = 0
	if size < 0 || (s.maxFrameSize > 0 && size > s.maxFrameSize) {
		log.Warn("session %v (%v): invalid frame size %d, closing", s.ID, s.Peer, size)
		return ShouldClose
	}
	s.body = make([]byte, size)
	s.filled = 0
	s.state = StateAwaitingBody
	return Continue
}

// dispatch hands the complete body to the dispatcher and queues its response
func (s *Session) dispatch() Result {
	frame := s.body
	s.body, s.filled, s.state = nil, 0, StateNormal

	response, err := s.dispatcher.Dispatch(frame)
	if err != nil {
		log.Warn("session %v (%v): dropping frame of %d bytes: %v", s.ID, s.Peer, len(frame), err)
		return Continue
	}
	if len(response) == 0 {
		return Continue
	}
	s.pending = append(s.pending, response...)
	return s.flush()
}

// OnWritable writes pending responses, and resumes reading if it was paused
func (s *Session) OnWritable() Result {
	if res := s.flush(); res == ShouldClose {
		return ShouldClose
	}
	if s.readBlocked && len(s.pending) <= s.maxPending {
		s.readBlocked = false
		return s.OnReadable()
	}
	return Continue
}

func (s *Session) flush() Result {
	for len(s.pending) > 0 {
		n, err := s.conn.Write(s.pending)
		s.pending = s.pending[n:]
		if err != nil {
			return s.ioResult("write", err)
		}
		if n == 0 {
			return Continue
		}
	}
	s.pending = nil
	if s.readClosed {
		log.Debug("session %v (%v): responses flushed after peer closed", s.ID, s.Peer)
		return ShouldClose
	}
	return Continue
}

func (s *Session) ioResult(op string, err error) Result {
	switch {
	case errors.Is(err, ErrWouldBlock):
		return Continue
	case errors.Is(err, io.EOF) && op == "read" && len(s.pending) > 0:
		log.Debug("session %v (%v): peer closed its side, %d bytes left to write", s.ID, s.Peer, len(s.pending))
		s.readClosed = true
		return Continue
	case errors.Is(err, io.EOF):
		log.Debug("session %v (%v): peer closed the connection", s.ID, s.Peer)
	default:
		log.Info("session %v (%v): %s error: %v", s.ID, s.Peer, op, err)
	}
	return ShouldClose
}

// Close closes the underlying connection
func (s *Session) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("closing session %v: %w", s.ID, err)
	}
	return nil
}
