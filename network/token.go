package network

import "fmt"

// Token identifies an open connection in the server's connection table.
// Slots are reused once a connection closes, the generation tells apart
// successive connections of the same slot so that late events for a closed
// connection never reach its successor.
type Token struct {
	Index      uint32
	Generation uint32
}

func (t Token) String() string {
	return fmt.Sprintf("%d/%d", t.Index, t.Generation)
}

type slot struct {
	generation uint32
	session    *Session
}

// connTable maps tokens to sessions, reusing freed slots
type connTable struct {
	slots []slot
	free  []uint32
	count int
}

// insert stores s in a free slot and sets its token
func (t *connTable) insert(s *Session) Token {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}
	sl := &t.slots[idx]
	sl.generation++
	sl.session = s
	t.count++

	tok := Token{Index: idx, Generation: sl.generation}
	s.Token = tok
	return tok
}

// get returns the session of tok if tok still refers to a live connection
func (t *connTable) get(tok Token) (*Session, bool) {
	if int(tok.Index) >= len(t.slots) {
		return nil, false
	}
	sl := t.slots[tok.Index]
	if sl.session == nil || sl.generation != tok.Generation {
		return nil, false
	}
	return sl.session, true
}

// remove frees the slot of tok
func (t *connTable) remove(tok Token) (*Session, bool) {
	s, ok := t.get(tok)
	if !ok {
		return nil, false
	}
	t.slots[tok.Index].session = nil
	t.free = append(t.free, tok.Index)
	t.count--
	return s, true
}

func (t *connTable) len() int {
	return t.count
}

// sessions returns every live session
func (t *connTable) sessions() []*Session {
	out := make([]*Session, 0, t.count)
	for _, sl := range t.slots {
		if sl.session != nil {
			out = append(out, sl.session)
		}
	}
	return out
}
