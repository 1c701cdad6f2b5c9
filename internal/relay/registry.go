package relay

import (
	"sync"
	"time"

	"github.com/consultly/call-signaling/internal/models"
)

// Conn is one live signaling connection. Send must never block; the websocket
// layer backs it with a buffered channel and drops on overflow.
type Conn interface {
	ID() string
	Send(ev models.Envelope) bool
}

// Occupant is a connection holding a slot in a room.
type Occupant struct {
	Conn        Conn
	DisplayName string
}

type room struct {
	mu        sync.Mutex
	createdAt time.Time
	recording bool
	occupants map[models.Slot]Occupant
}

// placement is the connection directory entry: where a connection currently
// sits. It exists if and only if the connection occupies a slot somewhere.
type placement struct {
	roomID string
	slot   models.Slot
}

// Registry owns the room table and the connection directory. All access goes
// through its methods; there is no ambient shared state.
//
// Locking: mu guards room-table and directory membership, each room's mu
// guards that room's occupants and recording flag. mu is always acquired
// before a room lock and a room is only deleted while both are held, so a
// caller holding a room lock never sees its room vanish mid-mutation.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	conns map[string]placement
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		conns: make(map[string]placement),
	}
}

// RoomSnapshot is the caller-visible state of a room right after a join.
type RoomSnapshot struct {
	RoomID          string
	Slot            models.Slot
	RecordingActive bool
	CreatedAt       time.Time
}

// JoinResult carries everything the lifecycle manager needs to emit
// notifications after a join, resolved atomically with the mutation.
type JoinResult struct {
	Snapshot RoomSnapshot

	// Paired is true when both slots are now filled. Peer is the occupant
	// of the other slot in that case.
	Paired   bool
	Peer     Occupant
	PeerSlot models.Slot

	// Displaced is a prior occupant of the same slot evicted by this join.
	Displaced Conn

	// PriorCounterpart is the counterpart left behind when this connection
	// was implicitly moved out of an earlier placement.
	PriorCounterpart Conn
	PriorRoomID      string
}

// Join places conn into slot of roomID, creating the room on first join. A
// prior occupant of the slot is evicted; a prior placement of this same
// connection elsewhere is implicitly left first.
func (r *Registry) Join(conn Conn, roomID string, slot models.Slot, displayName string) JoinResult {
	var res JoinResult

	r.mu.Lock()

	if prev, ok := r.conns[conn.ID()]; ok && (prev.roomID != roomID || prev.slot != slot) {
		res.PriorRoomID = prev.roomID
		res.PriorCounterpart = r.removeLocked(conn.ID(), prev)
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			createdAt: time.Now(),
			occupants: make(map[models.Slot]Occupant),
		}
		r.rooms[roomID] = rm
	}

	rm.mu.Lock()

	if prev, ok := rm.occupants[slot]; ok && prev.Conn.ID() != conn.ID() {
		res.Displaced = prev.Conn
		delete(r.conns, prev.Conn.ID())
	}
	r.conns[conn.ID()] = placement{roomID: roomID, slot: slot}

	r.mu.Unlock()

	rm.occupants[slot] = Occupant{Conn: conn, DisplayName: displayName}

	res.Snapshot = RoomSnapshot{
		RoomID:          roomID,
		Slot:            slot,
		RecordingActive: rm.recording,
		CreatedAt:       rm.createdAt,
	}
	if peer, ok := rm.occupants[slot.Other()]; ok {
		res.Paired = true
		res.Peer = peer
		res.PeerSlot = slot.Other()
	}

	rm.mu.Unlock()
	return res
}

// Leave removes the connection from its room and the directory, deleting the
// room when it empties. Idempotent: unknown connections are a no-op. The
// returned counterpart, if any, was still present at the moment of removal.
func (r *Registry) Leave(connID string) (roomID string, counterpart Conn, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, found := r.conns[connID]
	if !found {
		return "", nil, false
	}
	counterpart = r.removeLocked(connID, pl)
	return pl.roomID, counterpart, true
}

// removeLocked clears one placement and returns the remaining counterpart.
// Caller holds r.mu.
func (r *Registry) removeLocked(connID string, pl placement) Conn {
	delete(r.conns, connID)

	rm, ok := r.rooms[pl.roomID]
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	delete(rm.occupants, pl.slot)

	if occ, ok := rm.occupants[pl.slot.Other()]; ok {
		return occ.Conn
	}
	if len(rm.occupants) == 0 {
		delete(r.rooms, pl.roomID)
	}
	return nil
}

// Disconnect handles a transport-level connection loss: the whole room is
// torn down, not just the dropped side's slot, and the counterpart's
// directory entry goes with it. Idempotent like Leave. The returned
// counterpart still needs a peer-disconnected notification.
func (r *Registry) Disconnect(connID string) (roomID string, counterpart Conn, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, found := r.conns[connID]
	if !found {
		return "", nil, false
	}
	delete(r.conns, connID)

	rm, roomFound := r.rooms[pl.roomID]
	if !roomFound {
		return pl.roomID, nil, true
	}

	rm.mu.Lock()
	delete(rm.occupants, pl.slot)
	if occ, present := rm.occupants[pl.slot.Other()]; present {
		counterpart = occ.Conn
		delete(r.conns, occ.Conn.ID())
		delete(rm.occupants, pl.slot.Other())
	}
	rm.mu.Unlock()

	delete(r.rooms, pl.roomID)
	return pl.roomID, counterpart, true
}

// Counterpart resolves the other occupant of the sender's room.
func (r *Registry) Counterpart(connID string) (Conn, error) {
	r.mu.RLock()
	pl, ok := r.conns[connID]
	if !ok {
		r.mu.RUnlock()
		return nil, ErrRoomNotFound
	}
	rm := r.rooms[pl.roomID]
	r.mu.RUnlock()

	if rm == nil {
		return nil, ErrRoomNotFound
	}

	rm.mu.Lock()
	occ, ok := rm.occupants[pl.slot.Other()]
	rm.mu.Unlock()

	if !ok {
		return nil, ErrPeerNotFound
	}
	return occ.Conn, nil
}

// StartRecording flips the room's recording flag and returns every occupant
// to notify. No-op when the room does not exist.
func (r *Registry) StartRecording(roomID string) ([]Conn, bool) {
	r.mu.RLock()
	rm := r.rooms[roomID]
	r.mu.RUnlock()

	if rm == nil {
		return nil, false
	}

	rm.mu.Lock()
	rm.recording = true
	conns := make([]Conn, 0, len(rm.occupants))
	for _, occ := range rm.occupants {
		conns = append(conns, occ.Conn)
	}
	rm.mu.Unlock()

	return conns, true
}

// RoomExists reports whether a room is currently live.
func (r *Registry) RoomExists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Stats returns the number of live rooms and placed connections.
func (r *Registry) Stats() (rooms, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.conns)
}
