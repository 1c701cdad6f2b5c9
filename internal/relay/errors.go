package relay

import "errors"

var (
	// ErrRoomNotFound means the sender does not occupy any room.
	ErrRoomNotFound = errors.New("room not found")

	// ErrPeerNotFound means the sender's room exists but the counterpart
	// slot is empty.
	ErrPeerNotFound = errors.New("peer not found")
)
