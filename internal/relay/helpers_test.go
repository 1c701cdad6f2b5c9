package relay

import (
	"sync"

	"github.com/consultly/call-signaling/internal/models"
)

// fakeConn records every outbound event instead of writing to a socket.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []models.Envelope
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(ev models.Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func (f *fakeConn) all() []models.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Envelope, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeConn) ofType(t models.EventType) []models.Envelope {
	var out []models.Envelope
	for _, ev := range f.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
