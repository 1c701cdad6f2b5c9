package relay

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/consultly/call-signaling/internal/metrics"
	"github.com/consultly/call-signaling/internal/models"
)

func newTestRelay() *Relay {
	return New(zerolog.Nop(), metrics.New())
}

func join(r *Relay, c Conn, roomID string, slot models.Slot, name string) {
	r.HandleEvent(c, models.Envelope{
		Type:        models.EventJoin,
		RoomID:      roomID,
		Slot:        slot,
		DisplayName: name,
	})
}

func TestRelay_CallScenario(t *testing.T) {
	req := require.New(t)
	r := newTestRelay()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")

	// Asha joins first and waits.
	join(r, c1, "R1", models.SlotInitiator, "Asha")

	joined := c1.ofType(models.EventRoomJoined)
	req.Len(joined, 1)
	req.Equal("R1", joined[0].RoomID)
	req.Equal(models.SlotInitiator, joined[0].Slot)
	req.NotNil(joined[0].RecordingActive)
	req.False(*joined[0].RecordingActive)
	req.Empty(c1.ofType(models.EventPeerJoined))

	// Raj joins; both sides hear about each other, once each.
	join(r, c2, "R1", models.SlotCounterpart, "Raj")

	joined = c2.ofType(models.EventRoomJoined)
	req.Len(joined, 1)
	req.Equal(models.SlotCounterpart, joined[0].Slot)

	peer1 := c1.ofType(models.EventPeerJoined)
	req.Len(peer1, 1)
	req.Equal(models.SlotCounterpart, peer1[0].PeerSlot)
	req.Equal("Raj", peer1[0].PeerDisplayName)

	peer2 := c2.ofType(models.EventPeerJoined)
	req.Len(peer2, 1)
	req.Equal(models.SlotInitiator, peer2[0].PeerSlot)
	req.Equal("Asha", peer2[0].PeerDisplayName)

	// Offer forwarded verbatim.
	r.HandleEvent(c1, models.Envelope{
		Type:   models.EventOffer,
		RoomID: "R1",
		SDP:    json.RawMessage(`"sdp-A"`),
	})
	offers := c2.ofType(models.EventOffer)
	req.Len(offers, 1)
	req.JSONEq(`"sdp-A"`, string(offers[0].SDP))

	// Raj's connection drops: Asha hears it once and the room is gone.
	r.HandleDisconnect(c2)

	req.Len(c1.ofType(models.EventPeerDisconnected), 1)
	req.False(r.Registry().RoomExists("R1"))

	r.HandleEvent(c1, models.Envelope{
		Type:   models.EventOffer,
		RoomID: "R1",
		SDP:    json.RawMessage(`"sdp-A2"`),
	})
	errs := c1.ofType(models.EventError)
	req.Len(errs, 1)
	req.Equal("room not found", errs[0].Message)
}

func TestRelay_Forward(t *testing.T) {
	t.Run("should surface room not found for an offer from outside any room", func(t *testing.T) {
		req := require.New(t)
		r := newTestRelay()
		c := newFakeConn("c1")

		r.HandleEvent(c, models.Envelope{Type: models.EventOffer, RoomID: "R1", SDP: json.RawMessage(`"x"`)})

		errs := c.ofType(models.EventError)
		req.Len(errs, 1)
		req.Equal("room not found", errs[0].Message)
	})

	t.Run("should surface peer not found for an answer without a counterpart", func(t *testing.T) {
		req := require.New(t)
		r := newTestRelay()
		c := newFakeConn("c1")
		join(r, c, "R1", models.SlotInitiator, "Asha")

		r.HandleEvent(c, models.Envelope{Type: models.EventAnswer, RoomID: "R1", SDP: json.RawMessage(`"x"`)})

		errs := c.ofType(models.EventError)
		req.Len(errs, 1)
		req.Equal("peer not found", errs[0].Message)
	})

	t.Run("should drop a stray candidate silently", func(t *testing.T) {
		req := require.New(t)
		r := newTestRelay()
		c := newFakeConn("c1")
		join(r, c, "R1", models.SlotInitiator, "Asha")
		before := len(c.all())

		r.HandleEvent(c, models.Envelope{Type: models.EventCandidate, RoomID: "R1", Candidate: json.RawMessage(`{"candidate":"x"}`)})

		// No error, no delivery, state unchanged.
		req.Len(c.all(), before)
		req.True(r.Registry().RoomExists("R1"))
		_, conns := r.Registry().Stats()
		req.Equal(1, conns)
	})

	t.Run("should forward candidates verbatim once paired", func(t *testing.T) {
		req := require.New(t)
		r := newTestRelay()
		c1 := newFakeConn("c1")
		c2 := newFakeConn("c2")
		join(r, c1, "R1", models.SlotInitiator, "Asha")
		join(r, c2, "R1", models.SlotCounterpart, "Raj")

		payload := `{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host","sdpMid":"0"}`
		r.HandleEvent(c2, models.Envelope{Type: models.EventCandidate, RoomID: "R1", Candidate: json.RawMessage(payload)})

		got := c1.ofType(models.EventCandidate)
		req.Len(got, 1)
		req.JSONEq(payload, string(got[0].Candidate))
	})
}

func TestRelay_Recording(t *testing.T) {
	t.Run("should broadcast to the room and flag late joiners", func(t *testing.T) {
		req := require.New(t)
		r := newTestRelay()
		c1 := newFakeConn("c1")
		c2 := newFakeConn("c2")

		join(r, c1, "R1", models.SlotInitiator, "Asha")
		r.HandleEvent(c1, models.Envelope{Type: models.EventStartRecording, RoomID: "R1"})

		req.Len(c1.ofType(models.EventRecordingActive), 1)

		// The late joiner learns mid-call recording state both ways:
		// in its join reply and via the rebroadcast.
		join(r, c2, "R1", models.SlotCounterpart, "Raj")

		joined := c2.ofType(models.EventRoomJoined)
		req.Len(joined, 1)
		req.True(*joined[0].RecordingActive)
		req.NotEmpty(c2.ofType(models.EventRecordingActive))
	})

	t.Run("should rebroadcast on a repeated start", func(t *testing.T) {
		req := require.New(t)
		r := newTestRelay()
		c1 := newFakeConn("c1")
		join(r, c1, "R1", models.SlotInitiator, "Asha")

		r.HandleEvent(c1, models.Envelope{Type: models.EventStartRecording, RoomID: "R1"})
		r.HandleEvent(c1, models.Envelope{Type: models.EventStartRecording, RoomID: "R1"})

		req.Len(c1.ofType(models.EventRecordingActive), 2)
	})

	t.Run("should ignore a start for an unknown room", func(t *testing.T) {
		r := newTestRelay()
		c1 := newFakeConn("c1")

		r.HandleEvent(c1, models.Envelope{Type: models.EventStartRecording, RoomID: "nope"})

		require.Empty(t, c1.all())
	})
}

func TestRelay_Leave(t *testing.T) {
	t.Run("should notify the counterpart with peer_left", func(t *testing.T) {
		req := require.New(t)
		r := newTestRelay()
		c1 := newFakeConn("c1")
		c2 := newFakeConn("c2")
		join(r, c1, "R1", models.SlotInitiator, "Asha")
		join(r, c2, "R1", models.SlotCounterpart, "Raj")

		r.HandleEvent(c1, models.Envelope{Type: models.EventLeave, RoomID: "R1"})

		req.Len(c2.ofType(models.EventPeerLeft), 1)
		req.Empty(c2.ofType(models.EventPeerDisconnected))

		// Raj stays in the room alone.
		req.True(r.Registry().RoomExists("R1"))
	})

	t.Run("should tolerate a leave from a connection that never joined", func(t *testing.T) {
		r := newTestRelay()
		c := newFakeConn("ghost")

		r.HandleEvent(c, models.Envelope{Type: models.EventLeave, RoomID: "R1"})

		require.Empty(t, c.ofType(models.EventError))
	})
}

func TestRelay_SameSlotEvictsPriorOccupant(t *testing.T) {
	req := require.New(t)
	r := newTestRelay()
	old := newFakeConn("old")
	fresh := newFakeConn("fresh")

	join(r, old, "R1", models.SlotInitiator, "Asha")
	join(r, fresh, "R1", models.SlotInitiator, "Asha")

	// The displaced side is told explicitly instead of being ghosted.
	errs := old.ofType(models.EventError)
	req.Len(errs, 1)
	req.Contains(errs[0].Message, "displaced")

	// The fresh connection owns the slot.
	joined := fresh.ofType(models.EventRoomJoined)
	req.Len(joined, 1)
	_, conns := r.Registry().Stats()
	req.Equal(1, conns)
}

func TestRelay_RejoinMovesConnection(t *testing.T) {
	req := require.New(t)
	r := newTestRelay()
	mover := newFakeConn("mover")
	stayer := newFakeConn("stayer")

	join(r, mover, "R1", models.SlotInitiator, "Asha")
	join(r, stayer, "R1", models.SlotCounterpart, "Raj")

	join(r, mover, "R2", models.SlotInitiator, "Asha")

	// The abandoned counterpart hears a peer_left.
	req.Len(stayer.ofType(models.EventPeerLeft), 1)
	req.True(r.Registry().RoomExists("R2"))
}

func TestRelay_ConcurrentPairing(t *testing.T) {
	req := require.New(t)
	r := newTestRelay()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		join(r, c1, "R1", models.SlotInitiator, "Asha")
	}()
	go func() {
		defer wg.Done()
		join(r, c2, "R1", models.SlotCounterpart, "Raj")
	}()
	wg.Wait()

	// Exactly one pairing: each side gets exactly one peer_joined.
	req.Len(c1.ofType(models.EventPeerJoined), 1)
	req.Len(c2.ofType(models.EventPeerJoined), 1)
}
