package relay

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/consultly/call-signaling/internal/metrics"
	"github.com/consultly/call-signaling/internal/models"
)

// Relay routes signaling events between the two occupants of a room and
// keeps membership notifications consistent with registry state.
type Relay struct {
	reg *Registry
	m   *metrics.Metrics
	log zerolog.Logger
}

func New(log zerolog.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		reg: NewRegistry(),
		m:   m,
		log: log.With().Str("component", "relay").Logger(),
	}
}

// Registry exposes the room registry, mainly for stats gauges.
func (r *Relay) Registry() *Registry { return r.reg }

// HandleEvent processes one validated inbound event. A panic inside a
// handler is confined to the triggering connection: it is logged and
// surfaced back as a generic error event.
func (r *Relay) HandleEvent(c Conn, ev models.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.m.RelayErrors.Inc()
			r.log.Error().
				Str("conn", c.ID()).
				Str("event", string(ev.Type)).
				Interface("panic", rec).
				Msg("event handler fault")
			c.Send(models.ErrorEvent("internal error"))
		}
	}()

	switch ev.Type {
	case models.EventJoin:
		r.onJoin(c, ev)
	case models.EventOffer, models.EventAnswer, models.EventCandidate:
		r.forward(c, ev)
	case models.EventStartRecording:
		r.onStartRecording(ev)
	case models.EventLeave:
		r.onLeave(c)
	default:
		c.Send(models.ErrorEvent(fmt.Sprintf("unsupported event type %q", ev.Type)))
	}
}

// HandleDisconnect runs cleanup for a transport-level disconnect. No room id
// is needed: the connection directory resolves it. Unlike an explicit leave,
// a disconnect tears the whole room down; the call cannot continue without
// renegotiation anyway. Safe to call for connections that never joined.
func (r *Relay) HandleDisconnect(c Conn) {
	roomID, counterpart, ok := r.reg.Disconnect(c.ID())
	if !ok {
		return
	}
	if counterpart != nil {
		counterpart.Send(models.PeerDisconnected())
	}
	r.log.Info().Str("conn", c.ID()).Str("room", roomID).Msg("connection dropped, room torn down")
}

func (r *Relay) onJoin(c Conn, ev models.Envelope) {
	res := r.reg.Join(c, ev.RoomID, ev.Slot, ev.DisplayName)

	if res.PriorCounterpart != nil {
		res.PriorCounterpart.Send(models.PeerLeft())
		r.log.Info().
			Str("conn", c.ID()).
			Str("room", res.PriorRoomID).
			Msg("implicit leave of previous room on re-join")
	}
	if res.Displaced != nil {
		res.Displaced.Send(models.ErrorEvent(
			fmt.Sprintf("displaced: slot %s in room %s was taken over", ev.Slot, ev.RoomID)))
		r.log.Warn().
			Str("room", ev.RoomID).
			Str("slot", string(ev.Slot)).
			Str("evicted", res.Displaced.ID()).
			Msg("slot occupant displaced by new join")
	}

	c.Send(models.RoomJoined(ev.RoomID, ev.Slot, res.Snapshot.RecordingActive))

	if res.Paired {
		// Both slots are durably recorded before either side hears
		// about the other.
		res.Peer.Conn.Send(models.PeerJoined(ev.Slot, ev.DisplayName))
		c.Send(models.PeerJoined(res.PeerSlot, res.Peer.DisplayName))

		// A recording may have started before the second party arrived;
		// make sure the whole room knows.
		if res.Snapshot.RecordingActive {
			c.Send(models.RecordingActive())
			res.Peer.Conn.Send(models.RecordingActive())
		}
	}

	r.log.Info().
		Str("conn", c.ID()).
		Str("room", ev.RoomID).
		Str("slot", string(ev.Slot)).
		Bool("paired", res.Paired).
		Msg("joined room")
}

func (r *Relay) onLeave(c Conn) {
	roomID, counterpart, ok := r.reg.Leave(c.ID())
	if !ok {
		return
	}
	if counterpart != nil {
		counterpart.Send(models.PeerLeft())
	}
	r.log.Info().Str("conn", c.ID()).Str("room", roomID).Msg("left room")
}

// forward relays an offer, answer, or candidate to the sender's counterpart,
// payload untouched. Offers and answers without a counterpart are an error
// back to the sender; stray candidates are expected during negotiation and
// dropped silently.
func (r *Relay) forward(c Conn, ev models.Envelope) {
	counterpart, err := r.reg.Counterpart(c.ID())
	if err != nil {
		if ev.Type == models.EventCandidate {
			r.log.Debug().Str("conn", c.ID()).Msg("dropping stray candidate")
			return
		}
		switch {
		case errors.Is(err, ErrRoomNotFound):
			c.Send(models.ErrorEvent("room not found"))
		case errors.Is(err, ErrPeerNotFound):
			c.Send(models.ErrorEvent("peer not found"))
		default:
			c.Send(models.ErrorEvent(err.Error()))
		}
		return
	}

	if ev.Type == models.EventCandidate {
		counterpart.Send(models.ForwardCandidate(ev.Candidate))
	} else {
		counterpart.Send(models.ForwardSDP(ev.Type, ev.SDP))
	}
	r.m.RelayedTotal.WithLabelValues(string(ev.Type)).Inc()
	r.log.Debug().
		Str("from", c.ID()).
		Str("to", counterpart.ID()).
		Str("kind", string(ev.Type)).
		Msg("relayed payload")
}

func (r *Relay) onStartRecording(ev models.Envelope) {
	conns, ok := r.reg.StartRecording(ev.RoomID)
	if !ok {
		r.log.Debug().Str("room", ev.RoomID).Msg("start_recording for unknown room ignored")
		return
	}
	for _, c := range conns {
		c.Send(models.RecordingActive())
	}
	r.m.RecordingStarts.Inc()
	r.log.Info().Str("room", ev.RoomID).Msg("recording started")
}
