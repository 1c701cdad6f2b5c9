package handlers

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/consultly/call-signaling/internal/metrics"
	"github.com/consultly/call-signaling/internal/models"
	"github.com/consultly/call-signaling/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// Enough for WebRTC SDP payloads.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware.
		return true
	},
}

// Client is one signaling connection. It implements relay.Conn: outbound
// events go through a buffered channel drained by writePump, so sends from
// the relay never block a room's critical section.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	closed atomic.Bool
	log    zerolog.Logger
}

func (c *Client) ID() string { return c.id }

// Send queues an event for delivery. Drops (and reports false) when the
// connection is gone or its buffer is full.
func (c *Client) Send(ev models.Envelope) bool {
	if c.closed.Load() {
		return false
	}
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal event")
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn().Str("event", string(ev.Type)).Msg("send buffer full, dropping event")
		return false
	}
}

// HandleSignaling upgrades the connection and hands it to the relay. Room
// membership is established in-band via a join event, not via the URL.
func HandleSignaling(rel *relay.Relay, m *metrics.Metrics, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Msg("failed to upgrade connection")
			return
		}

		connID := uuid.New().String()
		client := &Client{
			id:   connID,
			conn: conn,
			send: make(chan []byte, 256),
			log:  log.With().Str("conn", connID).Logger(),
		}

		m.ConnectionsOpen.Inc()
		client.log.Info().Msg("connection established")
		client.Send(models.Connected(connID))

		go client.writePump()
		go client.readPump(rel, m)
	}
}

func (c *Client) readPump(rel *relay.Relay, m *metrics.Metrics) {
	defer func() {
		c.closed.Store(true)
		rel.HandleDisconnect(c)
		c.conn.Close()
		m.ConnectionsOpen.Dec()
		c.log.Info().Msg("connection closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		ev, err := models.ParseEnvelope(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("rejected malformed event")
			c.Send(models.ErrorEvent("malformed event: " + err.Error()))
			continue
		}

		rel.HandleEvent(c, ev)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
