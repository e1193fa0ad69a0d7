package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fourthdown/gridlink/go/internal/config"
	"github.com/fourthdown/gridlink/go/internal/endpoint"
	"github.com/fourthdown/gridlink/go/internal/matchmaker"
	"github.com/fourthdown/gridlink/go/internal/session"
)

// ConnectionManager owns the set of live client channels and is the
// Transport Adapter's implementation of session.Emitter: it is the
// only thing in the server that turns a channelID into bytes on a
// socket.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	upgrader websocket.Upgrader
	config   ConnectionConfig

	matchmaker *matchmaker.Matchmaker
	engine     *session.Engine
	picker     *endpoint.Picker
	cfg        *config.Config
}

// NewConnectionManager wires the Transport Adapter to the Matchmaker,
// Session Engine and Endpoint Picker it dispatches inbound frames to.
func NewConnectionManager(cfg ConnectionConfig, mm *matchmaker.Matchmaker, engine *session.Engine, picker *endpoint.Picker, difficulty *config.Config) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		config:     cfg,
		matchmaker: mm,
		engine:     engine,
		picker:     picker,
		cfg:        difficulty,
	}
}

// Wire attaches the Matchmaker and Session Engine once they exist;
// both depend on this manager as their session.Emitter, so
// construction is necessarily two-phase.
func (m *ConnectionManager) Wire(mm *matchmaker.Matchmaker, engine *session.Engine) {
	m.matchmaker = mm
	m.engine = engine
}

// Upgrade promotes an HTTP request to a WebSocket connection and
// starts its read/write pumps. userID has already been authenticated
// by the caller.
func (m *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Connection{
		ChannelID:   uuid.NewString(),
		UserID:      userID,
		conn:        conn,
		send:        make(chan []byte, 64),
		manager:     m,
		connectedAt: time.Now(),
		lastPing:    time.Now(),
	}

	m.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().Str("channel_id", c.ChannelID).Str("user_id", userID).Msg("channel connected")
	return nil
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ChannelID] = c
}

// unregister drops the connection and tells the domain layer the
// channel is gone; called once from that connection's own readPump.
func (m *ConnectionManager) unregister(c *Connection) {
	m.mu.Lock()
	_, ok := m.connections[c.ChannelID]
	if ok {
		delete(m.connections, c.ChannelID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	close(c.send)
	m.matchmaker.Dequeue(c.ChannelID)
	m.engine.Disconnect(c.ChannelID)

	log.Info().Str("channel_id", c.ChannelID).Str("user_id", c.UserID).Msg("channel disconnected")
}

// Emit implements session.Emitter: deliver frame to channelID's
// socket, or drop it (logging) if the channel is gone. If the channel's
// send buffer is saturated, the frame is dropped and the channel is
// unregistered and closed.
func (m *ConnectionManager) Emit(channelID string, frame session.OutboundFrame) {
	m.mu.RLock()
	c, ok := m.connections[channelID]
	m.mu.RUnlock()
	if !ok {
		log.Debug().Str("channel_id", channelID).Msg("emit to unknown channel, dropping")
		return
	}

	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("failed to marshal outbound frame")
		return
	}

	select {
	case c.send <- data:
	default:
		log.Warn().Str("channel_id", channelID).Msg("send buffer full, closing channel")
		m.unregister(c)
		c.conn.Close()
	}
}

// Stats reports the current connection and queue counts for the
// admin/health surface.
func (m *ConnectionManager) Stats() map[string]interface{} {
	m.mu.RLock()
	connections := len(m.connections)
	m.mu.RUnlock()

	return map[string]interface{}{
		"connections": connections,
		"queue_depth": m.matchmaker.Len(),
	}
}
