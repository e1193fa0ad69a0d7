package transport

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Connection is one client's WebSocket socket. ChannelID is the stable
// identifier the Matchmaker and Session Engine key off of; it survives
// for the lifetime of the socket, independent of any session it joins.
type Connection struct {
	ChannelID string
	UserID    string

	conn    *websocket.Conn
	send    chan []byte
	manager *ConnectionManager

	connectedAt time.Time
	lastPing    time.Time
}

// writePump is the connection's single writer goroutine: every
// outbound frame and ping is serialized through it, matching the
// one-goroutine-per-socket discipline used across this server.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("channel_id", c.ChannelID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("channel_id", c.ChannelID).Msg("failed to send ping")
				return
			}
			c.lastPing = time.Now()
		}
	}
}

// readPump is the connection's single reader goroutine. Every inbound
// message is handed to the manager's dispatch before the deadline is
// reset for the next read.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		c.lastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("channel_id", c.ChannelID).Msg("unexpected close")
			}
			break
		}
		c.manager.dispatch(c, message)
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
