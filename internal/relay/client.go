package relay

import (
	"log/slog"
	"time"

	"github.com/ChattingLord/roomlink/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Chat attachments travel inline.
	maxMessageSize = 16 * 1024 * 1024

	sendBuffer = 256
)

type frame struct {
	messageType int
	data        []byte
}

// Client is one websocket connection to the relay.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan frame

	// Owned by the hub goroutine.
	userID string
	roomID string
	inCall bool
	codec  protocol.Codec
}

// readPump pumps frames from the websocket connection to the hub. Each frame
// is decoded with the codec matching its frame type.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("read failed", slog.String("conn", c.id), slog.Any("error", err))
			}
			return
		}

		codec, err := protocol.CodecForFrame(messageType)
		if err != nil {
			continue
		}
		msg, err := codec.Decode(data)
		if err != nil {
			c.hub.logger.Debug("malformed frame", slog.String("conn", c.id), slog.Any("error", err))
			continue
		}

		if !c.hub.submit(&inbound{client: c, codec: codec, msg: msg}) {
			return
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
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
