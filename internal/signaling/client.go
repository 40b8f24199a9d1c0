package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChattingLord/roomlink/internal/dns"
	"github.com/ChattingLord/roomlink/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	handshakeWait  = 10 * time.Second
	maxMessageSize = 16 * 1024 * 1024 // a 10 MiB attachment grows by a third in base64

	outgoingBuffer = 256
	incomingBuffer = 64
)

var (
	ErrClosed             = errors.New("signaling client closed")
	ErrSendBufferFull     = errors.New("signaling send buffer full")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Options tunes a Client.
type Options struct {
	Codec             protocol.Codec
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// Resolver, when set, resolves the relay host with public-DNS fallback.
	Resolver *dns.Resolver
	Logger   *slog.Logger
}

// Client manages the WebSocket connection to the relay. It reconnects on its
// own a bounded number of times; connect/disconnect transitions are delivered
// in order with relay events on Incoming.
type Client struct {
	serverURL string
	opts      Options
	dialer    *websocket.Dialer
	logger    *slog.Logger

	incoming chan *protocol.Message
	outgoing chan []byte
	done     chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	connected atomic.Bool
	err       atomic.Pointer[error]
}

// Dial connects to the relay and starts the connection pumps. The first
// attempt is not retried; a failure is returned to the caller.
func Dial(ctx context.Context, serverURL string, opts Options) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	if opts.Codec == nil {
		opts.Codec = protocol.JSONCodec{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: handshakeWait,
	}
	if opts.Resolver != nil {
		dialer.NetDialContext = opts.Resolver.DialContext
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		serverURL: u.String(),
		opts:      opts,
		dialer:    dialer,
		logger:    opts.Logger.With(slog.String("relay", u.Host)),
		incoming:  make(chan *protocol.Message, incomingBuffer),
		outgoing:  make(chan []byte, outgoingBuffer),
		done:      make(chan struct{}),
		ctx:       runCtx,
		cancel:    cancel,
	}

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	go c.run(conn)
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return nil, err
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return conn, nil
}

// run owns the connection lifecycle until Close or until reconnecting gives up.
func (c *Client) run(conn *websocket.Conn) {
	defer close(c.incoming)

	for {
		c.connected.Store(true)
		c.emit(protocol.EventConnect)
		c.serve(conn)
		c.connected.Store(false)

		if c.isClosed() {
			return
		}
		c.emit(protocol.EventDisconnect)

		conn = c.reconnect()
		if conn == nil {
			return
		}
	}
}

func (c *Client) reconnect() *websocket.Conn {
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}

		conn, err := c.dial(c.ctx)
		if err == nil {
			c.logger.Info("reconnected", slog.Int("attempt", attempt))
			return conn
		}
		c.logger.Warn("reconnect failed", slog.Int("attempt", attempt), slog.Any("error", err))
	}

	err := ErrReconnectExhausted
	c.err.Store(&err)
	return nil
}

// serve runs both pumps for one connection and returns once it is unusable.
func (c *Client) serve(conn *websocket.Conn) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readPump(conn)
	}()

	c.writePump(conn, readDone)
	conn.Close()
	<-readDone
}

// readPump reads frames from the connection. Each frame is decoded with the
// codec matching its frame type so a relay may answer in either codec.
func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		frameType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", slog.Any("error", err))
			}
			return
		}

		codec, err := protocol.CodecForFrame(frameType)
		if err != nil {
			continue
		}
		msg, err := codec.Decode(data)
		if err != nil {
			c.logger.Debug("dropping malformed frame", slog.Any("error", err))
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued frames and sends periodic pings.
func (c *Client) writePump(conn *websocket.Conn, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(c.opts.Codec.FrameType(), frame); err != nil {
				c.logger.Debug("write failed", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-readDone:
			return

		case <-c.done:
			c.flush(conn)
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued so farewell events sent right before
// Close reach the relay.
func (c *Client) flush(conn *websocket.Conn) {
	for {
		select {
		case frame := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(c.opts.Codec.FrameType(), frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) emit(event string) {
	select {
	case c.incoming <- &protocol.Message{Event: event}:
	case <-c.done:
	}
}

// Send queues an event for the relay. Frames queued while reconnecting are
// written once the connection is back.
func (c *Client) Send(event string, payload any) error {
	if c.isClosed() {
		return ErrClosed
	}

	frame, err := c.opts.Codec.Encode(event, payload)
	if err != nil {
		return err
	}

	select {
	case c.outgoing <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Incoming returns the channel for receiving messages. It is closed after
// Close or when reconnecting gives up.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Connected reports whether a relay connection is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Err returns ErrReconnectExhausted once the client has given up.
func (c *Client) Err() error {
	if p := c.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
