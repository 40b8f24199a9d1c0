package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ChattingLord/roomlink/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrHubStopped = errors.New("relay hub stopped")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type inbound struct {
	client *Client
	codec  protocol.Codec
	msg    *protocol.Message
}

// RoomInfo describes a live room.
type RoomInfo struct {
	RoomID    string   `json:"roomId"`
	UserCount int      `json:"userCount"`
	Users     []string `json:"users"`
}

// Hub owns every room and connection. All state is touched only by the Run
// goroutine; connections talk to it over channels.
type Hub struct {
	rooms   map[string]*Room
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan *inbound
	queries    chan func()

	done   chan struct{}
	logger *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *inbound, 64),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "relay")),
	}
}

// Run processes hub traffic until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("client registered", slog.String("conn", c.id), slog.String("addr", c.conn.RemoteAddr().String()))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			h.drop(c)
			h.logger.Debug("client unregistered", slog.String("conn", c.id))

		case in := <-h.inbound:
			if _, ok := h.clients[in.client]; !ok {
				continue
			}
			in.client.codec = in.codec
			h.handle(in.client, in.msg)

		case q := <-h.queries:
			q()
		}
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.Any("error", err))
		return
	}

	c := &Client{
		id:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		send:  make(chan frame, sendBuffer),
		codec: protocol.JSONCodec{},
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ReserveRoomID returns a memorable room ID not used by any live room.
func (h *Hub) ReserveRoomID(ctx context.Context) (string, error) {
	var id string
	err := h.query(ctx, func() {
		for {
			id = GenerateRoomID()
			if _, taken := h.rooms[id]; !taken {
				return
			}
		}
	})
	return id, err
}

// Room returns the current membership of a live room.
func (h *Hub) Room(ctx context.Context, id string) (RoomInfo, bool, error) {
	var (
		info RoomInfo
		ok   bool
	)
	err := h.query(ctx, func() {
		room, found := h.rooms[id]
		if !found {
			return
		}
		users := room.users()
		info, ok = RoomInfo{RoomID: id, UserCount: len(users), Users: users}, true
	})
	return info, ok, err
}

func (h *Hub) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(done) }:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

func (h *Hub) submit(in *inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// handle routes one client event.
func (h *Hub) handle(c *Client, msg *protocol.Message) {
	switch msg.Event {
	case protocol.EventJoinRoom:
		var ref protocol.RoomRef
		if !h.decode(c, msg, &ref) {
			return
		}
		if ref.RoomID == "" || ref.UserID == "" {
			h.sendError(c, "roomId and userId are required")
			return
		}
		h.join(c, ref)

	case protocol.EventLeaveRoom:
		h.removeFromRoom(c)

	case protocol.EventSendMessage:
		var sm protocol.SendMessage
		if !h.decode(c, msg, &sm) {
			return
		}
		room := h.roomOf(c, sm.RoomID)
		if room == nil {
			return
		}
		if sm.Type == "" {
			sm.Type = protocol.KindText
		}
		h.broadcast(room, nil, protocol.EventNewMessage, protocol.NewMessage{
			RoomID:    room.ID,
			UserID:    c.userID,
			Message:   sm.Message,
			Type:      sm.Type,
			FileData:  sm.FileData,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})

	case protocol.EventTypingStart, protocol.EventTypingStop:
		var ref protocol.RoomRef
		if !h.decode(c, msg, &ref) {
			return
		}
		if room := h.roomOf(c, ref.RoomID); room != nil {
			h.broadcast(room, c, protocol.EventUserTyping, protocol.UserTyping{
				UserID:   c.userID,
				IsTyping: msg.Event == protocol.EventTypingStart,
			})
		}

	case protocol.EventJoinCall:
		var ref protocol.RoomRef
		if !h.decode(c, msg, &ref) {
			return
		}
		if room := h.roomOf(c, ref.RoomID); room != nil {
			c.inCall = true
			h.broadcast(room, c, protocol.EventUserJoinedCall, protocol.UserJoinedCall{RoomID: room.ID, UserID: c.userID})
		}

	case protocol.EventLeaveCall:
		var ref protocol.RoomRef
		if !h.decode(c, msg, &ref) {
			return
		}
		if room := h.roomOf(c, ref.RoomID); room != nil && c.inCall {
			c.inCall = false
			h.broadcast(room, c, protocol.EventUserLeftCall, protocol.UserLeftCall{RoomID: room.ID, UserID: c.userID})
		}

	case protocol.EventMediaStateChange:
		var ms protocol.MediaState
		if !h.decode(c, msg, &ms) {
			return
		}
		if room := h.roomOf(c, ms.RoomID); room != nil {
			h.broadcast(room, c, protocol.EventUserMediaStateChanged, protocol.UserMediaStateChanged{
				UserID:    c.userID,
				IsVideoOn: ms.IsVideoOn,
				IsAudioOn: ms.IsAudioOn,
			})
		}

	case protocol.EventOffer, protocol.EventAnswer, protocol.EventICECandidate:
		h.forward(c, msg)

	default:
		h.logger.Debug("unknown event", slog.String("conn", c.id), slog.String("event", msg.Event))
	}
}

// join adds c to a room, creating it on first use. The joiner gets the
// roster; everyone else learns about the newcomer.
func (h *Hub) join(c *Client, ref protocol.RoomRef) {
	if c.roomID != "" && (c.roomID != ref.RoomID || c.userID != ref.UserID) {
		h.removeFromRoom(c)
	}

	room, ok := h.rooms[ref.RoomID]
	if !ok {
		room = newRoom(ref.RoomID)
		h.rooms[room.ID] = room
		h.logger.Info("room created", slog.String("room", room.ID))
	}

	c.userID, c.roomID = ref.UserID, ref.RoomID
	if prev := room.add(c); prev != nil && prev != c {
		// Same identity from a new connection; the old one no longer speaks for it.
		prev.roomID, prev.inCall = "", false
	}

	users := room.users()
	snap := protocol.Snapshot{RoomID: room.ID, UserID: c.userID, UserCount: len(users), Users: users}

	h.sendTo(c, protocol.EventRoomJoined, protocol.RoomJoined(snap))
	h.broadcast(room, c, protocol.EventUserJoined, protocol.UserJoined(snap))

	h.logger.Info("user joined", slog.String("room", room.ID), slog.String("user", c.userID), slog.Int("members", len(users)))
}

// removeFromRoom takes c out of its room and tells the rest of the room.
func (h *Hub) removeFromRoom(c *Client) {
	room, ok := h.rooms[c.roomID]
	c.roomID = ""
	if !ok || !room.remove(c) {
		return
	}

	if c.inCall {
		c.inCall = false
		h.broadcast(room, nil, protocol.EventUserLeftCall, protocol.UserLeftCall{RoomID: room.ID, UserID: c.userID})
	}

	if room.empty() {
		delete(h.rooms, room.ID)
		h.logger.Info("room deleted", slog.String("room", room.ID))
		return
	}

	users := room.users()
	h.broadcast(room, nil, protocol.EventUserLeft, protocol.UserLeft{
		RoomID: room.ID, UserID: c.userID, UserCount: len(users), Users: users,
	})
	h.logger.Info("user left", slog.String("room", room.ID), slog.String("user", c.userID), slog.Int("members", len(users)))
}

// forward relays an addressed negotiation event to toUserId only.
func (h *Hub) forward(c *Client, msg *protocol.Message) {
	ev, err := protocol.Decode(msg)
	if err != nil {
		h.sendError(c, "malformed signaling payload")
		return
	}

	var roomID, to string
	switch e := ev.(type) {
	case *protocol.Offer:
		e.FromUserID, roomID, to = c.userID, e.RoomID, e.ToUserID
	case *protocol.Answer:
		e.FromUserID, roomID, to = c.userID, e.RoomID, e.ToUserID
	case *protocol.Candidate:
		e.FromUserID, roomID, to = c.userID, e.RoomID, e.ToUserID
	}

	room, ok := h.rooms[roomID]
	if !ok || c.roomID != roomID {
		h.sendError(c, "You must join a room first")
		return
	}

	target := room.member(to)
	if target == nil {
		h.logger.Debug("signal target not in room", slog.String("room", roomID), slog.String("to", to))
		return
	}
	h.sendTo(target, msg.Event, ev)
}

// roomOf returns the sender's room, or nil when the sender is not in the
// room the payload names.
func (h *Hub) roomOf(c *Client, roomID string) *Room {
	room, ok := h.rooms[c.roomID]
	if !ok || (roomID != "" && roomID != c.roomID) {
		h.sendError(c, "You must join a room first")
		return nil
	}
	return room
}

func (h *Hub) decode(c *Client, msg *protocol.Message, v any) bool {
	if err := msg.DecodePayload(v); err != nil {
		h.sendError(c, "wrong data format")
		return false
	}
	return true
}

// broadcast sends an event to every member except skip.
func (h *Hub) broadcast(room *Room, skip *Client, event string, payload any) {
	for _, id := range room.users() {
		if m := room.member(id); m != nil && m != skip {
			h.sendTo(m, event, payload)
		}
	}
}

// sendTo encodes payload in the codec the client last spoke. A client whose
// buffer is full is dropped so it sees a disconnect instead of a gap.
func (h *Hub) sendTo(c *Client, event string, payload any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	data, err := c.codec.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode failed", slog.String("event", event), slog.Any("error", err))
		return
	}

	select {
	case c.send <- frame{messageType: c.codec.FrameType(), data: data}:
	default:
		h.logger.Warn("send buffer full, closing connection", slog.String("conn", c.id), slog.String("event", event))
		h.drop(c)
	}
}

// drop detaches c from the hub. Closing send makes the write pump close the
// socket.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.removeFromRoom(c)
}

func (h *Hub) sendError(c *Client, message string) {
	h.sendTo(c, protocol.EventError, protocol.ErrorPayload{Message: message})
}
