package protocol

import "fmt"

// Event names exchanged with the relay.
const (
	// Client to relay.
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventSendMessage      = "send-message"
	EventTypingStart      = "typing-start"
	EventTypingStop       = "typing-stop"
	EventJoinCall         = "join-call"
	EventLeaveCall        = "leave-call"
	EventMediaStateChange = "media-state-change"

	// Relay to client.
	EventRoomJoined            = "room-joined"
	EventUserJoined            = "user-joined"
	EventUserLeft              = "user-left"
	EventNewMessage            = "new-message"
	EventUserTyping            = "user-typing"
	EventUserJoinedCall        = "user-joined-call"
	EventUserLeftCall          = "user-left-call"
	EventUserMediaStateChanged = "user-media-state-changed"
	EventError                 = "error"

	// Addressed, both directions.
	EventOffer        = "webrtc-offer"
	EventAnswer       = "webrtc-answer"
	EventICECandidate = "webrtc-ice-candidate"

	// Local transport transitions, never sent on the wire.
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Message kinds carried by send-message / new-message.
const (
	KindText   = "text"
	KindFile   = "file"
	KindSystem = "system"
)

// Event is a decoded relay-to-client event.
type Event interface {
	EventName() string
}

// RoomRef is the payload of join-room, leave-room, typing-*, and *-call requests.
type RoomRef struct {
	RoomID string `json:"roomId" msgpack:"roomId"`
	UserID string `json:"userId" msgpack:"userId"`
}

// FileData is an attachment as it travels over the relay.
type FileData struct {
	FileName string `json:"fileName" msgpack:"fileName"`
	FileType string `json:"fileType" msgpack:"fileType"`
	FileSize int64  `json:"fileSize" msgpack:"fileSize"`
	Data     string `json:"data" msgpack:"data"` // base64
}

// SendMessage is the client's chat request.
type SendMessage struct {
	RoomID   string    `json:"roomId" msgpack:"roomId"`
	UserID   string    `json:"userId" msgpack:"userId"`
	Message  string    `json:"message" msgpack:"message"`
	Type     string    `json:"type" msgpack:"type"`
	FileData *FileData `json:"fileData,omitempty" msgpack:"fileData,omitempty"`
}

// MediaState is the payload of media-state-change.
type MediaState struct {
	RoomID    string `json:"roomId" msgpack:"roomId"`
	UserID    string `json:"userId" msgpack:"userId"`
	IsVideoOn bool   `json:"isVideoOn" msgpack:"isVideoOn"`
	IsAudioOn bool   `json:"isAudioOn" msgpack:"isAudioOn"`
}

// SessionDescription mirrors the browser RTCSessionDescriptionInit shape.
type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// Snapshot carries the full member list after a membership change.
type Snapshot struct {
	RoomID    string   `json:"roomId" msgpack:"roomId"`
	UserID    string   `json:"userId" msgpack:"userId"`
	UserCount int      `json:"userCount" msgpack:"userCount"`
	Users     []string `json:"users" msgpack:"users"`
}

type RoomJoined Snapshot

func (RoomJoined) EventName() string { return EventRoomJoined }

type UserJoined Snapshot

func (UserJoined) EventName() string { return EventUserJoined }

type UserLeft Snapshot

func (UserLeft) EventName() string { return EventUserLeft }

// NewMessage is the relay's canonical broadcast of a chat message.
type NewMessage struct {
	RoomID    string    `json:"roomId" msgpack:"roomId"`
	UserID    string    `json:"userId" msgpack:"userId"`
	Message   string    `json:"message" msgpack:"message"`
	Type      string    `json:"type" msgpack:"type"`
	FileData  *FileData `json:"fileData,omitempty" msgpack:"fileData,omitempty"`
	Timestamp string    `json:"timestamp" msgpack:"timestamp"`
}

func (NewMessage) EventName() string { return EventNewMessage }

type UserTyping struct {
	UserID   string `json:"userId" msgpack:"userId"`
	IsTyping bool   `json:"isTyping" msgpack:"isTyping"`
}

func (UserTyping) EventName() string { return EventUserTyping }

type UserJoinedCall RoomRef

func (UserJoinedCall) EventName() string { return EventUserJoinedCall }

type UserLeftCall RoomRef

func (UserLeftCall) EventName() string { return EventUserLeftCall }

type UserMediaStateChanged struct {
	UserID    string `json:"userId" msgpack:"userId"`
	IsVideoOn bool   `json:"isVideoOn" msgpack:"isVideoOn"`
	IsAudioOn bool   `json:"isAudioOn" msgpack:"isAudioOn"`
}

func (UserMediaStateChanged) EventName() string { return EventUserMediaStateChanged }

// Offer and Answer share a layout but stay distinct types so a dispatcher can
// switch on them.
type Offer struct {
	RoomID     string             `json:"roomId" msgpack:"roomId"`
	FromUserID string             `json:"fromUserId" msgpack:"fromUserId"`
	ToUserID   string             `json:"toUserId" msgpack:"toUserId"`
	SDP        SessionDescription `json:"sdp" msgpack:"sdp"`
}

func (Offer) EventName() string { return EventOffer }

type Answer struct {
	RoomID     string             `json:"roomId" msgpack:"roomId"`
	FromUserID string             `json:"fromUserId" msgpack:"fromUserId"`
	ToUserID   string             `json:"toUserId" msgpack:"toUserId"`
	SDP        SessionDescription `json:"sdp" msgpack:"sdp"`
}

func (Answer) EventName() string { return EventAnswer }

type Candidate struct {
	RoomID     string       `json:"roomId" msgpack:"roomId"`
	FromUserID string       `json:"fromUserId" msgpack:"fromUserId"`
	ToUserID   string       `json:"toUserId" msgpack:"toUserId"`
	Candidate  ICECandidate `json:"candidate" msgpack:"candidate"`
}

func (Candidate) EventName() string { return EventICECandidate }

// ErrorPayload represents error messages from the relay.
type ErrorPayload struct {
	Message string `json:"message" msgpack:"message"`
}

func (ErrorPayload) EventName() string { return EventError }

// Connectivity is synthesised by the transport on connect/disconnect.
type Connectivity struct {
	Connected bool
}

func (c Connectivity) EventName() string {
	if c.Connected {
		return EventConnect
	}
	return EventDisconnect
}

// Decode turns a wire message into its typed event.
func Decode(msg *Message) (Event, error) {
	switch msg.Event {
	case EventConnect:
		return &Connectivity{Connected: true}, nil
	case EventDisconnect:
		return &Connectivity{Connected: false}, nil
	case EventRoomJoined:
		return decodeAs(msg, &RoomJoined{})
	case EventUserJoined:
		return decodeAs(msg, &UserJoined{})
	case EventUserLeft:
		return decodeAs(msg, &UserLeft{})
	case EventNewMessage:
		return decodeAs(msg, &NewMessage{})
	case EventUserTyping:
		return decodeAs(msg, &UserTyping{})
	case EventUserJoinedCall:
		return decodeAs(msg, &UserJoinedCall{})
	case EventUserLeftCall:
		return decodeAs(msg, &UserLeftCall{})
	case EventUserMediaStateChanged:
		return decodeAs(msg, &UserMediaStateChanged{})
	case EventOffer:
		return decodeAs(msg, &Offer{})
	case EventAnswer:
		return decodeAs(msg, &Answer{})
	case EventICECandidate:
		return decodeAs(msg, &Candidate{})
	case EventError:
		return decodeAs(msg, &ErrorPayload{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
	}
}

func decodeAs[T Event](msg *Message, p T) (Event, error) {
	if err := msg.DecodePayload(p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Event, err)
	}
	return p, nil
}
