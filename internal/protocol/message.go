package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownEvent    = errors.New("unknown event")
	ErrUnknownCodec    = errors.New("unknown codec")
	ErrUnexpectedFrame = errors.New("unexpected websocket frame type")
)

// Codec names accepted by CodecByName.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Message is one named event with its still-encoded payload.
type Message struct {
	Event   string
	Payload []byte

	codec Codec
}

// DecodePayload decodes the message payload into the provided struct.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if m.codec == nil {
		return json.Unmarshal(m.Payload, v)
	}
	return m.codec.unmarshal(m.Payload, v)
}

// Codec frames messages for one websocket connection.
type Codec interface {
	Name() string
	// FrameType is the websocket frame type this codec writes.
	FrameType() int
	Encode(event string, payload any) ([]byte, error)
	Decode(data []byte) (*Message, error)

	unmarshal(data []byte, v any) error
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
}

// CodecForFrame picks the codec matching an incoming websocket frame type.
func CodecForFrame(frameType int) (Codec, error) {
	switch frameType {
	case websocket.TextMessage:
		return JSONCodec{}, nil
	case websocket.BinaryMessage:
		return MsgpackCodec{}, nil
	default:
		return nil, ErrUnexpectedFrame
	}
}

// BuildMessage builds a Message whose payload is encoded with codec.
func BuildMessage(codec Codec, event string, payload any) (*Message, error) {
	data, err := codec.Encode(event, payload)
	if err != nil {
		return nil, err
	}
	return codec.Decode(data)
}

// JSONCodec writes {"event": ..., "payload": {...}} text frames.
type JSONCodec struct{}

type jsonFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (JSONCodec) Name() string   { return CodecJSON }
func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Encode(event string, payload any) ([]byte, error) {
	frame := jsonFrame{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		frame.Payload = raw
	}
	return json.Marshal(frame)
}

func (c JSONCodec) Decode(data []byte) (*Message, error) {
	var frame jsonFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if frame.Event == "" {
		return nil, fmt.Errorf("parse frame: missing event name")
	}
	return &Message{Event: frame.Event, Payload: frame.Payload, codec: c}, nil
}

func (JSONCodec) unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// MsgpackCodec writes the same envelope as msgpack binary frames.
type MsgpackCodec struct{}

type msgpackFrame struct {
	Event   string             `msgpack:"event"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

func (MsgpackCodec) Name() string   { return CodecMsgpack }
func (MsgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Encode(event string, payload any) ([]byte, error) {
	frame := msgpackFrame{Event: event}
	if payload != nil {
		raw, err := msgpack.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		frame.Payload = raw
	}
	return msgpack.Marshal(frame)
}

func (c MsgpackCodec) Decode(data []byte) (*Message, error) {
	var frame msgpackFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if frame.Event == "" {
		return nil, fmt.Errorf("parse frame: missing event name")
	}
	return &Message{Event: frame.Event, Payload: frame.Payload, codec: c}, nil
}

func (MsgpackCodec) unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
