package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChattingLord/roomlink/internal/protocol"
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrEmptyMessage = errors.New("empty message")
	ErrForeignRoom  = errors.New("message for another room")
)

// Sender delivers an event to the relay.
type Sender interface {
	Send(event string, payload any) error
}

// Relay sends chat messages through the relay and turns the relay's
// new-message broadcasts into timeline entries. The sender's own messages
// come back through the same broadcast, so nothing is added locally on send.
type Relay struct {
	self    string
	sender  Sender
	maxSize int64
}

// NewRelay creates a relay for the local identity.
func NewRelay(self string, sender Sender, maxSize int64) *Relay {
	return &Relay{self: self, sender: sender, maxSize: maxSize}
}

// SendText emits a text message.
func (r *Relay) SendText(roomID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	return r.sender.Send(protocol.EventSendMessage, protocol.SendMessage{
		RoomID:  roomID,
		UserID:  r.self,
		Message: text,
		Type:    protocol.KindText,
	})
}

// SendFile emits a file message. Oversized attachments are rejected without
// sending anything.
func (r *Relay) SendFile(roomID string, a *Attachment) error {
	size := int64(len(a.Data))
	if size > r.maxSize || a.Size > r.maxSize {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, a.Name, r.maxSize)
	}

	fileType := a.Type
	if fileType == "" {
		fileType = mimeType(a.Name)
	}

	return r.sender.Send(protocol.EventSendMessage, protocol.SendMessage{
		RoomID:  roomID,
		UserID:  r.self,
		Message: a.Name,
		Type:    protocol.KindFile,
		FileData: &protocol.FileData{
			FileName: a.Name,
			FileType: fileType,
			FileSize: size,
			Data:     base64.StdEncoding.EncodeToString(a.Data),
		},
	})
}

// Receive builds the timeline entry for a new-message broadcast. Every call
// yields a fresh identifier; duplicates are not detected.
func (r *Relay) Receive(roomID string, ev *protocol.NewMessage) (Message, error) {
	if ev.RoomID != roomID {
		return Message{}, ErrForeignRoom
	}

	msg := Message{
		ID:        newID(),
		RoomID:    ev.RoomID,
		SenderID:  ev.UserID,
		Kind:      KindText,
		Text:      ev.Message,
		Timestamp: parseTimestamp(ev.Timestamp),
		Mine:      ev.UserID == r.self,
	}
	// System entries are local only; peers may send text or file.
	if Kind(ev.Type) == KindFile {
		msg.Kind = KindFile
	}

	if ev.FileData != nil {
		data, err := base64.StdEncoding.DecodeString(ev.FileData.Data)
		if err != nil {
			return Message{}, fmt.Errorf("decode attachment %q: %w", ev.FileData.FileName, err)
		}
		msg.Attachment = &Attachment{
			Name: ev.FileData.FileName,
			Type: ev.FileData.FileType,
			Size: ev.FileData.FileSize,
			Data: data,
		}
	}

	return msg, nil
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Now()
}
