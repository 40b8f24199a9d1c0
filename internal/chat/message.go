package chat

import (
	"time"

	"github.com/ChattingLord/roomlink/internal/protocol"
	"github.com/google/uuid"
)

// Kind is the category of a chat message.
type Kind string

const (
	KindText   Kind = protocol.KindText
	KindFile   Kind = protocol.KindFile
	KindSystem Kind = protocol.KindSystem
)

// Message is one timeline entry. Messages are values; nothing mutates one
// after it is built.
type Message struct {
	ID         string
	RoomID     string
	SenderID   string
	Kind       Kind
	Text       string
	Attachment *Attachment
	Timestamp  time.Time
	Mine       bool
}

// NewSystemMessage builds a locally generated notice such as "Bob joined the
// room".
func NewSystemMessage(roomID, text string) Message {
	return Message{
		ID:        newID(),
		RoomID:    roomID,
		Kind:      KindSystem,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func newID() string {
	return uuid.NewString()
}

// Timeline is the room's messages in arrival order.
type Timeline struct {
	messages []Message
}

// Append adds m to the end of the timeline.
func (t *Timeline) Append(m Message) {
	t.messages = append(t.messages, m)
}

// Messages returns a copy of the timeline.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Timeline) Len() int { return len(t.messages) }

// Clear empties the timeline.
func (t *Timeline) Clear() {
	t.messages = nil
}
