package presence

import (
	"errors"
	"slices"

	"github.com/ChattingLord/roomlink/internal/protocol"
)

var ErrNotInRoom = errors.New("not in a room")

// Sender delivers an event to the relay.
type Sender interface {
	Send(event string, payload any) error
}

// Participant is one roster member as seen by this client.
type Participant struct {
	ID      string
	Name    string
	Color   string
	Online  bool
	VideoOn bool
	AudioOn bool
	Self    bool
}

type mediaFlags struct {
	video, audio bool
}

// Tracker replicates the relay's roster for one room along with the typing
// set and per-member media flags. It is not safe for concurrent use.
type Tracker struct {
	self   string
	room   string
	sender Sender

	members []string
	media   map[string]mediaFlags
	typing  map[string]struct{}

	localTyping bool
}

// NewTracker creates a tracker for the local identity.
func NewTracker(self string, sender Sender) *Tracker {
	return &Tracker{
		self:   self,
		sender: sender,
		media:  make(map[string]mediaFlags),
		typing: make(map[string]struct{}),
	}
}

// Self returns the local identity.
func (t *Tracker) Self() string { return t.self }

// Room returns the room the tracker was joined to.
func (t *Tracker) Room() string { return t.room }

// Join asks the relay to add the local identity to room. The roster arrives
// later as a room-joined snapshot.
func (t *Tracker) Join(room string) error {
	t.room = room
	return t.sender.Send(protocol.EventJoinRoom, protocol.RoomRef{RoomID: room, UserID: t.self})
}

// Leave tells the relay the local identity is gone. No acknowledgment is
// expected.
func (t *Tracker) Leave() error {
	if t.room == "" {
		return ErrNotInRoom
	}
	return t.sender.Send(protocol.EventLeaveRoom, protocol.RoomRef{RoomID: t.room, UserID: t.self})
}

// Transition describes what a membership snapshot changed.
type Transition struct {
	// Subject is the member the event was about.
	Subject string
	Joined  bool

	// Notice is the system message text for the timeline, empty when the
	// subject is the local identity.
	Notice string

	Added   []string
	Removed []string
}

// Apply replaces the roster with a membership snapshot. Known media flags of
// members still present are kept; new members start with both flags off.
func (t *Tracker) Apply(ev protocol.Event) (Transition, bool) {
	var (
		snap   protocol.Snapshot
		joined bool
	)
	switch e := ev.(type) {
	case *protocol.RoomJoined:
		snap, joined = protocol.Snapshot(*e), true
	case *protocol.UserJoined:
		snap, joined = protocol.Snapshot(*e), true
	case *protocol.UserLeft:
		snap = protocol.Snapshot(*e)
	default:
		return Transition{}, false
	}

	if t.room != "" && snap.RoomID != "" && snap.RoomID != t.room {
		return Transition{}, false
	}

	tr := Transition{Subject: snap.UserID, Joined: joined}
	for _, id := range snap.Users {
		if !slices.Contains(t.members, id) {
			tr.Added = append(tr.Added, id)
		}
	}
	for _, id := range t.members {
		if !slices.Contains(snap.Users, id) {
			tr.Removed = append(tr.Removed, id)
		}
	}

	media := make(map[string]mediaFlags, len(snap.Users))
	for _, id := range snap.Users {
		media[id] = t.media[id]
	}
	for _, id := range tr.Removed {
		delete(t.typing, id)
	}

	t.members = slices.Clone(snap.Users)
	t.media = media

	if snap.UserID != "" && snap.UserID != t.self {
		verb := " left the room"
		if joined {
			verb = " joined the room"
		}
		tr.Notice = DisplayName(snap.UserID) + verb
	}

	return tr, true
}

// SetMediaState records a member's media flags. Flags for identities outside
// the roster are ignored.
func (t *Tracker) SetMediaState(id string, video, audio bool) bool {
	if _, ok := t.media[id]; !ok {
		return false
	}
	t.media[id] = mediaFlags{video: video, audio: audio}
	return true
}

// SetTyping applies a user-typing event. Events about the local identity are
// ignored.
func (t *Tracker) SetTyping(id string, typing bool) bool {
	if id == t.self {
		return false
	}
	_, was := t.typing[id]
	if typing {
		t.typing[id] = struct{}{}
	} else {
		delete(t.typing, id)
	}
	return was != typing
}

// Typing returns the remote identities currently typing, sorted.
func (t *Tracker) Typing() []string {
	ids := make([]string, 0, len(t.typing))
	for id := range t.typing {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// StartTyping sends typing-start unless one is already outstanding.
func (t *Tracker) StartTyping() error {
	if t.localTyping || t.room == "" {
		return nil
	}
	t.localTyping = true
	return t.sender.Send(protocol.EventTypingStart, protocol.RoomRef{RoomID: t.room, UserID: t.self})
}

// StopTyping sends typing-stop if typing-start was sent.
func (t *Tracker) StopTyping() error {
	if !t.localTyping {
		return nil
	}
	t.localTyping = false
	return t.sender.Send(protocol.EventTypingStop, protocol.RoomRef{RoomID: t.room, UserID: t.self})
}

// Members returns the roster identifiers in relay order.
func (t *Tracker) Members() []string {
	return slices.Clone(t.members)
}

// Others returns the roster minus the local identity.
func (t *Tracker) Others() []string {
	others := make([]string, 0, len(t.members))
	for _, id := range t.members {
		if id != t.self {
			others = append(others, id)
		}
	}
	return others
}

// Contains reports whether id is in the roster.
func (t *Tracker) Contains(id string) bool {
	return slices.Contains(t.members, id)
}

// Participants returns the roster with derived display data.
func (t *Tracker) Participants() []Participant {
	out := make([]Participant, 0, len(t.members))
	for _, id := range t.members {
		flags := t.media[id]
		out = append(out, Participant{
			ID:      id,
			Name:    DisplayName(id),
			Color:   Color(id),
			Online:  true,
			VideoOn: flags.video,
			AudioOn: flags.audio,
			Self:    id == t.self,
		})
	}
	return out
}

// Reset forgets the room and everything learned about it.
func (t *Tracker) Reset() {
	t.room = ""
	t.members = nil
	t.localTyping = false
	clear(t.media)
	clear(t.typing)
}
