package session

import (
	"github.com/ChattingLord/roomlink/internal/chat"
	"github.com/ChattingLord/roomlink/internal/mesh"
	"github.com/ChattingLord/roomlink/internal/presence"
)

// Change is a notification about session state. Observers switch on the
// concrete type.
type Change interface {
	change()
}

type RosterChanged struct {
	Participants []presence.Participant
}

type MessageAdded struct {
	Message chat.Message
}

type TypingChanged struct {
	Typing []string
}

type PeerChanged struct {
	Peer mesh.Peer
}

type PeerRemoved struct {
	ID string
}

type ConnectivityChanged struct {
	Connected bool
}

// RelayError carries an error event sent by the relay.
type RelayError struct {
	Message string
}

// SessionClosed is the last change a session reports. Err is nil after an
// explicit Leave.
type SessionClosed struct {
	Err error
}

func (RosterChanged) change()       {}
func (MessageAdded) change()        {}
func (TypingChanged) change()       {}
func (PeerChanged) change()         {}
func (PeerRemoved) change()         {}
func (ConnectivityChanged) change() {}
func (RelayError) change()          {}
func (SessionClosed) change()       {}

// Observer receives changes on the session goroutine. Implementations must
// not block and must not call back into the session synchronously.
type Observer interface {
	Notify(Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

func (f ObserverFunc) Notify(c Change) { f(c) }

// meshObserver forwards peer changes from the mesh manager.
type meshObserver struct{ s *Session }

func (o meshObserver) PeerChanged(p mesh.Peer) { o.s.notify(PeerChanged{Peer: p}) }
func (o meshObserver) PeerRemoved(id string)   { o.s.notify(PeerRemoved{ID: id}) }
