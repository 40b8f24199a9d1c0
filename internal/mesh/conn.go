package mesh

import (
	"github.com/ChattingLord/roomlink/internal/protocol"
	pion "github.com/pion/webrtc/v4"
)

// ConnState is the transport state reported by a connection.
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnConnected
	ConnDisconnected
	ConnFailed
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one negotiated connection to a remote participant. Methods are
// only called from the session loop.
type Conn interface {
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (protocol.SessionDescription, error)

	// CreateAnswer creates an answer and applies it as the local description.
	CreateAnswer() (protocol.SessionDescription, error)

	SetRemoteDescription(protocol.SessionDescription) error
	AddICECandidate(protocol.ICECandidate) error

	// HasLocalOffer reports whether an offer of ours is awaiting an answer.
	HasLocalOffer() bool
	HasRemoteDescription() bool

	Close() error
}

// RemoteTrack is a media track received from a peer.
type RemoteTrack interface {
	ID() string
	Kind() string
	Stop() error
}

// ConnEvents are callbacks a connection fires. They may run on any goroutine.
type ConnEvents struct {
	OnCandidate func(protocol.ICECandidate)
	OnState     func(ConnState)
	OnTrack     func(RemoteTrack)
}

// ConnFactory creates a connection with the given local tracks attached.
type ConnFactory interface {
	NewConn(peerID string, tracks []pion.TrackLocal, events ConnEvents) (Conn, error)
}
