package mesh

// State is a link's position in the negotiation lifecycle.
type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer is a read-only view of a link.
type Peer struct {
	ID      string
	State   State
	VideoOn bool
	AudioOn bool

	// Tracks counts the remote tracks received so far.
	Tracks int
}

// HasStream reports whether remote media has arrived.
func (p Peer) HasStream() bool { return p.Tracks > 0 }

// link is the manager's record for one remote participant.
type link struct {
	peerID  string
	state   State
	conn    Conn
	tracks  []RemoteTrack
	videoOn bool
	audioOn bool

	// transportUp is set once the connection reports connected.
	transportUp bool
}

func (l *link) view() Peer {
	return Peer{
		ID:      l.peerID,
		State:   l.state,
		VideoOn: l.videoOn,
		AudioOn: l.audioOn,
		Tracks:  len(l.tracks),
	}
}
