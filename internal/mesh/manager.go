package mesh

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/ChattingLord/roomlink/internal/protocol"
)

var ErrSelfLink = errors.New("cannot link to self")

// Sender delivers an event to the relay.
type Sender interface {
	Send(event string, payload any) error
}

// Observer is told about every change to the peer set.
type Observer interface {
	PeerChanged(Peer)
	PeerRemoved(id string)
}

// Options configures a Manager.
type Options struct {
	Self    string
	Room    string
	Factory ConnFactory
	Sender  Sender
	Media   *LocalMedia

	// Observer may be nil.
	Observer Observer

	// Post schedules f on the goroutine that owns the Manager. Connection
	// callbacks go through it.
	Post func(f func())

	Logger *slog.Logger
}

// Manager owns one link per remote participant and drives each through
// offer/answer negotiation. It is not safe for concurrent use; every method
// and every posted callback must run on the same goroutine.
type Manager struct {
	self     string
	room     string
	factory  ConnFactory
	sender   Sender
	media    *LocalMedia
	observer Observer
	post     func(func())
	logger   *slog.Logger

	links   map[string]*link
	pending map[string][]protocol.ICECandidate
}

// NewManager creates an empty mesh for one room.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Post == nil {
		opts.Post = func(f func()) { f() }
	}
	return &Manager{
		self:     opts.Self,
		room:     opts.Room,
		factory:  opts.Factory,
		sender:   opts.Sender,
		media:    opts.Media,
		observer: opts.Observer,
		post:     opts.Post,
		logger:   opts.Logger.With(slog.String("room", opts.Room)),
		links:    make(map[string]*link),
		pending:  make(map[string][]protocol.ICECandidate),
	}
}

// Call starts the caller path towards peerID. An existing link is reused and
// renegotiated.
func (m *Manager) Call(peerID string) error {
	if peerID == m.self {
		return ErrSelfLink
	}

	l, err := m.ensure(peerID)
	if err != nil {
		return err
	}

	offer, err := l.conn.CreateOffer()
	if err != nil {
		m.logger.Warn("create offer failed", slog.String("peer", peerID), slog.Any("error", err))
		return fmt.Errorf("offer to %s: %w", peerID, err)
	}

	err = m.sender.Send(protocol.EventOffer, protocol.Offer{
		RoomID:     m.room,
		FromUserID: m.self,
		ToUserID:   peerID,
		SDP:        offer,
	})
	if err != nil {
		return fmt.Errorf("offer to %s: %w", peerID, err)
	}

	m.setState(l, StateNegotiating)
	return nil
}

// HandleOffer runs the callee path: apply the offer, flush queued
// candidates, answer, then re-broadcast local media flags.
func (m *Manager) HandleOffer(ev *protocol.Offer) {
	if !m.addressed(ev.RoomID, ev.ToUserID) || ev.FromUserID == m.self {
		return
	}
	peer := ev.FromUserID
	log := m.logger.With(slog.String("peer", peer))

	l, err := m.ensure(peer)
	if err != nil {
		log.Warn("create connection failed", slog.Any("error", err))
		return
	}

	if err := l.conn.SetRemoteDescription(ev.SDP); err != nil {
		log.Warn("apply offer failed", slog.Any("error", err))
		return
	}
	m.drain(l)

	answer, err := l.conn.CreateAnswer()
	if err != nil {
		log.Warn("create answer failed", slog.Any("error", err))
		return
	}

	if l.state != StateConnected {
		m.setState(l, StateNegotiating)
	}

	if err := m.sender.Send(protocol.EventAnswer, protocol.Answer{
		RoomID:     m.room,
		FromUserID: m.self,
		ToUserID:   peer,
		SDP:        answer,
	}); err != nil {
		log.Warn("send answer failed", slog.Any("error", err))
		return
	}

	if err := m.BroadcastMediaState(); err != nil {
		log.Warn("broadcast media state failed", slog.Any("error", err))
	}
}

// HandleAnswer applies an answer only while an offer of ours is outstanding
// on that link. Anything else is a stray from a collision and is dropped.
func (m *Manager) HandleAnswer(ev *protocol.Answer) {
	if !m.addressed(ev.RoomID, ev.ToUserID) {
		return
	}

	l, ok := m.links[ev.FromUserID]
	if !ok || !l.conn.HasLocalOffer() {
		m.logger.Debug("discarding answer without local offer", slog.String("peer", ev.FromUserID))
		return
	}

	if err := l.conn.SetRemoteDescription(ev.SDP); err != nil {
		m.logger.Warn("apply answer failed", slog.String("peer", ev.FromUserID), slog.Any("error", err))
		return
	}
	m.drain(l)

	// Renegotiating an established transport fires no new connected event.
	if l.transportUp {
		m.setState(l, StateConnected)
	}
}

// HandleCandidate applies a remote candidate, or queues it until the link
// has a remote description. A queue is kept even when no link exists yet.
func (m *Manager) HandleCandidate(ev *protocol.Candidate) {
	if !m.addressed(ev.RoomID, ev.ToUserID) {
		return
	}

	l, ok := m.links[ev.FromUserID]
	if !ok || !l.conn.HasRemoteDescription() {
		m.pending[ev.FromUserID] = append(m.pending[ev.FromUserID], ev.Candidate)
		return
	}

	if err := l.conn.AddICECandidate(ev.Candidate); err != nil {
		m.logger.Warn("add candidate failed", slog.String("peer", ev.FromUserID), slog.Any("error", err))
	}
}

// HandleMediaState records a peer's advertised media flags. Flags change only
// through these events, never through track arrival.
func (m *Manager) HandleMediaState(ev *protocol.UserMediaStateChanged) {
	l, ok := m.links[ev.UserID]
	if !ok {
		return
	}
	l.videoOn, l.audioOn = ev.IsVideoOn, ev.IsAudioOn
	m.changed(l)
}

// SyncRoster tears down links to identities no longer in members.
func (m *Manager) SyncRoster(members []string) {
	for id := range m.links {
		if !slices.Contains(members, id) {
			m.Remove(id)
		}
	}
	for id := range m.pending {
		if !slices.Contains(members, id) {
			delete(m.pending, id)
		}
	}
}

// Remove closes the link to peerID, stops its remote tracks, and forgets any
// queued candidates. Removing an absent peer does nothing.
func (m *Manager) Remove(peerID string) bool {
	delete(m.pending, peerID)

	l, ok := m.links[peerID]
	if !ok {
		return false
	}
	delete(m.links, peerID)
	l.state = StateClosed

	for _, t := range l.tracks {
		if err := t.Stop(); err != nil {
			m.logger.Debug("stop remote track failed", slog.String("peer", peerID), slog.Any("error", err))
		}
	}
	if err := l.conn.Close(); err != nil {
		m.logger.Debug("close connection failed", slog.String("peer", peerID), slog.Any("error", err))
	}

	m.logger.Info("peer removed", slog.String("peer", peerID))
	if m.observer != nil {
		m.observer.PeerRemoved(peerID)
	}
	return true
}

// CloseAll removes every link.
func (m *Manager) CloseAll() {
	for id := range m.links {
		m.Remove(id)
	}
	clear(m.pending)
}

// Peers returns every link, sorted by identifier.
func (m *Manager) Peers() []Peer {
	peers := make([]Peer, 0, len(m.links))
	for _, l := range m.links {
		peers = append(peers, l.view())
	}
	slices.SortFunc(peers, func(a, b Peer) int { return strings.Compare(a.ID, b.ID) })
	return peers
}

// Peer returns the link to id.
func (m *Manager) Peer(id string) (Peer, bool) {
	l, ok := m.links[id]
	if !ok {
		return Peer{}, false
	}
	return l.view(), true
}

// Pending returns how many candidates are queued for id.
func (m *Manager) Pending(id string) int {
	return len(m.pending[id])
}

// BroadcastMediaState sends the local video/audio pair to the room.
func (m *Manager) BroadcastMediaState() error {
	video, audio := m.media.Enabled()
	return m.sender.Send(protocol.EventMediaStateChange, protocol.MediaState{
		RoomID:    m.room,
		UserID:    m.self,
		IsVideoOn: video,
		IsAudioOn: audio,
	})
}

// ensure returns the link to peerID, creating its connection if needed.
func (m *Manager) ensure(peerID string) (*link, error) {
	if l, ok := m.links[peerID]; ok {
		return l, nil
	}

	l := &link{peerID: peerID, state: StateNew}
	conn, err := m.factory.NewConn(peerID, m.media.Tracks(), m.events(l))
	if err != nil {
		return nil, fmt.Errorf("connection to %s: %w", peerID, err)
	}
	l.conn = conn
	m.links[peerID] = l

	m.logger.Debug("peer link created", slog.String("peer", peerID))
	m.changed(l)
	return l, nil
}

// events builds callbacks that hop onto the owner goroutine and ignore
// anything fired after the link was replaced or removed.
func (m *Manager) events(l *link) ConnEvents {
	current := func() bool { return m.links[l.peerID] == l }

	return ConnEvents{
		OnCandidate: func(c protocol.ICECandidate) {
			m.post(func() {
				if !current() {
					return
				}
				err := m.sender.Send(protocol.EventICECandidate, protocol.Candidate{
					RoomID:     m.room,
					FromUserID: m.self,
					ToUserID:   l.peerID,
					Candidate:  c,
				})
				if err != nil {
					m.logger.Debug("send candidate failed", slog.String("peer", l.peerID), slog.Any("error", err))
				}
			})
		},
		OnState: func(s ConnState) {
			m.post(func() {
				if !current() {
					return
				}
				m.logger.Debug("connection state", slog.String("peer", l.peerID), slog.String("state", s.String()))
				switch s {
				case ConnConnected:
					l.transportUp = true
					m.setState(l, StateConnected)
				case ConnDisconnected, ConnFailed:
					m.Remove(l.peerID)
				}
			})
		},
		OnTrack: func(t RemoteTrack) {
			m.post(func() {
				if !current() {
					t.Stop()
					return
				}
				l.tracks = append(l.tracks, t)
				m.changed(l)
			})
		},
	}
}

// drain applies candidates queued for the link exactly once, in arrival
// order.
func (m *Manager) drain(l *link) {
	queued := m.pending[l.peerID]
	delete(m.pending, l.peerID)

	for _, c := range queued {
		if err := l.conn.AddICECandidate(c); err != nil {
			m.logger.Warn("add queued candidate failed", slog.String("peer", l.peerID), slog.Any("error", err))
		}
	}
}

func (m *Manager) addressed(room, to string) bool {
	return room == m.room && to == m.self
}

func (m *Manager) setState(l *link, s State) {
	if l.state == s {
		return
	}
	l.state = s
	m.changed(l)
}

func (m *Manager) changed(l *link) {
	if m.observer != nil {
		m.observer.PeerChanged(l.view())
	}
}
