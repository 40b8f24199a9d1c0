package mesh

import (
	"errors"
	"testing"

	"github.com/ChattingLord/roomlink/internal/protocol"
	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	localOffer bool
	remote     *protocol.SessionDescription
	applied    []string
	closed     int
	events     ConnEvents
	tracks     int

	failRemote bool
	failOffer  bool
}

func (c *fakeConn) CreateOffer() (protocol.SessionDescription, error) {
	if c.failOffer {
		return protocol.SessionDescription{}, errors.New("no ice agent")
	}
	c.localOffer = true
	return protocol.SessionDescription{Type: "offer", SDP: "offer-sdp"}, nil
}

func (c *fakeConn) CreateAnswer() (protocol.SessionDescription, error) {
	return protocol.SessionDescription{Type: "answer", SDP: "answer-sdp"}, nil
}

func (c *fakeConn) SetRemoteDescription(sd protocol.SessionDescription) error {
	if c.failRemote {
		return errors.New("malformed sdp")
	}
	c.remote = &sd
	if sd.Type == "answer" {
		c.localOffer = false
	}
	return nil
}

func (c *fakeConn) AddICECandidate(ic protocol.ICECandidate) error {
	c.applied = append(c.applied, ic.Candidate)
	return nil
}

func (c *fakeConn) HasLocalOffer() bool        { return c.localOffer }
func (c *fakeConn) HasRemoteDescription() bool { return c.remote != nil }

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

type fakeFactory struct {
	conns     map[string]*fakeConn
	failOffer bool
}

func (f *fakeFactory) NewConn(peerID string, tracks []pion.TrackLocal, events ConnEvents) (Conn, error) {
	c := &fakeConn{events: events, tracks: len(tracks), failOffer: f.failOffer}
	f.conns[peerID] = c
	return c, nil
}

type fakeTrack struct{ stopped int }

func (t *fakeTrack) ID() string   { return "video" }
func (t *fakeTrack) Kind() string { return "video" }
func (t *fakeTrack) Stop() error {
	t.stopped++
	return nil
}

type recorder struct {
	events   []string
	payloads []any
	err      error
}

func (r *recorder) Send(event string, payload any) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type observer struct {
	changed []Peer
	removed []string
}

func (o *observer) PeerChanged(p Peer)    { o.changed = append(o.changed, p) }
func (o *observer) PeerRemoved(id string) { o.removed = append(o.removed, id) }

type fixture struct {
	m       *Manager
	factory *fakeFactory
	sent    *recorder
	obs     *observer
	media   *LocalMedia
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	media, err := NewLocalMedia("alice")
	require.NoError(t, err)

	f := &fixture{
		factory: &fakeFactory{conns: map[string]*fakeConn{}},
		sent:    &recorder{},
		obs:     &observer{},
		media:   media,
	}
	f.m = NewManager(Options{
		Self:     "alice",
		Room:     "r1",
		Factory:  f.factory,
		Sender:   f.sent,
		Media:    media,
		Observer: f.obs,
	})
	return f
}

func candidate(from, c string) *protocol.Candidate {
	return &protocol.Candidate{RoomID: "r1", FromUserID: from, ToUserID: "alice", Candidate: protocol.ICECandidate{Candidate: c}}
}

func offer(from string) *protocol.Offer {
	return &protocol.Offer{RoomID: "r1", FromUserID: from, ToUserID: "alice", SDP: protocol.SessionDescription{Type: "offer", SDP: "remote-offer"}}
}

func answer(from string) *protocol.Answer {
	return &protocol.Answer{RoomID: "r1", FromUserID: from, ToUserID: "alice", SDP: protocol.SessionDescription{Type: "answer", SDP: "remote-answer"}}
}

func TestCallSendsAddressedOffer(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.m.Call("bob"))

	require.Equal(t, []string{protocol.EventOffer}, f.sent.events)
	o := f.sent.payloads[0].(protocol.Offer)
	assert.Equal(t, "bob", o.ToUserID)
	assert.Equal(t, "alice", o.FromUserID)
	assert.Equal(t, "r1", o.RoomID)
	assert.Equal(t, "offer", o.SDP.Type)

	p, ok := f.m.Peer("bob")
	require.True(t, ok)
	assert.Equal(t, StateNegotiating, p.State)
	assert.Equal(t, 2, f.factory.conns["bob"].tracks)

	assert.ErrorIs(t, f.m.Call("alice"), ErrSelfLink)
}

func TestCallReusesLink(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.m.Call("bob"))
	first := f.factory.conns["bob"]
	require.NoError(t, f.m.Call("bob"))

	assert.Same(t, first, f.factory.conns["bob"])
	assert.Len(t, f.m.Peers(), 1)
	assert.Equal(t, 2, f.sent.count(protocol.EventOffer))
}

func TestCalleeAnswersThenBroadcastsMedia(t *testing.T) {
	f := newFixture(t)
	f.media.SetVideo(true)

	f.m.HandleOffer(offer("bob"))

	assert.Equal(t, []string{protocol.EventAnswer, protocol.EventMediaStateChange}, f.sent.events)
	a := f.sent.payloads[0].(protocol.Answer)
	assert.Equal(t, "bob", a.ToUserID)
	ms := f.sent.payloads[1].(protocol.MediaState)
	assert.True(t, ms.IsVideoOn)
	assert.False(t, ms.IsAudioOn)
}

func TestEarlyCandidatesApplyOnceInOrder(t *testing.T) {
	f := newFixture(t)

	// Candidates arrive before any link exists.
	f.m.HandleCandidate(candidate("bob", "c1"))
	f.m.HandleCandidate(candidate("bob", "c2"))
	assert.Equal(t, 2, f.m.Pending("bob"))

	f.m.HandleOffer(offer("bob"))
	conn := f.factory.conns["bob"]
	assert.Equal(t, []string{"c1", "c2"}, conn.applied)
	assert.Zero(t, f.m.Pending("bob"))

	f.m.HandleCandidate(candidate("bob", "c3"))
	assert.Equal(t, []string{"c1", "c2", "c3"}, conn.applied)
}

func TestCandidatesQueueUntilAnswer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Call("bob"))
	conn := f.factory.conns["bob"]

	f.m.HandleCandidate(candidate("bob", "c1"))
	assert.Empty(t, conn.applied)

	f.m.HandleAnswer(answer("bob"))
	assert.Equal(t, []string{"c1"}, conn.applied)
	assert.Zero(t, f.m.Pending("bob"))
}

func TestStrayAnswerIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.m.HandleOffer(offer("bob"))
	conn := f.factory.conns["bob"]
	before := *conn.remote

	f.m.HandleAnswer(answer("bob"))
	assert.Equal(t, before, *conn.remote)

	// No link at all.
	f.m.HandleAnswer(answer("carol"))
	_, ok := f.m.Peer("carol")
	assert.False(t, ok)
}

func TestForeignSignalingIgnored(t *testing.T) {
	f := newFixture(t)

	f.m.HandleOffer(&protocol.Offer{RoomID: "r1", FromUserID: "bob", ToUserID: "carol"})
	f.m.HandleOffer(&protocol.Offer{RoomID: "r2", FromUserID: "bob", ToUserID: "alice"})
	f.m.HandleCandidate(&protocol.Candidate{RoomID: "r2", FromUserID: "bob", ToUserID: "alice"})

	assert.Empty(t, f.m.Peers())
	assert.Empty(t, f.sent.events)
	assert.Zero(t, f.m.Pending("bob"))
}

func TestFailedAnswerKeepsLink(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Call("bob"))
	f.factory.conns["bob"].failRemote = true

	f.m.HandleAnswer(answer("bob"))

	_, ok := f.m.Peer("bob")
	assert.True(t, ok)
	assert.Zero(t, f.factory.conns["bob"].closed)
}

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.m.HandleOffer(offer("bob"))
	conn := f.factory.conns["bob"]

	track := &fakeTrack{}
	conn.events.OnTrack(track)

	assert.True(t, f.m.Remove("bob"))
	assert.False(t, f.m.Remove("bob"))

	assert.Equal(t, 1, conn.closed)
	assert.Equal(t, 1, track.stopped)
	assert.Equal(t, []string{"bob"}, f.obs.removed)
}

func TestConnectionStateDrivesLifecycle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Call("bob"))
	conn := f.factory.conns["bob"]

	conn.events.OnState(ConnConnected)
	p, _ := f.m.Peer("bob")
	assert.Equal(t, StateConnected, p.State)

	conn.events.OnState(ConnFailed)
	_, ok := f.m.Peer("bob")
	assert.False(t, ok)
	assert.Equal(t, 1, conn.closed)

	// Late callbacks from the closed connection change nothing.
	conn.events.OnState(ConnDisconnected)
	conn.events.OnCandidate(protocol.ICECandidate{Candidate: "late"})
	assert.Equal(t, 1, conn.closed)
	assert.Zero(t, f.sent.count(protocol.EventICECandidate))
}

func TestRenegotiationReturnsToConnected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Call("bob"))
	conn := f.factory.conns["bob"]
	f.m.HandleAnswer(answer("bob"))
	conn.events.OnState(ConnConnected)

	require.NoError(t, f.m.Call("bob"))
	p, _ := f.m.Peer("bob")
	assert.Equal(t, StateNegotiating, p.State)

	f.m.HandleAnswer(answer("bob"))
	p, _ = f.m.Peer("bob")
	assert.Equal(t, StateConnected, p.State)
	assert.False(t, conn.HasLocalOffer())
}

func TestFirstAnswerWaitsForTransport(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Call("bob"))

	f.m.HandleAnswer(answer("bob"))

	p, _ := f.m.Peer("bob")
	assert.Equal(t, StateNegotiating, p.State)
}

func TestFailedOfferLeavesLinkNew(t *testing.T) {
	f := newFixture(t)
	f.factory.failOffer = true

	require.Error(t, f.m.Call("bob"))
	p, ok := f.m.Peer("bob")
	require.True(t, ok)
	assert.Equal(t, StateNew, p.State)

	f.factory.conns["bob"].failOffer = false
	f.sent.err = errors.New("relay gone")
	require.Error(t, f.m.Call("bob"))
	p, _ = f.m.Peer("bob")
	assert.Equal(t, StateNew, p.State)

	f.sent.err = nil
	require.NoError(t, f.m.Call("bob"))
	p, _ = f.m.Peer("bob")
	assert.Equal(t, StateNegotiating, p.State)
	assert.Equal(t, 1, f.sent.count(protocol.EventOffer))
}

func TestLocalCandidatesAreAddressed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Call("bob"))

	f.factory.conns["bob"].events.OnCandidate(protocol.ICECandidate{Candidate: "local"})

	require.Equal(t, 1, f.sent.count(protocol.EventICECandidate))
	c := f.sent.payloads[len(f.sent.payloads)-1].(protocol.Candidate)
	assert.Equal(t, "bob", c.ToUserID)
	assert.Equal(t, "local", c.Candidate.Candidate)
}

func TestTrackArrivalKeepsMediaFlags(t *testing.T) {
	f := newFixture(t)
	f.m.HandleOffer(offer("bob"))

	f.factory.conns["bob"].events.OnTrack(&fakeTrack{})

	p, _ := f.m.Peer("bob")
	assert.True(t, p.HasStream())
	assert.False(t, p.VideoOn)
	assert.False(t, p.AudioOn)

	f.m.HandleMediaState(&protocol.UserMediaStateChanged{UserID: "bob", IsVideoOn: true})
	p, _ = f.m.Peer("bob")
	assert.True(t, p.VideoOn)
}

func TestSyncRosterRemovesDeparted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Call("bob"))
	require.NoError(t, f.m.Call("carol"))
	f.m.HandleCandidate(candidate("dave", "c1"))

	f.m.SyncRoster([]string{"alice", "carol"})

	peers := f.m.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "carol", peers[0].ID)
	assert.Zero(t, f.m.Pending("dave"))
	assert.Equal(t, 1, f.factory.conns["bob"].closed)
}

func TestCloseAll(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Call("bob"))
	require.NoError(t, f.m.Call("carol"))

	f.m.CloseAll()

	assert.Empty(t, f.m.Peers())
	assert.Equal(t, 1, f.factory.conns["bob"].closed)
	assert.Equal(t, 1, f.factory.conns["carol"].closed)
}
