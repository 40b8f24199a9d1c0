package session

import (
	"bytes"
	"sync"

	"github.com/ChattingLord/roomlink/internal/mesh"
	"github.com/ChattingLord/roomlink/internal/protocol"
	pion "github.com/pion/webrtc/v4"
)

type sent struct {
	event   string
	payload any
}

// fakeTransport records outbound events and lets a test inject relay events.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sent
	incoming chan *protocol.Message
	once     sync.Once

	// onSend runs after an event is recorded, outside the lock.
	onSend func(event string, payload any)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{incoming: make(chan *protocol.Message, 64)}
}

func (t *fakeTransport) Send(event string, payload any) error {
	t.mu.Lock()
	t.sent = append(t.sent, sent{event: event, payload: payload})
	hook := t.onSend
	t.mu.Unlock()
	if hook != nil {
		hook(event, payload)
	}
	return nil
}

func (t *fakeTransport) Incoming() <-chan *protocol.Message { return t.incoming }

func (t *fakeTransport) Close() {
	t.once.Do(func() { close(t.incoming) })
}

func (t *fakeTransport) push(event string, payload any) {
	msg, err := protocol.BuildMessage(protocol.JSONCodec{}, event, payload)
	if err != nil {
		panic(err)
	}
	t.incoming <- msg
}

func (t *fakeTransport) events(name string) []sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []sent
	for _, s := range t.sent {
		if s.event == name {
			out = append(out, s)
		}
	}
	return out
}

type fakeConn struct {
	mu         sync.Mutex
	localOffer bool
	remote     *protocol.SessionDescription
	candidates []string
	closed     bool
	events     mesh.ConnEvents
}

func (c *fakeConn) CreateOffer() (protocol.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localOffer = true
	return protocol.SessionDescription{Type: "offer", SDP: "offer-sdp"}, nil
}

func (c *fakeConn) CreateAnswer() (protocol.SessionDescription, error) {
	return protocol.SessionDescription{Type: "answer", SDP: "answer-sdp"}, nil
}

func (c *fakeConn) SetRemoteDescription(sd protocol.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = &sd
	if sd.Type == "answer" {
		c.localOffer = false
	}
	return nil
}

func (c *fakeConn) AddICECandidate(ic protocol.ICECandidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, ic.Candidate)
	return nil
}

func (c *fakeConn) HasLocalOffer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localOffer
}

func (c *fakeConn) HasRemoteDescription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote != nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) remoteType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return ""
	}
	return c.remote.Type
}

type fakeFactory struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	err   error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{conns: make(map[string]*fakeConn)}
}

func (f *fakeFactory) NewConn(peerID string, _ []pion.TrackLocal, events mesh.ConnEvents) (mesh.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{events: events}
	f.conns[peerID] = c
	return c, nil
}

func (f *fakeFactory) conn(peerID string) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[peerID]
}

// syncBuffer is a log sink that tests can read while the session writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// recorder collects changes reported to an observer.
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) Notify(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) closed() (SessionClosed, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.changes {
		if sc, ok := c.(SessionClosed); ok {
			return sc, true
		}
	}
	return SessionClosed{}, false
}
