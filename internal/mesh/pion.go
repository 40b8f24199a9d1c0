package mesh

import (
	"errors"
	"io"
	"sync"

	"github.com/ChattingLord/roomlink/internal/protocol"
	pion "github.com/pion/webrtc/v4"
)

// PionFactory creates real WebRTC peer connections.
type PionFactory struct {
	Config pion.Configuration
}

// NewConn creates a peer connection, attaches the local tracks, and wires the
// connection callbacks.
func (f *PionFactory) NewConn(peerID string, tracks []pion.TrackLocal, events ConnEvents) (Conn, error) {
	pc, err := pion.NewPeerConnection(f.Config)
	if err != nil {
		return nil, err
	}

	for _, track := range tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, err
		}
		go readRTCP(sender)
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		events.OnCandidate(protocol.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})

	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		events.OnState(connState(s))
	})

	pc.OnTrack(func(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
		rt := &pionTrack{track: track, receiver: receiver}
		go rt.drain()
		events.OnTrack(rt)
	})

	return &pionConn{pc: pc}, nil
}

// readRTCP keeps the sender's interceptors fed until the sender stops.
func readRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func connState(s pion.PeerConnectionState) ConnState {
	switch s {
	case pion.PeerConnectionStateConnected:
		return ConnConnected
	case pion.PeerConnectionStateDisconnected:
		return ConnDisconnected
	case pion.PeerConnectionStateFailed:
		return ConnFailed
	case pion.PeerConnectionStateClosed:
		return ConnClosed
	default:
		return ConnConnecting
	}
}

type pionConn struct {
	pc *pion.PeerConnection
}

func (c *pionConn) CreateOffer() (protocol.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return fromPion(c.pc.LocalDescription()), nil
}

func (c *pionConn) CreateAnswer() (protocol.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return fromPion(c.pc.LocalDescription()), nil
}

func (c *pionConn) SetRemoteDescription(sd protocol.SessionDescription) error {
	return c.pc.SetRemoteDescription(pion.SessionDescription{
		Type: pion.NewSDPType(sd.Type),
		SDP:  sd.SDP,
	})
}

func (c *pionConn) AddICECandidate(ic protocol.ICECandidate) error {
	return c.pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:        ic.Candidate,
		SDPMid:           ic.SDPMid,
		SDPMLineIndex:    ic.SDPMLineIndex,
		UsernameFragment: ic.UsernameFragment,
	})
}

func (c *pionConn) HasLocalOffer() bool {
	return c.pc.SignalingState() == pion.SignalingStateHaveLocalOffer
}

func (c *pionConn) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

func fromPion(sd *pion.SessionDescription) protocol.SessionDescription {
	if sd == nil {
		return protocol.SessionDescription{}
	}
	return protocol.SessionDescription{Type: sd.Type.String(), SDP: sd.SDP}
}

// pionTrack consumes a remote track so its buffers never fill.
type pionTrack struct {
	track    *pion.TrackRemote
	receiver *pion.RTPReceiver
	once     sync.Once
}

func (t *pionTrack) ID() string   { return t.track.ID() }
func (t *pionTrack) Kind() string { return t.track.Kind().String() }

func (t *pionTrack) Stop() error {
	var err error
	t.once.Do(func() { err = t.receiver.Stop() })
	return err
}

func (t *pionTrack) drain() {
	for {
		if _, _, err := t.track.ReadRTP(); err != nil {
			if !errors.Is(err, io.EOF) {
				t.Stop()
			}
			return
		}
	}
}
