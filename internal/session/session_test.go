package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ChattingLord/roomlink/internal/chat"
	"github.com/ChattingLord/roomlink/internal/mesh"
	"github.com/ChattingLord/roomlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func snapshot(room, user string, users ...string) protocol.Snapshot {
	return protocol.Snapshot{RoomID: room, UserID: user, UserCount: len(users), Users: users}
}

// enter starts a session on a fake transport that answers join-room with
// the given roster.
func enter(t *testing.T, users ...string) (*Session, *fakeTransport, *fakeFactory, *recorder) {
	t.Helper()
	return enterWith(t, newFakeFactory(), quiet, users...)
}

func enterWith(t *testing.T, factory *fakeFactory, logger *slog.Logger, users ...string) (*Session, *fakeTransport, *fakeFactory, *recorder) {
	t.Helper()
	tr := newFakeTransport()
	tr.onSend = func(event string, _ any) {
		if event == protocol.EventJoinRoom {
			tr.push(protocol.EventConnect, nil)
			tr.push(protocol.EventRoomJoined, protocol.RoomJoined(snapshot("r1", "alice", users...)))
		}
	}
	rec := &recorder{}

	s := New(Options{
		Dial:        func(context.Context) (Transport, error) { return tr, nil },
		Factory:     factory,
		Observer:    rec,
		MaxFileSize: 8,
		Logger:      logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Enter(ctx, "r1", "alice"))
	t.Cleanup(func() { s.Leave() })
	return s, tr, factory, rec
}

func TestEnterJoinsCallWithMediaOff(t *testing.T) {
	s, tr, _, _ := enter(t, "alice")

	require.Len(t, tr.events(protocol.EventJoinRoom), 1)
	require.Len(t, tr.events(protocol.EventJoinCall), 1)

	states := tr.events(protocol.EventMediaStateChange)
	require.Len(t, states, 1)
	assert.Equal(t, protocol.MediaState{RoomID: "r1", UserID: "alice"}, states[0].payload)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Connected)
	require.Len(t, snap.Participants, 1)
	assert.True(t, snap.Participants[0].Self)
	assert.Empty(t, snap.Messages)
}

func TestEnterValidation(t *testing.T) {
	s := New(Options{Logger: quiet})
	assert.ErrorIs(t, s.Enter(context.Background(), "", "alice"), ErrInvalidRoom)
	assert.ErrorIs(t, s.Leave(), ErrNotEntered)
	assert.ErrorIs(t, s.SendText("hi"), ErrNotEntered)
	assert.Nil(t, s.Media())

	entered, _, _, _ := enter(t, "alice")
	assert.ErrorIs(t, entered.Enter(context.Background(), "r1", "alice"), ErrAlreadyEntered)
}

func TestEnterHonorsContext(t *testing.T) {
	tr := newFakeTransport()
	s := New(Options{
		Dial:    func(context.Context) (Transport, error) { return tr, nil },
		Factory: newFakeFactory(),
		Logger:  quiet,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Enter(ctx, "r1", "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not shut down")
	}
}

func TestExistingMemberCallsNewcomer(t *testing.T) {
	s, tr, factory, _ := enter(t, "alice")

	tr.push(protocol.EventUserJoined, protocol.UserJoined(snapshot("r1", "bob", "alice", "bob")))

	require.Eventually(t, func() bool { return len(tr.events(protocol.EventOffer)) == 1 }, waitFor, tick)
	offer := tr.events(protocol.EventOffer)[0].payload.(protocol.Offer)
	assert.Equal(t, "alice", offer.FromUserID)
	assert.Equal(t, "bob", offer.ToUserID)
	assert.True(t, factory.conn("bob").HasLocalOffer())

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, chat.KindSystem, snap.Messages[0].Kind)
	assert.Equal(t, "Bob joined the room", snap.Messages[0].Text)

	// bob's own join-call must not trigger a second offer while the first is
	// still outstanding.
	tr.push(protocol.EventUserJoinedCall, protocol.UserJoinedCall{RoomID: "r1", UserID: "bob"})
	tr.push(protocol.EventAnswer, protocol.Answer{
		RoomID: "r1", FromUserID: "bob", ToUserID: "alice",
		SDP: protocol.SessionDescription{Type: "answer", SDP: "answer-sdp"},
	})
	require.Eventually(t, func() bool { return factory.conn("bob").remoteType() == "answer" }, waitFor, tick)
	assert.Len(t, tr.events(protocol.EventOffer), 1)
}

func peerState(t *testing.T, s *Session, id string) mesh.State {
	t.Helper()
	snap, err := s.Snapshot()
	require.NoError(t, err)
	for _, p := range snap.Peers {
		if p.ID == id {
			return p.State
		}
	}
	return mesh.StateClosed
}

func TestRejoinedCallRenegotiatesConnectedPeer(t *testing.T) {
	s, tr, factory, _ := enter(t, "alice")
	answer := protocol.Answer{
		RoomID: "r1", FromUserID: "bob", ToUserID: "alice",
		SDP: protocol.SessionDescription{Type: "answer", SDP: "answer-sdp"},
	}

	tr.push(protocol.EventUserJoined, protocol.UserJoined(snapshot("r1", "bob", "alice", "bob")))
	require.Eventually(t, func() bool { return len(tr.events(protocol.EventOffer)) == 1 }, waitFor, tick)
	tr.push(protocol.EventAnswer, answer)
	require.Eventually(t, func() bool { return factory.conn("bob").remoteType() == "answer" }, waitFor, tick)

	factory.conn("bob").events.OnState(mesh.ConnConnected)
	require.Eventually(t, func() bool { return peerState(t, s, "bob") == mesh.StateConnected }, waitFor, tick)

	// Each call rejoin on a connected link renegotiates and settles back.
	for round := 2; round <= 3; round++ {
		tr.push(protocol.EventUserJoinedCall, protocol.UserJoinedCall{RoomID: "r1", UserID: "bob"})
		require.Eventually(t, func() bool { return len(tr.events(protocol.EventOffer)) == round }, waitFor, tick)
		tr.push(protocol.EventAnswer, answer)
		require.Eventually(t, func() bool { return peerState(t, s, "bob") == mesh.StateConnected }, waitFor, tick)
	}
}

func TestFailedCallIsLogged(t *testing.T) {
	factory := newFakeFactory()
	factory.err = errors.New("no ice servers")
	logs := &syncBuffer{}
	_, tr, _, _ := enterWith(t, factory, slog.New(slog.NewTextHandler(logs, nil)), "alice")

	tr.push(protocol.EventUserJoined, protocol.UserJoined(snapshot("r1", "bob", "alice", "bob")))

	require.Eventually(t, func() bool { return strings.Contains(logs.String(), "call failed") }, waitFor, tick)
	assert.Contains(t, logs.String(), "peer=bob")
	assert.Empty(t, tr.events(protocol.EventOffer))
}

func TestNewcomerAnswersOffers(t *testing.T) {
	_, tr, factory, _ := enter(t, "bob", "alice")

	assert.Empty(t, tr.events(protocol.EventOffer))

	tr.push(protocol.EventICECandidate, protocol.Candidate{
		RoomID: "r1", FromUserID: "bob", ToUserID: "alice",
		Candidate: protocol.ICECandidate{Candidate: "early"},
	})
	tr.push(protocol.EventOffer, protocol.Offer{
		RoomID: "r1", FromUserID: "bob", ToUserID: "alice",
		SDP: protocol.SessionDescription{Type: "offer", SDP: "offer-sdp"},
	})

	require.Eventually(t, func() bool { return len(tr.events(protocol.EventAnswer)) == 1 }, waitFor, tick)
	answer := tr.events(protocol.EventAnswer)[0].payload.(protocol.Answer)
	assert.Equal(t, "bob", answer.ToUserID)

	conn := factory.conn("bob")
	conn.mu.Lock()
	assert.Equal(t, []string{"early"}, conn.candidates)
	conn.mu.Unlock()

	// Answering re-broadcasts media flags after the one sent on join.
	require.Eventually(t, func() bool { return len(tr.events(protocol.EventMediaStateChange)) == 2 }, waitFor, tick)
}

func TestToggleBroadcastsEachChange(t *testing.T) {
	s, tr, _, _ := enter(t, "alice")

	on, err := s.ToggleVideo()
	require.NoError(t, err)
	assert.True(t, on)

	on, err = s.ToggleVideo()
	require.NoError(t, err)
	assert.False(t, on)

	states := tr.events(protocol.EventMediaStateChange)
	require.Len(t, states, 3)
	assert.True(t, states[1].payload.(protocol.MediaState).IsVideoOn)
	assert.False(t, states[2].payload.(protocol.MediaState).IsVideoOn)

	on, err = s.ToggleAudio()
	require.NoError(t, err)
	assert.True(t, on)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.False(t, snap.VideoOn)
	assert.True(t, snap.AudioOn)
	assert.True(t, snap.Participants[0].AudioOn)
}

func TestRemoteMediaStateUpdatesRoster(t *testing.T) {
	s, tr, _, _ := enter(t, "alice", "bob")

	tr.push(protocol.EventUserMediaStateChanged, protocol.UserMediaStateChanged{UserID: "bob", IsVideoOn: true})

	require.Eventually(t, func() bool {
		snap, err := s.Snapshot()
		if err != nil {
			return false
		}
		for _, p := range snap.Participants {
			if p.ID == "bob" {
				return p.VideoOn && !p.AudioOn
			}
		}
		return false
	}, waitFor, tick)
}

func TestLeftCallRemovesPeer(t *testing.T) {
	s, tr, factory, rec := enter(t, "alice")

	tr.push(protocol.EventUserJoined, protocol.UserJoined(snapshot("r1", "bob", "alice", "bob")))
	require.Eventually(t, func() bool { return factory.conn("bob") != nil }, waitFor, tick)

	tr.push(protocol.EventUserLeftCall, protocol.UserLeftCall{RoomID: "r1", UserID: "bob"})
	require.Eventually(t, func() bool {
		snap, err := s.Snapshot()
		return err == nil && len(snap.Peers) == 0
	}, waitFor, tick)

	conn := factory.conn("bob")
	conn.mu.Lock()
	assert.True(t, conn.closed)
	conn.mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Contains(t, rec.changes, Change(PeerRemoved{ID: "bob"}))
}

func TestTypingNotSentTwice(t *testing.T) {
	s, tr, _, _ := enter(t, "alice")

	require.NoError(t, s.SetTyping(true))
	require.NoError(t, s.SetTyping(true))
	assert.Len(t, tr.events(protocol.EventTypingStart), 1)

	require.NoError(t, s.SendText("hi"))
	assert.Len(t, tr.events(protocol.EventTypingStop), 1)
	assert.Len(t, tr.events(protocol.EventSendMessage), 1)
}

func TestOversizedAttachmentSendsNothing(t *testing.T) {
	s, tr, _, _ := enter(t, "alice")

	err := s.SendAttachment(&chat.Attachment{Name: "big.bin", Size: 64, Data: make([]byte, 64)})
	assert.ErrorIs(t, err, chat.ErrFileTooLarge)
	assert.Empty(t, tr.events(protocol.EventSendMessage))
}

func TestLeaveIsIdempotent(t *testing.T) {
	s, tr, _, rec := enter(t, "alice", "bob")

	require.NoError(t, s.Leave())
	require.NoError(t, s.Leave())

	assert.Len(t, tr.events(protocol.EventLeaveCall), 1)
	assert.Len(t, tr.events(protocol.EventLeaveRoom), 1)
	assert.ErrorIs(t, s.SendText("late"), ErrClosed)

	closed, ok := rec.closed()
	require.True(t, ok)
	assert.NoError(t, closed.Err)
}

func TestTransportLossClosesSession(t *testing.T) {
	s, tr, _, rec := enter(t, "alice")

	tr.Close()

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not close")
	}

	closed, ok := rec.closed()
	require.True(t, ok)
	assert.ErrorIs(t, closed.Err, ErrDisconnected)
	assert.False(t, s.Connected())
}

var _ mesh.ConnFactory = (*fakeFactory)(nil)
