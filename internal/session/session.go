package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ChattingLord/roomlink/internal/chat"
	"github.com/ChattingLord/roomlink/internal/mesh"
	"github.com/ChattingLord/roomlink/internal/presence"
	"github.com/ChattingLord/roomlink/internal/protocol"
	"github.com/ChattingLord/roomlink/internal/signaling"
)

// Transport is the session-scoped connection to the relay.
type Transport interface {
	Send(event string, payload any) error
	Incoming() <-chan *protocol.Message
	Close()
}

// DialFunc opens a fresh transport for one session.
type DialFunc func(ctx context.Context) (Transport, error)

// Options configures a Session.
type Options struct {
	Dial        DialFunc
	Factory     mesh.ConnFactory
	Observer    Observer
	MaxFileSize int64
	Logger      *slog.Logger
}

// Snapshot is a point-in-time copy of everything the session knows.
type Snapshot struct {
	Room         string
	Self         string
	Connected    bool
	Participants []presence.Participant
	Messages     []chat.Message
	Typing       []string
	Peers        []mesh.Peer
	VideoOn      bool
	AudioOn      bool
}

// Session binds one identity to one room. All state is owned by a single
// goroutine; public methods hand work to it and wait for the result. A
// Session enters at most once; build a new one to enter again.
type Session struct {
	opts   Options
	logger *slog.Logger

	box       *mailbox
	entered   atomic.Bool
	connected atomic.Bool
	loopDone  chan struct{}
	joined    chan struct{}
	joinOnce  sync.Once

	// Owned by the loop goroutine once Enter starts it.
	self      string
	room      string
	transport Transport
	handler   *signaling.Handler
	tracker   *presence.Tracker
	chat      *chat.Relay
	mesh      *mesh.Manager
	media     *mesh.LocalMedia
	timeline  chat.Timeline
	finished  bool
	closeErr  error
}

// New creates a session that has not entered any room.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		opts:     opts,
		logger:   opts.Logger,
		box:      newMailbox(),
		loopDone: make(chan struct{}),
		joined:   make(chan struct{}),
	}
}

// Enter opens the transport, joins room as identity, and waits for the
// relay's roster. Once joined it announces call membership with both media
// flags off.
func (s *Session) Enter(ctx context.Context, room, identity string) error {
	if room == "" || identity == "" {
		return NewError("enter room", ErrInvalidRoom)
	}
	if !s.entered.CompareAndSwap(false, true) {
		return NewError("enter room", ErrAlreadyEntered)
	}

	transport, err := s.opts.Dial(ctx)
	if err != nil {
		close(s.loopDone)
		return NewError("connect to relay", err)
	}

	media, err := mesh.NewLocalMedia(identity)
	if err != nil {
		transport.Close()
		close(s.loopDone)
		return NewError("create local media", err)
	}

	s.self, s.room = identity, room
	s.logger = s.logger.With(slog.String("room", room), slog.String("self", identity))
	s.transport = transport
	s.media = media
	s.tracker = presence.NewTracker(identity, transport)
	s.chat = chat.NewRelay(identity, transport, s.opts.MaxFileSize)
	s.mesh = mesh.NewManager(mesh.Options{
		Self:     identity,
		Room:     room,
		Factory:  s.opts.Factory,
		Sender:   transport,
		Media:    media,
		Observer: meshObserver{s},
		Post:     func(f func()) { s.box.post(f) },
		Logger:   s.logger,
	})
	s.handler = signaling.NewHandler(transport, s.logger)

	if err := s.tracker.Join(room); err != nil {
		s.handler.Close()
		transport.Close()
		close(s.loopDone)
		return NewError("join room", err)
	}

	go s.handler.Start()
	go s.loop()

	select {
	case <-s.joined:
		return nil
	case <-ctx.Done():
		s.Leave()
		return NewError("join room", ctx.Err())
	case <-s.loopDone:
		err := s.closeErr
		if err == nil {
			err = ErrClosed
		}
		return NewError("join room", err)
	}
}

// Leave announces departure, closes every peer link, stops local media, and
// clears roster and timeline. It is safe to call more than once.
func (s *Session) Leave() error {
	if !s.entered.Load() {
		return ErrNotEntered
	}

	err := s.do(func() error {
		s.stopTyping()
		var errs []error
		errs = append(errs, s.transport.Send(protocol.EventLeaveCall, s.ref()))
		errs = append(errs, s.tracker.Leave())
		s.teardown(nil)
		return errors.Join(errs...)
	})
	<-s.loopDone

	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.loopDone
}

// SendText sends a chat message. The message shows up in the timeline when
// the relay echoes it back.
func (s *Session) SendText(text string) error {
	return s.do(func() error {
		s.stopTyping()
		return s.chat.SendText(s.room, text)
	})
}

// SendFile reads a file from disk and sends it as an attachment.
func (s *Session) SendFile(path string) error {
	a, err := chat.LoadAttachment(path, s.opts.MaxFileSize)
	if err != nil {
		return NewError("load attachment", err)
	}
	return s.SendAttachment(a)
}

// SendAttachment sends an in-memory attachment.
func (s *Session) SendAttachment(a *chat.Attachment) error {
	return s.do(func() error {
		return s.chat.SendFile(s.room, a)
	})
}

// ToggleVideo flips local video and broadcasts the new pair. It returns the
// new video flag.
func (s *Session) ToggleVideo() (bool, error) {
	var on bool
	err := s.do(func() error {
		video, _ := s.media.Enabled()
		s.media.SetVideo(!video)
		on = !video
		return s.mediaChanged()
	})
	return on, err
}

// ToggleAudio flips local audio and broadcasts the new pair. It returns the
// new audio flag.
func (s *Session) ToggleAudio() (bool, error) {
	var on bool
	err := s.do(func() error {
		_, audio := s.media.Enabled()
		s.media.SetAudio(!audio)
		on = !audio
		return s.mediaChanged()
	})
	return on, err
}

// SetTyping reports local typing activity to the room.
func (s *Session) SetTyping(typing bool) error {
	return s.do(func() error {
		if typing {
			return s.tracker.StartTyping()
		}
		return s.tracker.StopTyping()
	})
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		video, audio := s.media.Enabled()
		snap = Snapshot{
			Room:         s.room,
			Self:         s.self,
			Connected:    s.connected.Load(),
			Participants: s.tracker.Participants(),
			Messages:     s.timeline.Messages(),
			Typing:       s.tracker.Typing(),
			Peers:        s.mesh.Peers(),
			VideoOn:      video,
			AudioOn:      audio,
		}
		return nil
	})
	return snap, err
}

// Connected reports whether the relay connection is up.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Media returns the local capture shared by all peers, or nil before Enter.
func (s *Session) Media() *mesh.LocalMedia {
	if !s.entered.Load() {
		return nil
	}
	return s.media
}

// do runs fn on the session goroutine and waits for it.
func (s *Session) do(fn func() error) error {
	if !s.entered.Load() {
		return ErrNotEntered
	}

	res := make(chan error, 1)
	if !s.box.post(func() { res <- fn() }) {
		return ErrClosed
	}

	select {
	case err := <-res:
		return err
	case <-s.loopDone:
		select {
		case err := <-res:
			return err
		default:
			return ErrClosed
		}
	}
}

func (s *Session) loop() {
	defer close(s.loopDone)

	events := s.handler.Events()
	for !s.finished {
		select {
		case ev, ok := <-events:
			if !ok {
				s.teardown(s.transportErr())
				return
			}
			s.dispatch(ev)

		case <-s.box.signal:
			for _, f := range s.box.take() {
				f()
				if s.finished {
					return
				}
			}
		}
	}
}

func (s *Session) call(id string) {
	if err := s.mesh.Call(id); err != nil {
		s.logger.Warn("call failed", slog.String("peer", id), slog.Any("error", err))
	}
}

// dispatch is the single handler for every relay event.
func (s *Session) dispatch(ev protocol.Event) {
	switch ev := ev.(type) {
	case *protocol.Connectivity:
		s.connected.Store(ev.Connected)
		s.notify(ConnectivityChanged{Connected: ev.Connected})

	case *protocol.RoomJoined:
		if _, ok := s.applyRoster(ev); ok {
			s.onJoined()
		}

	case *protocol.UserJoined:
		tr, ok := s.applyRoster(ev)
		if !ok || tr.Subject == s.self {
			return
		}
		for _, id := range tr.Added {
			if id != s.self {
				s.call(id)
			}
		}
		if err := s.mesh.BroadcastMediaState(); err != nil {
			s.logger.Debug("broadcast media state failed", slog.Any("error", err))
		}

	case *protocol.UserLeft:
		s.applyRoster(ev)

	case *protocol.NewMessage:
		msg, err := s.chat.Receive(s.room, ev)
		if err != nil {
			s.logger.Debug("dropping chat message", slog.String("from", ev.UserID), slog.Any("error", err))
			return
		}
		s.appendMessage(msg)

	case *protocol.UserTyping:
		if s.tracker.SetTyping(ev.UserID, ev.IsTyping) {
			s.notify(TypingChanged{Typing: s.tracker.Typing()})
		}

	case *protocol.UserJoinedCall:
		if ev.RoomID != s.room || ev.UserID == s.self || !s.tracker.Contains(ev.UserID) {
			return
		}
		// A link still negotiating from user-joined keeps its offer.
		if p, ok := s.mesh.Peer(ev.UserID); !ok || p.State != mesh.StateNegotiating {
			s.call(ev.UserID)
		}

	case *protocol.UserLeftCall:
		if ev.RoomID == s.room {
			s.mesh.Remove(ev.UserID)
		}

	case *protocol.UserMediaStateChanged:
		if ev.UserID == s.self {
			return
		}
		if s.tracker.SetMediaState(ev.UserID, ev.IsVideoOn, ev.IsAudioOn) {
			s.notify(RosterChanged{Participants: s.tracker.Participants()})
		}
		s.mesh.HandleMediaState(ev)

	case *protocol.Offer:
		s.mesh.HandleOffer(ev)

	case *protocol.Answer:
		s.mesh.HandleAnswer(ev)

	case *protocol.Candidate:
		s.mesh.HandleCandidate(ev)

	case *protocol.ErrorPayload:
		s.logger.Warn("relay error", slog.String("message", ev.Message))
		s.notify(RelayError{Message: ev.Message})
	}
}

func (s *Session) applyRoster(ev protocol.Event) (presence.Transition, bool) {
	tr, ok := s.tracker.Apply(ev)
	if !ok {
		return tr, false
	}

	if tr.Notice != "" {
		s.appendMessage(chat.NewSystemMessage(s.room, tr.Notice))
	}
	s.mesh.SyncRoster(s.tracker.Members())
	s.notify(RosterChanged{Participants: s.tracker.Participants()})
	return tr, true
}

// onJoined joins the call once the first roster arrives. Existing members
// call the newcomer, so nothing is offered from here.
func (s *Session) onJoined() {
	first := false
	s.joinOnce.Do(func() { first = true })
	if !first {
		return
	}

	if err := s.transport.Send(protocol.EventJoinCall, s.ref()); err != nil {
		s.logger.Warn("join call failed", slog.Any("error", err))
	}
	if err := s.mesh.BroadcastMediaState(); err != nil {
		s.logger.Warn("broadcast media state failed", slog.Any("error", err))
	}
	close(s.joined)
}

func (s *Session) mediaChanged() error {
	video, audio := s.media.Enabled()
	if s.tracker.SetMediaState(s.self, video, audio) {
		s.notify(RosterChanged{Participants: s.tracker.Participants()})
	}
	return s.mesh.BroadcastMediaState()
}

func (s *Session) appendMessage(m chat.Message) {
	s.timeline.Append(m)
	s.notify(MessageAdded{Message: m})
}

func (s *Session) stopTyping() {
	if err := s.tracker.StopTyping(); err != nil {
		s.logger.Debug("typing stop failed", slog.Any("error", err))
	}
}

// teardown releases everything in one pass. It runs at most once.
func (s *Session) teardown(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.closeErr = err

	s.mesh.CloseAll()
	s.media.Stop()
	s.tracker.Reset()
	s.timeline.Clear()
	s.handler.Close()
	s.transport.Close()
	s.box.close()
	s.connected.Store(false)

	if err != nil {
		s.logger.Warn("session closed", slog.Any("error", err))
	} else {
		s.logger.Info("left room")
	}
	s.notify(SessionClosed{Err: err})
}

func (s *Session) transportErr() error {
	if t, ok := s.transport.(interface{ Err() error }); ok {
		if err := t.Err(); err != nil {
			return err
		}
	}
	return ErrDisconnected
}

func (s *Session) ref() protocol.RoomRef {
	return protocol.RoomRef{RoomID: s.room, UserID: s.self}
}

func (s *Session) notify(c Change) {
	if s.opts.Observer != nil {
		s.opts.Observer.Notify(c)
	}
}
