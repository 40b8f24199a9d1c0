package signaling

import (
	"log/slog"
	"sync"

	"github.com/ChattingLord/roomlink/internal/protocol"
)

// Source is anything that yields raw relay messages.
type Source interface {
	Incoming() <-chan *protocol.Message
}

// Handler decodes incoming messages into typed events. Every relay event a
// session cares about arrives on one channel, in relay order.
type Handler struct {
	source Source
	events chan protocol.Event
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewHandler creates a new message handler.
func NewHandler(source Source, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		source: source,
		events: make(chan protocol.Event, incomingBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start decodes messages until the source closes or Close is called. Unknown
// and malformed events are logged and skipped.
func (h *Handler) Start() {
	defer close(h.events)

	for {
		select {
		case msg, ok := <-h.source.Incoming():
			if !ok {
				return
			}

			ev, err := protocol.Decode(msg)
			if err != nil {
				h.logger.Debug("ignoring relay message", slog.String("event", msg.Event), slog.Any("error", err))
				continue
			}

			select {
			case h.events <- ev:
			case <-h.done:
				return
			}

		case <-h.done:
			return
		}
	}
}

// Events returns the decoded event stream. It closes when Start returns.
func (h *Handler) Events() <-chan protocol.Event {
	return h.events
}

// Close stops the handler.
func (h *Handler) Close() {
	h.once.Do(func() { close(h.done) })
}
