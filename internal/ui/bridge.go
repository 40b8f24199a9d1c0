package ui

import (
	"sync"

	"github.com/ChattingLord/roomlink/internal/session"
	tea "github.com/charmbracelet/bubbletea"
)

// changeMsg carries a session change into the bubbletea loop.
type changeMsg struct {
	change session.Change
}

// Bridge forwards session changes to a running program. Notify never blocks
// the session goroutine; changes are queued and delivered in order.
type Bridge struct {
	mu     sync.Mutex
	queue  []session.Change
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Notify implements session.Observer.
func (b *Bridge) Notify(c session.Change) {
	b.mu.Lock()
	b.queue = append(b.queue, c)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Run delivers queued changes to p until Stop is called.
func (b *Bridge) Run(p *tea.Program) {
	for {
		select {
		case <-b.done:
			return
		case <-b.signal:
		}

		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()

		for _, c := range batch {
			p.Send(changeMsg{change: c})
		}
	}
}

func (b *Bridge) Stop() {
	b.once.Do(func() { close(b.done) })
}
