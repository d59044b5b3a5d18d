package clock

import "sync"

// Mailbox is an unbounded event queue. Post never blocks, so it is safe to
// use as the post callback of a SceneClock from any goroutine.
type Mailbox struct {
	mu     sync.Mutex
	events []Event
	ready  chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

func (m *Mailbox) Post(ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *Mailbox) Ready() <-chan struct{} { return m.ready }

// Drain returns and clears every queued event in posting order.
func (m *Mailbox) Drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	evs := m.events
	m.events = nil
	return evs
}
