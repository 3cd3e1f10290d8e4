package session

import "sync"

// EventType names a session event pushed to subscribers.
type EventType string

const (
	EventTick         EventType = "tick"
	EventSaved        EventType = "saved"
	EventSubmitted    EventType = "submitted"
	EventSubmitFailed EventType = "submit_failed"
	EventExpired      EventType = "expired"
	EventState        EventType = "state"
)

// Event is one notification from a session.
type Event struct {
	Type          EventType `json:"event"`
	TimeRemaining int       `json:"time_remaining"`
	Message       string    `json:"message,omitempty"`
	State         *View     `json:"state,omitempty"`
}

const subscriberBuffer = 32

type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	done bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Event]struct{})}
}

// subscribe returns a channel of events and a func that releases it.
// The channel is closed on release or when the session closes.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// publish never blocks; a slow subscriber misses events.
func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
