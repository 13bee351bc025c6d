// Package notify fans client events out to whatever view is rendering them.
package notify

import (
	"sync"

	"github.com/charlhhhh/Openhouse/internal/profile"
)

// Kind identifies the payload carried by an Event.
type Kind int

const (
	KindNotice Kind = iota
	KindStateChanged
	KindPartnerFound
)

// Level of a transient notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a single message on the bus. Only the fields matching Kind are set.
type Event struct {
	Kind    Kind
	Level   Level
	Message string
	From    string
	To      string
	Partner *profile.MatchedPartner
}

// Notice builds a transient user-visible notice.
func Notice(level Level, msg string) Event {
	return Event{Kind: KindNotice, Level: level, Message: msg}
}

// Bus is a typed publish/subscribe hub.
type Bus struct {
	subscribers map[chan Event]bool
	mu          sync.RWMutex
	buffer      int
}

// NewBus creates a bus whose subscriber channels hold up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		subscribers: make(map[chan Event]bool),
		buffer:      buffer,
	}
}

// Subscribe returns a channel of events and a cleanup function that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	b.subscribers[ch] = true

	var once sync.Once
	cleanup := func() {
		once.Do(func() { b.unsubscribe(ch) })
	}
	return ch, cleanup
}

func (b *Bus) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[ch] {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish delivers evt to every subscriber without blocking.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// Subscriber is not keeping up, drop the event
		}
	}
}

// SubscriberCount is used by tests and health output.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
