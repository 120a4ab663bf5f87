package auth

import (
	"sync"
	"time"
)

type EventKind string

const (
	SignedIn  EventKind = "signed_in"
	SignedOut EventKind = "signed_out"
)

// Event is a current-user change notification.
type Event struct {
	Kind   EventKind
	UserID string
	At     time.Time
}

// Watcher fans out auth events to subscribers. A subscriber that falls
// behind loses events rather than blocking sign-in.
type Watcher struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func NewWatcher() *Watcher {
	return &Watcher{subs: make(map[int]chan Event)}
}

// Subscribe returns an event channel and a function that closes it.
func (w *Watcher) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	w.mu.Lock()
	id := w.next
	w.next++
	w.subs[id] = ch
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
			close(ch)
		})
	}
}

func (w *Watcher) publish(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
