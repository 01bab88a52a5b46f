package session

import "sync"

type EventType string

const (
	EventState   EventType = "state"
	EventChat    EventType = "chat"
	EventReading EventType = "reading"
	EventAudio   EventType = "audio"
)

// AudioFrame is one paced chunk of playback audio, base64 16-bit PCM.
type AudioFrame struct {
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	Data       string `json:"data"`
}

type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"sessionId"`
	Snapshot  *Snapshot   `json:"snapshot,omitempty"`
	Frame     *AudioFrame `json:"frame,omitempty"`
}

// Listener receives the events of one session.
type Listener struct {
	C    chan Event
	done chan struct{}
}

// Done is closed when the listener is unsubscribed or the session closes.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

type broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{listeners: make(map[*Listener]struct{})}
}

func (b *broadcaster) subscribe() *Listener {
	l := &Listener{
		C:    make(chan Event, 256), // ~5 seconds of 20ms audio frames
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(l.done)
		return l
	}
	b.listeners[l] = struct{}{}
	return l
}

func (b *broadcaster) unsubscribe(l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[l]; !ok {
		return
	}
	delete(b.listeners, l)
	close(l.done)
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// publish never blocks; a slow listener loses events rather than stalling the session.
func (b *broadcaster) publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- event:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for l := range b.listeners {
		delete(b.listeners, l)
		close(l.done)
	}
}
