// Package sse implements a Server-Sent Events broker that tells browsers when postcards change.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/postcards/internal/postcards"
)

// Event types sent to clients.
const (
	TypeCreated = "postcard." + postcards.KindCreated
	TypeUpdated = "postcard." + postcards.KindUpdated
	TypeDeleted = "postcard." + postcards.KindDeleted
	TypeChanged = "postcards.changed"
)

const (
	defaultChangedThrottle = 2 * time.Second
	defaultHeartbeat       = 25 * time.Second
	defaultClientBuffer    = 64
	retryMillis            = 3000
)

// event is one SSE frame. Data is JSON encoded.
type event struct {
	Type string
	Data any
}

type change struct {
	kind string
	id   string
}

// Broker fans events out to connected streams.
//
// The run goroutine owns the client set, the event sequence and the last
// "postcards.changed" time; every public method talks to it over channels.
type Broker struct {
	changedMin   time.Duration
	heartbeat    time.Duration
	clientBuffer int

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	changeCh      chan change
	countCh       chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithChangedThrottle sets the minimum gap between two "postcards.changed" hints.
func WithChangedThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.changedMin = d
		}
	}
}

// WithHeartbeat sets how often idle streams receive a keep-alive comment.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithClientBuffer sets how many frames a slow client may lag before frames are dropped.
func WithClientBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.clientBuffer = n
		}
	}
}

// NewBroker starts a broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		changedMin:    defaultChangedThrottle,
		heartbeat:     defaultHeartbeat,
		clientBuffer:  defaultClientBuffer,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		changeCh:      make(chan change, 256),
		countCh:       make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq         uint64
		lastChanged time.Time
	)

	broadcast := func(ev event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload))
		for ch := range clients {
			select {
			case ch <- frame:
			default:
				// slow client; drop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case c := <-b.changeCh:
			typ := eventType(c.kind)
			if typ == "" {
				continue
			}
			broadcast(event{Type: typ, Data: map[string]string{"id": c.id}})

			if now := time.Now(); now.Sub(lastChanged) >= b.changedMin {
				lastChanged = now
				broadcast(event{Type: TypeChanged, Data: map[string]string{}})
			}

		case resp := <-b.countCh:
			resp <- len(clients)
		}
	}
}

func eventType(kind string) string {
	switch kind {
	case postcards.KindCreated:
		return TypeCreated
	case postcards.KindUpdated:
		return TypeUpdated
	case postcards.KindDeleted:
		return TypeDeleted
	}
	return ""
}

// Close stops the loop and closes every client channel. It is safe to call twice.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, b.clientBuffer)
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// PublishPostcardEvent implements postcards.Notifier. Unknown kinds are ignored.
func (b *Broker) PublishPostcardEvent(kind, id string) {
	select {
	case b.changeCh <- change{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: " + strconv.Itoa(retryMillis) + "\n\n"))
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
