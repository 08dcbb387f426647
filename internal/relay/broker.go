// Package relay fans session events out to any number of listeners: in-process
// consumers such as the journal and panorama archive, and SSE clients.
package relay

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Feed names used by the session.
const (
	FeedConnection     = "connection"
	FeedLog            = "log"
	FeedLogsCleared    = "logs_cleared"
	FeedVisionFrame    = "vision_frame"
	FeedPanoramicImage = "panoramic_image"
	FeedRobot          = "robot"
)

// Event is one state change. Data is JSON-serialisable.
type Event struct {
	Feed string
	Data any
}

// Broker fans out events to all subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	dropped     atomic.Int64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a listener. The channel is buffered; a slow listener has
// events dropped rather than stalling the publisher.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a listener and closes its channel. Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers evt to every listener without blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of attached listeners.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a listener was full.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
