// Package relay fans price events out to stream clients over SSE and
// WebSocket.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 256

// Feed names.
const (
	FeedPrices     = "prices"
	FeedInvalidate = "invalidate"
	FeedFetchError = "fetch_error"
)

// Event is one message on a feed. Payload is JSON.
type Event struct {
	Feed    string
	Payload []byte
	Time    time.Time
}

type subscriber struct {
	ch    chan Event
	feeds map[string]bool // nil accepts every feed
}

func (s *subscriber) wants(feed string) bool {
	return s.feeds == nil || s.feeds[feed]
}

// Broker delivers events to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber
	nextID      atomic.Int64
	dropped     atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]*subscriber)}
}

// Subscribe registers a client for the given feeds, or every feed when none
// are named. The returned channel closes on Unsubscribe.
func (b *Broker) Subscribe(feeds ...string) (int64, <-chan Event) {
	sub := &subscriber{ch: make(chan Event, subscriberBufSize)}
	if len(feeds) > 0 {
		sub.feeds = make(map[string]bool, len(feeds))
		for _, f := range feeds {
			sub.feeds[f] = true
		}
	}
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()
	return id, sub.ch
}

func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

func (b *Broker) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if !sub.wants(evt.Feed) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishJSON marshals v and publishes it on feed.
func (b *Broker) PublishJSON(feed string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("relay event not published", "feed", feed, "error", err)
		return
	}
	b.Publish(Event{Feed: feed, Payload: payload})
}

// Stats is a snapshot of the broker counters.
type Stats struct {
	Clients int   `json:"clients"`
	Dropped int64 `json:"dropped"`
}

func (b *Broker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{Clients: len(b.subscribers), Dropped: b.dropped.Load()}
}
