// Package broadcast fans hotspot updates out to live display clients.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-hotspot-patrol/internal/models"
)

// Each update carries the full cluster set, so a subscriber only ever needs
// the newest few.
const subscriberBuffer = 4

type Broadcaster struct {
	subscribers map[uint64]chan *models.ClusterRun
	nextID      atomic.Uint64
	mu          sync.RWMutex
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan *models.ClusterRun),
	}
}

// Subscribe registers a listener. After Close it returns an already closed
// channel.
func (b *Broadcaster) Subscribe() (uint64, <-chan *models.ClusterRun) {
	id := b.nextID.Add(1)
	ch := make(chan *models.ClusterRun, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Broadcast never blocks. A subscriber whose buffer is full loses its oldest
// pending update to make room for run.
func (b *Broadcaster) Broadcast(run *models.ClusterRun) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- run:
			continue
		default:
		}

		select {
		case <-ch:
		default:
		}
		select {
		case ch <- run:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
