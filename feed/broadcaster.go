package feed

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Broadcaster fans controller events out to subscriber channels
type Broadcaster struct {
	sync.RWMutex
	clients map[string]chan Event
	buffer  int
	closed  bool
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{
		clients: make(map[string]chan Event),
		buffer:  buffer,
	}
}

// Subscribe registers a new client and returns its key and event channel.
// After Shutdown the returned channel is already closed.
func (b *Broadcaster) Subscribe() (string, <-chan Event) {
	b.Lock()
	defer b.Unlock()

	key := uuid.New().String()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return key, ch
	}

	b.clients[key] = ch
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Debug("Adding feed subscriber")

	return key, ch
}

// Unsubscribe removes a client and closes its channel
func (b *Broadcaster) Unsubscribe(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.clients[key]; ok {
		close(client)
		delete(b.clients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Debug("Removed feed subscriber")
}

// Broadcast sends evt to every client without blocking. A client whose
// buffer is full misses the event.
func (b *Broadcaster) Broadcast(evt Event) {
	b.RLock()
	defer b.RUnlock()

	for key, client := range b.clients {
		select {
		case client <- evt:
		default:
			log.Warnf("Subscriber channel full, skipping %s event for client: %v", evt.Kind, key)
		}
	}
}

// Count returns the number of subscribers
func (b *Broadcaster) Count() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Shutdown() {
	b.Lock()
	defer b.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for key, client := range b.clients {
		close(client)
		delete(b.clients, key)
	}
}
