package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

// DefaultClientBuffer is the per-subscriber channel depth used when
// Subscribe is given a non-positive size.
const DefaultClientBuffer = 64

// Publisher fans estimates out to subscribers. A subscriber whose channel
// is full misses that estimate; Publish never blocks.
type Publisher struct {
	clients   map[string]chan imu.Estimate
	clientsMu sync.RWMutex
	closed    bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewPublisher creates an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{clients: make(map[string]chan imu.Estimate)}
}

// Subscribe registers a client. The returned channel is closed by
// Unsubscribe or Close.
func (p *Publisher) Subscribe(buffer int) (string, <-chan imu.Estimate) {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	id := uuid.NewString()
	ch := make(chan imu.Estimate, buffer)

	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if p.closed {
		close(ch)
		return id, ch
	}
	p.clients[id] = ch
	logf("Client subscribed: %s (total: %d)", id, len(p.clients))
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (p *Publisher) Unsubscribe(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if ch, ok := p.clients[id]; ok {
		close(ch)
		delete(p.clients, id)
		logf("Client unsubscribed: %s (remaining: %d)", id, len(p.clients))
	}
}

// Publish delivers est to every subscriber with room in its buffer.
func (p *Publisher) Publish(est imu.Estimate) {
	p.published.Add(1)

	p.clientsMu.RLock()
	defer p.clientsMu.RUnlock()
	for _, ch := range p.clients {
		select {
		case ch <- est:
		default:
			// Client is slow, drop estimate for this client.
			p.dropped.Add(1)
		}
	}
}

// Close unsubscribes every client. Later subscribers get a closed channel.
func (p *Publisher) Close() {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	for id, ch := range p.clients {
		close(ch)
		delete(p.clients, id)
	}
	p.closed = true
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Clients   int    `json:"clients"`
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	p.clientsMu.RLock()
	n := len(p.clients)
	p.clientsMu.RUnlock()
	return PublisherStats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Clients:   n,
	}
}
