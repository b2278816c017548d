package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/interfaces"
)

// subscriberBuffer bounds each subscriber channel. Slow consumers drop
// events rather than stalling the pipeline.
const subscriberBuffer = 64

// Publisher is the in-process event broker behind the websocket stream.
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[int]chan interfaces.Event
	nextID      int
	closed      bool
	logger      arbor.ILogger
}

// NewPublisher creates the event broker.
func NewPublisher(logger arbor.ILogger) *Publisher {
	return &Publisher{
		subscribers: make(map[int]chan interfaces.Event),
		logger:      logger,
	}
}

// Publish broadcasts an event to every subscriber. Never blocks.
func (p *Publisher) Publish(event interfaces.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	for id, ch := range p.subscribers {
		select {
		case ch <- event:
		default:
			p.logger.Warn().Int("subscriber", id).Str("type", event.Type).Msg("Event dropped for slow subscriber")
		}
	}
}

// Subscribe registers a consumer. The returned cancel func must be called
// to release the channel.
func (p *Publisher) Subscribe() (<-chan interfaces.Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan interfaces.Event, subscriberBuffer)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextID
	p.nextID++
	p.subscribers[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subscribers[id]; ok {
			delete(p.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close shuts down the broker and every subscriber channel.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subscribers {
		delete(p.subscribers, id)
		close(ch)
	}
}
