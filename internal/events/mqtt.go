package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/claimd/internal/claim"
	"github.com/nerrad567/claimd/internal/infrastructure/mqtt"
)

// Published lifecycle event names, used as the last topic level.
const (
	EventRegistered = "registered"
	EventClaimed    = "claimed"
)

// defaultQueueSize bounds events waiting to be published.
const defaultQueueSize = 256

// Publisher is the publish surface of the mqtt client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging surface the publisher needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// DeviceEvent is the JSON payload published for a lifecycle event.
type DeviceEvent struct {
	Event    string    `json:"event"`
	UniqueID string    `json:"unique_id"`
	DeviceID string    `json:"device_id,omitempty"`
	At       time.Time `json:"at"`
}

// MQTTPublisher publishes successful register and claim operations to
// <prefix>/devices/<unique_id>/<event>.
//
// Observe only enqueues; a single goroutine started by NewMQTTPublisher
// does the publishing. Close stops it after draining the queue.
type MQTTPublisher struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger Logger

	queue   chan DeviceEvent
	done    chan struct{}
	dropped atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewMQTTPublisher creates a publisher and starts its worker.
func NewMQTTPublisher(pub Publisher, topics mqtt.Topics, qos byte, logger Logger) *MQTTPublisher {
	p := &MQTTPublisher{
		pub:    pub,
		topics: topics,
		qos:    qos,
		logger: logger,
		queue:  make(chan DeviceEvent, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Observe implements claim.Observer.
func (p *MQTTPublisher) Observe(_ context.Context, ev claim.Event) {
	de, ok := deviceEventFor(ev)
	if !ok {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.queue <- de:
	default:
		p.dropped.Add(1)
		p.logger.Warn("device event dropped, queue full", "event", de.Event, "unique_id", de.UniqueID)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *MQTTPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be published,
// or for ctx to end. Safe to call more than once.
func (p *MQTTPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTPublisher) run() {
	defer close(p.done)
	for de := range p.queue {
		payload, err := json.Marshal(de)
		if err != nil {
			p.logger.Warn("encoding device event failed", "error", err)
			continue
		}
		topic := p.topics.DeviceEvent(de.UniqueID, de.Event)
		if err := p.pub.Publish(topic, payload, p.qos, false); err != nil {
			p.logger.Warn("publishing device event failed", "topic", topic, "error", err)
		}
	}
}

// deviceEventFor selects the events worth announcing: successful
// registrations and claims.
func deviceEventFor(ev claim.Event) (DeviceEvent, bool) {
	if ev.Outcome != claim.OutcomeSuccess {
		return DeviceEvent{}, false
	}

	var name string
	switch ev.Op {
	case claim.OpRegister:
		name = EventRegistered
	case claim.OpClaim:
		name = EventClaimed
	default:
		return DeviceEvent{}, false
	}

	return DeviceEvent{
		Event:    name,
		UniqueID: ev.UniqueID,
		DeviceID: ev.DeviceID,
		At:       ev.At,
	}, true
}
