// SPDX-License-Identifier: MIT

// Package eventbus implements a topic-addressed in-process publish/subscribe
// bus with a bounded per-topic replay history. Delivery is synchronous and
// ordered per topic; nothing survives a process restart.
package eventbus

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mesaops/mesad/internal/log"
	"github.com/mesaops/mesad/internal/metrics"
)

// HistoryLimit bounds the number of envelopes retained per topic.
// Oldest entries are evicted first once the bound is exceeded.
const HistoryLimit = 50

// ErrReentrantPublish is returned when a handler publishes to the topic it is
// currently being invoked for. Allowing that call would either deadlock or
// break per-topic ordering, so it fails fast instead.
var ErrReentrantPublish = errors.New("eventbus: re-entrant publish to same topic")

// Envelope is the unit of delivery. Sequence is a per-topic monotonically
// increasing counter assigned at publish time.
type Envelope struct {
	Topic       string    `json:"topic"`
	Sequence    uint64    `json:"sequence"`
	PublishedAt time.Time `json:"publishedAt"`
	Payload     any       `json:"payload"`
}

// Handler receives envelopes for a subscribed topic. Handlers run on the
// publisher's goroutine; a panic in one handler is isolated and does not
// prevent delivery to later handlers.
type Handler func(Envelope)

type subscription struct {
	id      uint64
	handler Handler
}

type topicState struct {
	seq     uint64
	history []Envelope
	subs    []subscription

	// deliverMu serializes fan-out per topic; owner is the goroutine id of
	// the current publisher, used to fail fast on same-topic re-entrancy.
	deliverMu sync.Mutex
	ownerMu   sync.Mutex
	owner     uint64
}

// Bus is safe for concurrent use. The zero value is not usable; construct
// with New.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topicState
	nextID uint64

	clock func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock overrides the publish timestamp source (tests).
func WithClock(clock func() time.Time) Option {
	return func(b *Bus) { b.clock = clock }
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		topics: make(map[string]*topicState),
		clock:  time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Bus) topic(name string) *topicState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.topics[name]
	if !ok {
		ts = &topicState{}
		b.topics[name] = ts
	}
	return ts
}

// Subscribe registers handler for future publishes on topic and returns a
// capability that removes exactly this registration. Subscribing does not
// deliver history; late joiners catch up via History.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	ts := b.topic(topic)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	ts.subs = append(ts.subs, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range ts.subs {
			if s.id == id {
				ts.subs = append(ts.subs[:i], ts.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish assigns the next sequence for topic, appends the envelope to the
// topic's history buffer, then synchronously invokes every registered handler
// in registration order. Concurrent publishers to one topic serialize, so
// every handler observes envelopes in sequence order.
func (b *Bus) Publish(topic string, payload any) (Envelope, error) {
	ts := b.topic(topic)
	gid := goroutineID()

	ts.ownerMu.Lock()
	owner := ts.owner
	ts.ownerMu.Unlock()
	if owner == gid {
		metrics.IncBusReentrantRejected(topic)
		return Envelope{}, ErrReentrantPublish
	}

	ts.deliverMu.Lock()
	defer ts.deliverMu.Unlock()

	ts.ownerMu.Lock()
	ts.owner = gid
	ts.ownerMu.Unlock()
	defer func() {
		ts.ownerMu.Lock()
		ts.owner = 0
		ts.ownerMu.Unlock()
	}()

	b.mu.Lock()
	ts.seq++
	env := Envelope{
		Topic:       topic,
		Sequence:    ts.seq,
		PublishedAt: b.clock(),
		Payload:     payload,
	}
	ts.history = append(ts.history, env)
	if len(ts.history) > HistoryLimit {
		evicted := len(ts.history) - HistoryLimit
		ts.history = append(ts.history[:0:0], ts.history[evicted:]...)
		metrics.AddBusHistoryEvicted(topic, evicted)
	}
	subs := append([]subscription(nil), ts.subs...)
	b.mu.Unlock()

	metrics.IncBusPublished(topic)

	for _, s := range subs {
		b.invoke(topic, env, s)
	}
	return env, nil
}

func (b *Bus) invoke(topic string, env Envelope, s subscription) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncBusHandlerPanic(topic)
			logger := log.WithComponent("eventbus")
			logger.Error().
				Str(log.FieldTopic, topic).
				Uint64(log.FieldSequence, env.Sequence).
				Interface("panic", r).
				Msg("handler panicked; continuing fan-out")
		}
	}()
	s.handler(env)
}

// History returns the retained envelopes for topic, oldest first. The result
// is a copy; mutating it does not affect the buffer.
func (b *Bus) History(topic string) []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.topics[topic]
	if !ok {
		return []Envelope{}
	}
	return append([]Envelope{}, ts.history...)
}

// DrainAllHistory returns the union of all topic buffers without clearing
// them. Topics are ordered lexicographically, envelopes within a topic in
// publish order, so repeated calls over unchanged state are byte-stable.
func (b *Bus) DrainAllHistory() []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Envelope
	for _, name := range names {
		out = append(out, b.topics[name].history...)
	}
	return out
}

// Topics returns the names of all topics that have ever been published or
// subscribed to, lexicographically ordered.
func (b *Bus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
