// Package feed pushes registration counts to subscribers so viewers of an
// event page see the count move without polling. Delivery is best-effort and
// at-least-once; subscribers treat each value as latest-known and overwrite,
// never reason about ordering. The feed is read-side only: no counter update
// ever happens through it.
package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/squadevents/rsvp-engine/internal/observability"
)

// Publisher is the in-process subscription registry for one API instance.
type Publisher struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[int]func(int)
	nextID int
	logger observability.Logger
}

func NewPublisher(logger observability.Logger) *Publisher {
	return &Publisher{
		subs:   make(map[uuid.UUID]map[int]func(int)),
		logger: logger,
	}
}

// Subscribe registers fn for the event's counter updates and returns the
// matching unsubscribe. fn must not block; it runs on the publishing
// goroutine.
func (p *Publisher) Subscribe(eventID uuid.UUID, fn func(count int)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	if p.subs[eventID] == nil {
		p.subs[eventID] = make(map[int]func(int))
	}
	p.subs[eventID][id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if subs, ok := p.subs[eventID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(p.subs, eventID)
				}
			}
			p.mu.Unlock()
		})
	}
}

// Publish delivers count to every current subscriber of the event.
func (p *Publisher) Publish(eventID uuid.UUID, count int) {
	p.mu.RLock()
	fns := make([]func(int), 0, len(p.subs[eventID]))
	for _, fn := range p.subs[eventID] {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(count)
		observability.FeedDeliveriesTotal.Inc()
	}
}

// Subscribers reports the current subscription count for an event.
func (p *Publisher) Subscribers(eventID uuid.UUID) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs[eventID])
}

// Bus is the cross-instance leg, implemented by the Redis adapter.
type Bus interface {
	Publish(ctx context.Context, eventID uuid.UUID, count int) error
}

// Fanout notifies local subscribers directly and forwards the value over the
// bus for subscribers attached to other instances. Local delivery also
// arrives a second time via the bus echo; at-least-once is fine here.
type Fanout struct {
	Local  *Publisher
	Bus    Bus
	Logger observability.Logger
}

func (f *Fanout) NotifyCount(ctx context.Context, eventID uuid.UUID, count int) {
	f.Local.Publish(eventID, count)
	if f.Bus == nil {
		return
	}
	if err := f.Bus.Publish(ctx, eventID, count); err != nil {
		f.Logger.WithError(err).Warn("feed bus publish failed")
	}
}
