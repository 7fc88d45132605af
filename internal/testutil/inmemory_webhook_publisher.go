package testutil

import (
	"context"
	"sync"

	"github.com/recivo/recivo/internal/types"
)

// InMemoryWebhookPublisher captures published webhook events for assertions
type InMemoryWebhookPublisher struct {
	mu     sync.Mutex
	events []*types.WebhookEvent
}

func NewInMemoryWebhookPublisher() *InMemoryWebhookPublisher {
	return &InMemoryWebhookPublisher{
		events: make([]*types.WebhookEvent, 0),
	}
}

func (p *InMemoryWebhookPublisher) PublishWebhook(ctx context.Context, event *types.WebhookEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *InMemoryWebhookPublisher) Close() error {
	return nil
}

// Events returns all captured events
func (p *InMemoryWebhookPublisher) Events() []*types.WebhookEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*types.WebhookEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventsByName returns captured events with the given event name
func (p *InMemoryWebhookPublisher) EventsByName(name string) []*types.WebhookEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*types.WebhookEvent, 0)
	for _, e := range p.events {
		if e.EventName == name {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops all captured events
func (p *InMemoryWebhookPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = p.events[:0]
}
