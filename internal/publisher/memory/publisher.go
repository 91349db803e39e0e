// Package memory keeps published completion messages in memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/profile-harvester/internal/publisher"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

var _ publisher.Publisher = (*Publisher)(nil)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Completions returns the completion payloads published to topic, in order.
func (p *Publisher) Completions(topic string) []publisher.Completion {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []publisher.Completion
	for _, m := range p.messages {
		if c, ok := m.Payload.(publisher.Completion); ok && m.Topic == topic {
			out = append(out, c)
		}
	}
	return out
}
