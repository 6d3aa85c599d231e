// Package memory keeps page-scraped events in process for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

// Message is one publish call, with the payload in its JSON wire form.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Publisher records messages instead of sending them.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes payload the same way the Pub/Sub publisher does and keeps it.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns a copy of the recorded messages.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events decodes every recorded message as an infobox.PageScrapedEvent.
func (p *Publisher) Events() ([]infobox.PageScrapedEvent, error) {
	msgs := p.Messages()
	events := make([]infobox.PageScrapedEvent, 0, len(msgs))
	for _, msg := range msgs {
		var ev infobox.PageScrapedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", msg.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
