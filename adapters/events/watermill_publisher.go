package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/agent/core"
)

// SessionIssuedTopic is the topic for session issued events
const SessionIssuedTopic = "agent.session_issued"

// SessionIssuedEvent represents a successful sign-in
type SessionIssuedEvent struct {
	Address   string    `json:"address"`
	TokenID   string    `json:"token_id"`
	URI       string    `json:"uri"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     SessionIssuedTopic,
	}
}

// PublishSessionIssued publishes a session issued event
func (p *WatermillPublisher) PublishSessionIssued(ctx context.Context, session *core.Session) error {
	event := SessionIssuedEvent{
		Address:   session.Address,
		TokenID:   session.ID,
		URI:       session.URI,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(session.ID, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
