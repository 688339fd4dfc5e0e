package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
)

var ErrInvalidMessage = errors.New("invalid check request message")

// DecodeCheckRequest parses a plagiarism.check.requested payload.
func DecodeCheckRequest(body []byte) (models.PlagiarismCheckRequestedEvent, error) {
	var event models.PlagiarismCheckRequestedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if event.DocumentID <= 0 {
		return event, fmt.Errorf("%w: document_id must be positive", ErrInvalidMessage)
	}
	return event, nil
}

// EventPublisher sends check requests and completion events to one exchange.
type EventPublisher struct {
	publisher    RabbitMQPublisher
	exchange     string
	requestedKey string
	completedKey string
}

func NewEventPublisher(publisher RabbitMQPublisher, exchange, requestedKey, completedKey string) *EventPublisher {
	return &EventPublisher{
		publisher:    publisher,
		exchange:     exchange,
		requestedKey: requestedKey,
		completedKey: completedKey,
	}
}

func (p *EventPublisher) PublishCheckRequested(ctx context.Context, event models.PlagiarismCheckRequestedEvent) error {
	return p.publish(ctx, p.requestedKey, event)
}

func (p *EventPublisher) PublishChecked(ctx context.Context, event models.PlagiarismCheckedEvent) error {
	return p.publish(ctx, p.completedKey, event)
}

func (p *EventPublisher) publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.publisher.Publish(ctx, p.exchange, routingKey, body); err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}
