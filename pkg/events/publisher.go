package events

import (
	"context"

	"go.uber.org/zap"
)

type Publisher interface {
	PublishAttemptSubmitted(ctx context.Context, event *AttemptSubmittedEvent) error
	PublishSessionSuperseded(ctx context.Context, event *SessionSupersededEvent) error

	// Close closes the publisher and releases resources
	Close() error
}

// EventPublisher 把领域事件发布到 topic exchange；未配置地址时只记录日志
type EventPublisher struct {
	client   *RabbitMQClient
	exchange string
	log      *zap.Logger
}

func NewEventPublisher(uri, exchange string, log *zap.Logger) (*EventPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if uri == "" {
		log.Warn("RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{exchange: exchange, log: log}, nil
	}

	client, err := NewRabbitMQClient(uri, log)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareExchange(exchange); err != nil {
		client.Close()
		return nil, err
	}

	return &EventPublisher{client: client, exchange: exchange, log: log}, nil
}

func (p *EventPublisher) Enabled() bool {
	return p.client != nil
}

func (p *EventPublisher) PublishAttemptSubmitted(ctx context.Context, event *AttemptSubmittedEvent) error {
	return p.publish(ctx, event.Type, event)
}

func (p *EventPublisher) PublishSessionSuperseded(ctx context.Context, event *SessionSupersededEvent) error {
	return p.publish(ctx, event.Type, event)
}

func (p *EventPublisher) publish(ctx context.Context, t EventType, event any) error {
	if !p.Enabled() {
		p.log.Debug("Event publishing is disabled, skipping", zap.String("type", string(t)))
		return nil
	}

	body, err := toJSON(event)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.exchange, string(t), body); err != nil {
		return err
	}

	p.log.Debug("Published event", zap.String("type", string(t)))
	return nil
}

// Close releases resources
func (p *EventPublisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.client.Close()
}
