package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("rabbitmq: not connected")

type RabbitMQClient struct {
	mu      sync.Mutex
	uri     string
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.Logger
}

func NewRabbitMQClient(uri string, log *zap.Logger) (*RabbitMQClient, error) {
	c := &RabbitMQClient{uri: uri, log: log}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RabbitMQClient) connect() error {
	conn, err := amqp.Dial(c.uri)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	c.conn = conn
	c.channel = ch
	return nil
}

func (c *RabbitMQClient) DeclareExchange(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return ErrNotConnected
	}
	if err := c.channel.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}

// Publish 发送持久化消息；连接断开时先尝试重连一次，不做更多重试
func (c *RabbitMQClient) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		c.log.Warn("RabbitMQ connection closed, reconnecting")
		if err := c.connect(); err != nil {
			return err
		}
	}

	err := c.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (c *RabbitMQClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.channel != nil {
		errs = append(errs, c.channel.Close())
	}
	if c.conn != nil && !c.conn.IsClosed() {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}
