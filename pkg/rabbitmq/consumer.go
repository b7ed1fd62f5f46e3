package rabbitmq

import (
	"context"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler processes one message received on topic.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches messages to a handler until ctx is done.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler Handler)
}

// Consumer holds the client and topic for subscribing.
type Consumer struct {
	client  mqtt.Client
	handler Handler
	topic   string
	log     *zap.Logger
}

var _ IConsumer = (*Consumer)(nil)

func NewConsumer(client mqtt.Client, topic string, handler Handler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		client:  client,
		topic:   topic,
		handler: handler,
		log:     log,
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// qosFor picks at-least-once delivery for audit and trigger traffic.
func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.Contains(t, "/audit") || strings.Contains(t, "/trigger") {
		return 1
	}
	return 0
}

// ConsumeMessage subscribes to the topic and blocks until ctx is cancelled.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, qosFor(c.topic), func(_ mqtt.Client, message mqtt.Message) {
		if c.handler == nil {
			c.log.Warn("no handler set", zap.String("topic", c.topic))
			return
		}
		if err := c.handler(c.topic, message); err != nil {
			c.log.Warn("handle message", zap.String("topic", message.Topic()), zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	c.log.Info("subscribed", zap.String("topic", c.topic))

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
	return nil
}
