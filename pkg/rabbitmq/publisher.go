package rabbitmq

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher publishes payloads to a fixed topic.
type IPublisher interface {
	PublishMessage(payload []byte) error
	Close()
}

// Publisher holds the client and the topic it publishes to.
type Publisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

var _ IPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher with QoS chosen from the topic.
func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{
		client:  client,
		topic:   topic,
		qos:     qosFor(topic),
		timeout: 5 * time.Second,
	}
}

// Topic returns the topic the publisher writes to.
func (p *Publisher) Topic() string { return p.topic }

// PublishMessage publishes payload and waits for the broker acknowledgement.
func (p *Publisher) PublishMessage(payload []byte) error {
	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s: timed out after %s", p.topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
