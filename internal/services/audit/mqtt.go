package audit

import (
	"context"
	"encoding/json"

	"github.com/smartplant/plantcare/internal/model/messages"
	"github.com/smartplant/plantcare/pkg/rabbitmq"
)

// MQTT publishes the record as JSON.
type MQTT struct {
	pub rabbitmq.IPublisher
}

var _ Sink = (*MQTT)(nil)

func NewMQTT(pub rabbitmq.IPublisher) *MQTT {
	return &MQTT{pub: pub}
}

func (m *MQTT) Append(ctx context.Context, rec messages.CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return m.pub.PublishMessage(b)
}
