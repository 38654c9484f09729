// Package events records delivery and engagement facts: every event is
// appended to the durable log and, when a broker is configured, fanned out
// to the analytics pipeline.
package events

import (
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

const DefaultExchange = "delivery_events"

// Publisher fans DeliveryEvents out to an AMQP exchange for external
// consumers. It is optional; a nil Publisher drops nothing but the broker
// copy.
type Publisher struct {
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch, exchange: exchange}, nil
}

func (p *Publisher) Publish(ev *model.DeliveryEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.ch.Publish(
		p.exchange,
		"", // fanout ignores routing keys
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
