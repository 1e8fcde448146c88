// Package events publishes completed-operation events to RabbitMQ so
// downstream consumers (analytics, notifications) can follow the ledger
// without querying it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bankcore/ledger-service/internal/domain"
)

// OperationEvent is the wire shape of a completed-operation event.
type OperationEvent struct {
	EventType   string `json:"eventType"`
	OperationID string `json:"operationId"`
	AccountID   string `json:"accountId"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	OccurredAt  string `json:"occurredAt"`
}

// RabbitPublisher implements domain.EventPublisher using a RabbitMQ topic
// exchange.
type RabbitPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewRabbitPublisher connects to RabbitMQ and declares the durable topic
// exchange events are published to.
func NewRabbitPublisher(url, exchange, routingKey string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

// PublishOperationCompleted publishes one completed-operation event.
func (p *RabbitPublisher) PublishOperationCompleted(ctx context.Context, op *domain.AccountOperation) error {
	event := OperationEvent{
		EventType:   "operation.completed",
		OperationID: op.ID.String(),
		AccountID:   op.AccountID.String(),
		Type:        string(op.Type),
		Amount:      op.Amount.String(),
		Description: op.Description,
		OccurredAt:  op.OperationDate.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the channel and connection.
func (p *RabbitPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
