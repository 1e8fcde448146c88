// Package messaging contains the asynchronous command intake: a RabbitMQ
// consumer that applies ledger commands to the engine. It is an adapter in
// front of the in-process LedgerService, not an API definition.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/bankcore/ledger-service/internal/domain"
)

// Command is the wire shape of an incoming ledger command.
type Command struct {
	CommandType string `json:"commandType"` // "debit", "credit" or "transfer"
	AccountID   string `json:"accountId"`
	ToAccountID string `json:"toAccountId,omitempty"` // transfer only
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// Config holds the consumer's RabbitMQ wiring.
type Config struct {
	URL        string
	Queue      string
	Exchange   string
	RoutingKey string
}

// Consumer consumes ledger commands from RabbitMQ and applies them via the
// LedgerService.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  Config
	ledger  *domain.LedgerService
	log     zerolog.Logger
}

// NewConsumer connects to RabbitMQ, declares the exchange/queue/binding and
// returns a consumer ready to Start.
func NewConsumer(cfg Config, ledger *domain.LedgerService, log zerolog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		config:  cfg,
		ledger:  ledger,
		log:     log,
	}, nil
}

// Start consumes messages until the context is cancelled. Commands that fail
// for caller-correctable reasons (bad payload, unknown account, insufficient
// funds) are acknowledged and dropped after logging; storage failures are
// requeued once.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.config.Queue,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (we ack manually)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info().Str("queue", c.config.Queue).Msg("command consumer started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("stopping command consumer")
			return nil

		case msg, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	var cmd Command
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		c.log.Warn().Err(err).Msg("dropping malformed command")
		_ = msg.Ack(false)
		return
	}

	err := c.apply(ctx, cmd)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case isPermanent(err):
		c.log.Warn().Err(err).Str("command", cmd.CommandType).Msg("dropping rejected command")
		_ = msg.Ack(false)
	default:
		c.log.Error().Err(err).Str("command", cmd.CommandType).Msg("requeueing failed command")
		_ = msg.Nack(false, !msg.Redelivered)
	}
}

func (c *Consumer) apply(ctx context.Context, cmd Command) error {
	amount, err := domain.ParseAmount(cmd.Amount)
	if err != nil {
		return err
	}

	accountID, err := uuid.Parse(cmd.AccountID)
	if err != nil {
		return fmt.Errorf("%w: invalid accountId: %v", domain.ErrInvalidArgument, err)
	}

	switch cmd.CommandType {
	case "debit":
		_, err = c.ledger.Debit(ctx, accountID, amount, cmd.Description)
	case "credit":
		_, err = c.ledger.Credit(ctx, accountID, amount, cmd.Description)
	case "transfer":
		var toID uuid.UUID
		toID, err = uuid.Parse(cmd.ToAccountID)
		if err != nil {
			return fmt.Errorf("%w: invalid toAccountId: %v", domain.ErrInvalidArgument, err)
		}
		_, _, err = c.ledger.Transfer(ctx, accountID, toID, amount, cmd.Description)
	default:
		return fmt.Errorf("%w: unknown command type %q", domain.ErrInvalidArgument, cmd.CommandType)
	}

	return err
}

// isPermanent reports whether retrying the command can never succeed without
// caller correction.
func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidArgument) ||
		errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrInsufficientFunds)
}

// Close closes the channel and connection.
func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}
