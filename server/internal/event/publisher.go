package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Type string

const (
	AttemptStarted  Type = "quiz.attempt.started"
	AttemptAnswered Type = "quiz.attempt.answered"
	AttemptFinished Type = "quiz.attempt.finished"
)

// Event describes a change to an attempt. Result fields are only set on
// AttemptFinished.
type Event struct {
	Type       Type      `json:"event_type"`
	AttemptID  string    `json:"attempt_id"`
	QuizID     string    `json:"quiz_id"`
	StudentID  string    `json:"student_id"`
	QuestionID string    `json:"question_id,omitempty"`
	Score      *int      `json:"score,omitempty"`
	Passed     *bool     `json:"passed,omitempty"`
	Completion string    `json:"completion,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// AMQPPublisher publishes events to a durable topic exchange, routed by type.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
}

func NewAMQPPublisher(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
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

	log.Info("Event publisher initialized", zap.String("exchange", exchange))
	return &AMQPPublisher{conn: conn, channel: channel, exchange: exchange, log: log}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,     // exchange
		string(e.Type), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.OccurredAt,
			Body:         body,
			Headers: amqp.Table{
				"event_type": string(e.Type),
				"attempt_id": e.AttemptID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.log.Debug("Published event", zap.String("type", string(e.Type)), zap.String("attempt_id", e.AttemptID))
	return nil
}

func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// Noop drops every event.
type Noop struct {
	Log *zap.Logger
}

func (n Noop) Publish(_ context.Context, e Event) error {
	if n.Log != nil {
		n.Log.Debug("Event publishing disabled, skipping event", zap.String("type", string(e.Type)))
	}
	return nil
}

func (Noop) Close() error { return nil }
