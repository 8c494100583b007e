package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Publisher fans job status transitions out over a RabbitMQ topic exchange
// so push consumers (UI gateways) don't have to poll the registry. Delivery
// here is advisory; the poller path remains the correctness fallback.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

// statusMessage is the wire shape consumed by push gateways.
type statusMessage struct {
	JobID      string    `json:"job_id"`
	ExternalID string    `json:"external_id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Outputs    []string  `json:"outputs"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewPublisher connects and declares the topic exchange.
func NewPublisher(url, exchange string, logger zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return &Publisher{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

// PublishStatus emits one transition keyed by "<kind>.<status>" so consumers
// can bind selectively (e.g. "training.*" or "*.failed").
func (p *Publisher) PublishStatus(ctx context.Context, job domain.Job) error {
	body, err := json.Marshal(statusMessage{
		JobID:      job.ID,
		ExternalID: job.ExternalID,
		UserID:     job.UserID,
		Kind:       string(job.Kind),
		Status:     string(job.Status),
		Outputs:    job.Outputs,
		Error:      job.ErrorMessage,
		UpdatedAt:  job.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode status message: %w", err)
	}

	routingKey := fmt.Sprintf("%s.%s", job.Kind, job.Status)
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.logger.Debug().Str("routing_key", routingKey).Str("job_id", job.ID).Msg("status published")
	return nil
}

// Close tears down the channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
