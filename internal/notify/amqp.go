// Package notify publishes email dispatch requests onto a durable message
// queue. Delivery mechanics live with the consumer; from the auth core's
// perspective the queue is a fire-and-forget sink whose failures are logged,
// never propagated as request failures.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"justping.io/internal/auth"
)

// message is the wire shape pushed onto the email queue.
type message struct {
	ID        string            `json:"id"`
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AMQPPublisher implements auth.Notifier over RabbitMQ. The connection is
// dialed lazily and re-dialed after a failure.
type AMQPPublisher struct {
	url   string
	queue string
	log   *zap.SugaredLogger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ auth.Notifier = (*AMQPPublisher)(nil)

func NewAMQPPublisher(url, queue string, log *zap.SugaredLogger) *AMQPPublisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AMQPPublisher{url: url, queue: queue, log: log}
}

// Send publishes one persistent message. Errors are logged and returned so
// callers can ignore them without interrupting the main request flow.
func (p *AMQPPublisher) Send(ctx context.Context, n auth.Notification) error {
	ch, err := p.channel()
	if err != nil {
		p.log.Errorw("amqp channel unavailable", "err", err)
		return err
	}

	body, err := json.Marshal(message{
		ID:        uuid.NewString(),
		To:        n.To,
		Subject:   n.Subject,
		Template:  n.Template,
		Variables: n.Variables,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		p.log.Errorw("amqp publish failed", "queue", p.queue, "err", err)
		p.reset()
		return err
	}
	return nil
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() {
	p.reset()
}
