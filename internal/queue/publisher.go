package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DialTimeout bounds the TCP connect and AMQP handshake.
const DialTimeout = 2 * time.Second

func dial(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Locale: "en_US",
		Dial:   amqp.DefaultDial(DialTimeout),
	})
}

// Publisher sends issuance events. Implementations must never block the
// issuance path for long; callers treat errors as best-effort.
type Publisher interface {
	PublishIssued(ctx context.Context, ev CertificatesIssuedEvent) error
}

// NopPublisher discards events. Used when EVENTS_ENABLED is false and in
// tests.
type NopPublisher struct{}

// PublishIssued implements Publisher.
func (NopPublisher) PublishIssued(context.Context, CertificatesIssuedEvent) error { return nil }

// AMQPPublisher dials the broker per publish, declares the durable queue
// and sends a persistent JSON message. Issuance is low-frequency, so a
// connection per event keeps the publisher stateless.
type AMQPPublisher struct {
	URL string
	Log *zap.Logger
}

// NewAMQPPublisher returns a publisher for url.
func NewAMQPPublisher(url string, log *zap.Logger) *AMQPPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPPublisher{URL: url, Log: log}
}

// PublishIssued implements Publisher. Every failure is logged and
// returned.
func (p *AMQPPublisher) PublishIssued(ctx context.Context, ev CertificatesIssuedEvent) error {
	conn, err := dial(p.URL)
	if err != nil {
		p.Log.Warn("rabbitmq dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Warn("rabbitmq channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		IssuedQueueName, // name
		true,            // durable
		false,           // autoDelete
		false,           // exclusive
		false,           // noWait
		nil,             // args
	); err != nil {
		p.Log.Warn("rabbitmq queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", IssuedQueueName, false, false, pub); err != nil {
		p.Log.Warn("rabbitmq publish failed", zap.Error(err))
		return err
	}
	return nil
}
