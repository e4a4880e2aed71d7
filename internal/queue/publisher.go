package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends domain events to RabbitMQ.  The function attempts to be
// robust and to never panic; any error is logged and returned so the
// caller can choose to ignore it.  Messages are marked as persistent and
// queues are declared durable so events survive broker restarts.
type Publisher struct {
	url string
}

// NewPublisher returns a Publisher that dials the given AMQP URL per
// publish.  An empty url disables publishing: Publish becomes a logged no-op.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// Publish marshals the event and sends it to the named durable queue.
func (p *Publisher) Publish(ctx context.Context, queueName string, event any) error {
	if p.url == "" {
		log.Printf("rabbitmq: publisher disabled, dropping %s event", queueName)
		return nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // autoDelete
		false,     // exclusive
		false,     // noWait
		nil,       // args
	); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		pub,
	); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}

	return nil
}
