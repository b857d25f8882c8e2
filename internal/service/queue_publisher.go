// Package queue_publisher publishes convention domain events to
// RabbitMQ.  Publishing is best-effort: a committed write must never be
// rolled back because the broker was down, so errors are logged and
// returned for the caller to ignore.
package queue_publisher

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/resotel/tariff-conventions/internal/queue"
)

// PublishConventionUpserted sends a ConventionUpsertedEvent to the
// convention.upserted queue as a persistent JSON message.  A fresh
// connection per publish is deliberate here: convention writes are
// low-volume administrative actions, so connection reuse buys nothing
// and a broker restart can never leave the handler holding a dead
// channel.
func PublishConventionUpserted(ctx context.Context, event queue.ConventionUpsertedEvent) error {
	conn, err := amqp.Dial(queue.BrokerURL())
	if err != nil {
		log.Printf("queue_publisher: dial: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("queue_publisher: channel: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Declare is idempotent; durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(queue.ConventionQueueName, true, false, false, false, nil); err != nil {
		log.Printf("queue_publisher: declare %s: %v", queue.ConventionQueueName, err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("queue_publisher: marshal: %v", err)
		return err
	}

	err = ch.PublishWithContext(ctx, "", queue.ConventionQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.Printf("queue_publisher: publish: %v", err)
	}
	return err
}
