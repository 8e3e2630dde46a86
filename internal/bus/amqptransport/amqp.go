// Package amqptransport implements bus.Transport over RabbitMQ, as a
// pluggable alternate to the default Redis Streams transport (spec §1's
// message bus is described only by its contract, not a specific product).
// Exchange/routing-key/consumer-tag wiring follows queue/rabbit.go.
package amqptransport

import (
	"context"
	"fmt"

	"eve.evalgo.org/internal/bus"
	"github.com/streadway/amqp"
)

const exchangeName = "si_core_bus"

// Config configures the AMQP transport.
type Config struct {
	URL string
}

// Transport is a bus.Transport backed by a RabbitMQ topic exchange, with
// subjects mapped onto routing keys.
type Transport struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// New dials url and declares the topic exchange subjects are published on.
func New(url string) (*Transport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqptransport: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqptransport: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqptransport: declare exchange: %w", err)
	}

	return &Transport{conn: conn, channel: ch}, nil
}

// Publish sends msg as a persistent message routed by subject.
func (t *Transport) Publish(_ context.Context, msg bus.Message, _ bus.PublishOptions) error {
	headers := amqp.Table{
		"content_type":    msg.Headers.ContentType,
		"message_type":    msg.Headers.MessageType,
		"message_version": msg.Headers.MessageVersion,
		"message_id":      msg.Headers.MessageID,
		"reply_inbox":     msg.Headers.ReplyInboxName,
		"db_name":         msg.Headers.DbName,
		"instance_id":     msg.Headers.InstanceID,
		"key":             msg.Headers.Key,
	}

	err := t.channel.Publish(exchangeName, msg.Subject, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         msg.Body,
	})
	if err != nil {
		return fmt.Errorf("amqptransport: publish to %s: %w", msg.Subject, err)
	}
	return nil
}

// Subscribe declares a durable queue bound to subject under the topic
// exchange and returns a live subscription. The queue is named
// consumerGroup + "." + subject, so subscribers sharing a group on the same
// subject load-balance deliveries the
// way a consumer group does on a streaming backend.
func (t *Transport) Subscribe(_ context.Context, subject, consumerGroup string) (bus.Subscription, error) {
	queueName := consumerGroup + "." + subject

	q, err := t.channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqptransport: declare queue %s: %w", queueName, err)
	}

	if err := t.channel.QueueBind(q.Name, subject, exchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("amqptransport: bind queue %s to %s: %w", q.Name, subject, err)
	}

	deliveries, err := t.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqptransport: consume %s: %w", q.Name, err)
	}

	sub := &subscription{
		channel: t.channel,
		subject: subject,
		ch:      make(chan bus.Message, 64),
		stop:    make(chan struct{}),
	}
	go sub.run(deliveries)
	return sub, nil
}

// Close tears down the channel and connection.
func (t *Transport) Close() error {
	if err := t.channel.Close(); err != nil {
		return err
	}
	return t.conn.Close()
}

type subscription struct {
	channel *amqp.Channel
	subject string
	ch      chan bus.Message
	stop    chan struct{}
	tags    map[string]uint64
}

func (s *subscription) Messages() <-chan bus.Message { return s.ch }

func (s *subscription) run(deliveries <-chan amqp.Delivery) {
	defer close(s.ch)
	s.tags = make(map[string]uint64)

	for {
		select {
		case <-s.stop:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			msg := bus.Message{
				Subject: s.subject,
				Headers: bus.Headers{
					ContentType:    stringHeader(d.Headers, "content_type"),
					MessageType:    stringHeader(d.Headers, "message_type"),
					MessageVersion: stringHeader(d.Headers, "message_version"),
					MessageID:      stringHeader(d.Headers, "message_id"),
					ReplyInboxName: stringHeader(d.Headers, "reply_inbox"),
					DbName:         stringHeader(d.Headers, "db_name"),
					InstanceID:     stringHeader(d.Headers, "instance_id"),
					Key:            stringHeader(d.Headers, "key"),
				},
				Body:        d.Body,
				DeliveryTag: fmt.Sprintf("%d", d.DeliveryTag),
			}
			s.tags[msg.DeliveryTag] = d.DeliveryTag

			select {
			case s.ch <- msg:
			case <-s.stop:
				return
			}
		}
	}
}

func stringHeader(table amqp.Table, key string) string {
	v, ok := table[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Ack acknowledges the delivery identified by msg.DeliveryTag.
func (s *subscription) Ack(_ context.Context, msg bus.Message) error {
	tag, ok := s.tags[msg.DeliveryTag]
	if !ok {
		return fmt.Errorf("amqptransport: unknown delivery tag %q", msg.DeliveryTag)
	}
	return s.channel.Ack(tag, false)
}

func (s *subscription) Close() error {
	close(s.stop)
	return nil
}
