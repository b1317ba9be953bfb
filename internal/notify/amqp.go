package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	defaultQueueName      = "safari.reservation.archived"
	defaultBufferSize     = 256
	defaultPublishTimeout = 5 * time.Second
	initialBackoff        = 500 * time.Millisecond
	maxBackoff            = 30 * time.Second
	contentTypeJSON       = "application/json"
)

// publishChannel is the part of *amqp.Channel the publisher needs.
type publishChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a channel and returns a closer for its connection.
type dialFunc func(url string) (publishChannel, func() error, error)

// AMQPOption configures an AMQPPublisher.
type AMQPOption func(*AMQPPublisher)

// WithQueue overrides the destination queue.
func WithQueue(name string) AMQPOption {
	return func(publisher *AMQPPublisher) {
		if name != "" {
			publisher.queue = name
		}
	}
}

// WithBufferSize sets how many records may wait for the broker.
func WithBufferSize(size int) AMQPOption {
	return func(publisher *AMQPPublisher) {
		if size > 0 {
			publisher.records = make(chan safari.ArchivedReservation, size)
		}
	}
}

// WithPublisherLogger sets the logger for dropped and failed messages.
func WithPublisherLogger(logger *zap.Logger) AMQPOption {
	return func(publisher *AMQPPublisher) {
		if logger != nil {
			publisher.logger = logger
		}
	}
}

func withDialer(dial dialFunc) AMQPOption {
	return func(publisher *AMQPPublisher) {
		publisher.dial = dial
	}
}

// AMQPPublisher queues archived reservations in memory and publishes them to
// RabbitMQ from Run. NotifyArchived never blocks; records are dropped when
// the buffer is full.
type AMQPPublisher struct {
	url     string
	queue   string
	records chan safari.ArchivedReservation
	dial    dialFunc
	logger  *zap.Logger
}

// NewAMQPPublisher validates the broker url and builds a publisher.
func NewAMQPPublisher(url string, options ...AMQPOption) (*AMQPPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: amqp url is required", safari.ErrInvalidServiceConfig)
	}
	publisher := &AMQPPublisher{
		url:     url,
		queue:   defaultQueueName,
		records: make(chan safari.ArchivedReservation, defaultBufferSize),
		dial:    dialAMQP,
		logger:  zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(publisher)
		}
	}
	return publisher, nil
}

// NotifyArchived implements safari.ArchiveNotifier.
func (publisher *AMQPPublisher) NotifyArchived(ctx context.Context, record safari.ArchivedReservation) {
	select {
	case publisher.records <- record:
	default:
		publisher.logger.Warn("archive notification dropped",
			zap.String("reservation_id", record.ReservationID.String()),
			zap.String("queue", publisher.queue))
	}
}

// Run publishes queued records until ctx ends, reconnecting with backoff.
func (publisher *AMQPPublisher) Run(ctx context.Context) error {
	backoff := initialBackoff
	var pending *safari.ArchivedReservation
	for {
		channel, closeConnection, err := publisher.connect()
		if err == nil {
			backoff = initialBackoff
			pending, err = publisher.drain(ctx, channel, pending)
			_ = channel.Close()
			_ = closeConnection()
			if err == nil {
				return nil
			}
		}
		publisher.logger.Warn("amqp publisher disconnected", zap.String("queue", publisher.queue), zap.Error(err))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (publisher *AMQPPublisher) connect() (publishChannel, func() error, error) {
	channel, closeConnection, err := publisher.dial(publisher.url)
	if err != nil {
		return nil, nil, err
	}
	if _, err := channel.QueueDeclare(publisher.queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = closeConnection()
		return nil, nil, fmt.Errorf("declare queue %s: %w", publisher.queue, err)
	}
	return channel, closeConnection, nil
}

// drain returns nil when ctx ends, or the record that failed with the error.
func (publisher *AMQPPublisher) drain(ctx context.Context, channel publishChannel, pending *safari.ArchivedReservation) (*safari.ArchivedReservation, error) {
	for {
		var record safari.ArchivedReservation
		if pending != nil {
			record = *pending
			pending = nil
		} else {
			select {
			case <-ctx.Done():
				return nil, nil
			case record = <-publisher.records:
			}
		}
		if err := publisher.publish(ctx, channel, record); err != nil {
			if errors.Is(err, errUnencodable) {
				publisher.logger.Error("archive notification skipped", zap.String("reservation_id", record.ReservationID.String()), zap.Error(err))
				continue
			}
			if ctx.Err() != nil {
				return nil, nil
			}
			return &record, err
		}
	}
}

var errUnencodable = errors.New("unencodable archive record")

func (publisher *AMQPPublisher) publish(ctx context.Context, channel publishChannel, record safari.ArchivedReservation) error {
	body, err := encodeArchived(record)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnencodable, err)
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	return channel.PublishWithContext(publishCtx, "", publisher.queue, false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    record.ReservationID.String(),
		Timestamp:    record.ArchivedAt.UTC(),
		Body:         body,
	})
}

func dialAMQP(url string) (publishChannel, func() error, error) {
	connection, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	return channel, connection.Close, nil
}
