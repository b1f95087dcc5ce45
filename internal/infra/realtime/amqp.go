// Package realtime implements the per-user push channel: a RabbitMQ topic
// exchange for multi-node deployments and an in-process hub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/port"
)

const eventBuffer = 16

// RoutingKey is the topic a user's events are published under.
func RoutingKey(userID string) string {
	return "user." + userID
}

// AMQPChannel implements port.PushChannel on a RabbitMQ topic exchange.
// Every subscription gets its own exclusive, auto-deleted queue.
type AMQPChannel struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu   sync.Mutex
	conn *amqp091.Connection
}

// NewAMQPChannel dials the broker and declares the exchange.
func NewAMQPChannel(url, exchange string, logger *zap.Logger) (*AMQPChannel, error) {
	a := &AMQPChannel{url: url, exchange: exchange, logger: logger}

	conn, err := a.connection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return a, nil
}

// connection returns the live connection, redialing when the broker dropped it.
func (a *AMQPChannel) connection() (*amqp091.Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil && !a.conn.IsClosed() {
		return a.conn, nil
	}
	conn, err := amqp091.Dial(a.url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	a.conn = conn
	return conn, nil
}

// Join opens a subscription for userID.
func (a *AMQPChannel) Join(ctx context.Context, userID string) (port.Subscription, error) {
	conn, err := a.connection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	key := RoutingKey(userID)
	if err := ch.QueueBind(q.Name, key, a.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	// the consumer is cancelled by Close, not by the caller's context
	consumeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	deliveries, err := ch.ConsumeWithContext(consumeCtx,
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack; events are only refresh hints
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,
	)
	if err != nil {
		cancel()
		ch.Close()
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	sub := &amqpSubscription{
		ch:       ch,
		cancel:   cancel,
		exchange: a.exchange,
		key:      key,
		events:   make(chan domain.ChangeEvent, eventBuffer),
		logger:   a.logger.With(zap.String("user_id", userID), zap.String("queue", q.Name)),
	}
	sub.joined.Store(true)

	closed := ch.NotifyClose(make(chan *amqp091.Error, 1))
	go sub.pump(deliveries, closed)

	sub.logger.Debug("push channel joined")
	return sub, nil
}

// Close drops the broker connection.
func (a *AMQPChannel) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

type amqpSubscription struct {
	ch       *amqp091.Channel
	cancel   context.CancelFunc
	exchange string
	key      string
	events   chan domain.ChangeEvent
	joined   atomic.Bool
	logger   *zap.Logger

	closeOnce sync.Once
}

func (s *amqpSubscription) pump(deliveries <-chan amqp091.Delivery, closed <-chan *amqp091.Error) {
	defer s.joined.Store(false)

	for {
		select {
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				s.logger.Warn("push channel closed by broker", zap.String("reason", amqpErr.Reason))
			}
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var ev domain.ChangeEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				s.logger.Warn("discarding malformed push event", zap.Error(err))
				continue
			}
			deliver(s.events, ev)
		}
	}
}

func (s *amqpSubscription) Events() <-chan domain.ChangeEvent { return s.events }

func (s *amqpSubscription) Joined() bool { return s.joined.Load() }

func (s *amqpSubscription) Broadcast(ctx context.Context, event domain.ChangeEvent) error {
	if !s.Joined() {
		return domain.ErrSessionClosed
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = s.ch.PublishWithContext(ctx,
		s.exchange, // exchange
		s.key,      // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (s *amqpSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.joined.Store(false)
		s.cancel()
		err = s.ch.Close()
	})
	return err
}

// deliver hands ev to the consumer without blocking. A full buffer already
// guarantees a pending reconcile, so the extra event can be dropped.
func deliver(events chan domain.ChangeEvent, ev domain.ChangeEvent) {
	select {
	case events <- ev:
	default:
	}
}
