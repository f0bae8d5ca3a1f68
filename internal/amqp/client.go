package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/log"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config names the exchange and the two queues bound to it. Each queue is
// bound with its own name as routing key.
type Config struct {
	URL         string
	Exchange    string
	NotifyQueue string
	SyncQueue   string
}

// Client publishes and consumes notification events and sync requests. The
// connection is re-established lazily after a failure.
type Client struct {
	url          string
	exchangeName string
	queueName    string // sync request queue
	notifyQueue  string
	// origin tags published notifications so the consumer can skip them.
	origin string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
	failureMu    sync.Mutex
}

func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		url:          cfg.URL,
		exchangeName: cfg.Exchange,
		queueName:    cfg.SyncQueue,
		notifyQueue:  cfg.NotifyQueue,
		origin:       uuid.NewString(),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn = conn
	c.channel = channel

	if err := c.setupLocked(); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}
	return nil
}

func (c *Client) setupLocked() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.queueName, c.notifyQueue} {
		if queue == "" {
			continue
		}
		if _, err := c.channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

// PublishNotification announces a stored notification.
func (c *Client) PublishNotification(ctx context.Context, n core.Notification) error {
	msg := NewNotificationCreatedMessage(n)
	msg.Origin = c.origin
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.notifyQueue, body); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Published notification event",
		log.FieldComponent, log.ComponentAMQP,
		log.FieldUserID, n.UserID,
		"notification_id", n.ID,
		"exchange", c.exchangeName)
	return nil
}

// PublishSyncRequest queues a bank sync for a worker.
func (c *Client) PublishSyncRequest(ctx context.Context, userID, connectionToken string) error {
	body, err := NewSyncRequestMessage(userID, connectionToken).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.queueName, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published sync request",
		log.FieldComponent, log.ComponentAMQP,
		log.FieldUserID, userID,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: %w", routingKey, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		c.recordFailure()
		return err
	}

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.closeLocked()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// errUndecodable marks a delivery that can never be handled. It is dropped
// instead of requeued.
var errUndecodable = errors.New("undecodable message")

// deliveryHandler handles one message body.
type deliveryHandler func(ctx context.Context, body []byte) error

// ConsumeSyncRequests delivers sync requests to handler until ctx is done.
// Handler failures are requeued once; undecodable messages are dropped. A
// lost connection is re-established with exponential backoff.
func (c *Client) ConsumeSyncRequests(ctx context.Context, handler func(context.Context, *SyncRequestMessage) error) error {
	return c.consume(ctx, c.queueName, func(ctx context.Context, body []byte) error {
		msg, err := SyncRequestMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: %v", errUndecodable, err)
		}
		if err := handler(ctx, msg); err != nil {
			return fmt.Errorf("sync request for %s: %w", msg.UserID, err)
		}
		return nil
	})
}

// ConsumeNotifications delivers notification events published by other
// processes to handler until ctx is done. Events this client published
// itself are acknowledged and skipped. Retry and drop rules are those of
// ConsumeSyncRequests.
func (c *Client) ConsumeNotifications(ctx context.Context, handler func(context.Context, core.Notification) error) error {
	return c.consume(ctx, c.notifyQueue, c.notificationHandler(handler))
}

func (c *Client) notificationHandler(handler func(context.Context, core.Notification) error) deliveryHandler {
	return func(ctx context.Context, body []byte) error {
		msg, err := NotificationCreatedMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: %v", errUndecodable, err)
		}
		if msg.UserID == "" || msg.ID == "" {
			return fmt.Errorf("%w: notification without id or user", errUndecodable)
		}
		if msg.Origin == c.origin {
			return nil
		}
		if err := handler(ctx, msg.Notification()); err != nil {
			return fmt.Errorf("notification %s for %s: %w", msg.ID, msg.UserID, err)
		}
		return nil
	}
}

func (c *Client) consume(ctx context.Context, queue string, handle deliveryHandler) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, queue, handle, func() { attempt = 0 })
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption",
				log.FieldComponent, log.ComponentAMQP, "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		}

		delay := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "Consumer interrupted, reconnecting",
			log.FieldComponent, log.ComponentAMQP, "queue", queue, log.FieldError, err, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, queue string, handle deliveryHandler, connected func()) error {
	c.mu.Lock()
	if err := c.connectLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	msgs, err := c.channel.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	connected()

	slog.InfoContext(ctx, "Started consuming", log.FieldComponent, log.ComponentAMQP, "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			settle(ctx, queue, delivery, handle)
		}
	}
}

// settle runs handle on one delivery and acks or nacks it. A failed
// delivery is requeued unless it was already redelivered.
func settle(ctx context.Context, queue string, delivery amqp091.Delivery, handle deliveryHandler) {
	err := handle(ctx, delivery.Body)
	switch {
	case err == nil:
		delivery.Ack(false)
	case errors.Is(err, errUndecodable):
		slog.ErrorContext(ctx, "Dropping undecodable message",
			log.FieldComponent, log.ComponentAMQP, "queue", queue, log.FieldError, err)
		delivery.Nack(false, false)
	default:
		slog.ErrorContext(ctx, "Failed to handle message",
			log.FieldComponent, log.ComponentAMQP, "queue", queue, log.FieldError, err)
		delivery.Nack(false, !delivery.Redelivered)
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.failureMu.Lock()
	last := c.lastFailure
	c.failureMu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.failureMu.Lock()
	c.lastFailure = time.Now()
	c.failureMu.Unlock()

	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s doubled per attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
