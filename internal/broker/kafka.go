package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/config"
	apperrors "github.com/spec-kit/intake-pipeline/pkg/errorutil"
)

// Client is the message-broker client. Delivery is at-least-once with
// persistent messages; consumers acknowledge by committing offsets only
// after the handler returns.
type Client struct {
	cfg    config.KafkaConfig
	logger *zap.Logger

	mu     sync.Mutex
	writer *kafka.Writer
	closed bool
}

// NewClient creates a broker client and declares the fixed queue set.
func NewClient(cfg config.KafkaConfig, logger *zap.Logger) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, apperrors.NewBrokerError("no brokers configured", nil)
	}

	client := &Client{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "broker")),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}

	if err := client.DeclareQueues(context.Background()); err != nil {
		client.logger.Warn("queue declaration failed; will re-assert on reconnect", zap.Error(err))
	}
	return client, nil
}

// DeclareQueues asserts the durable queue set. Safe to call repeatedly;
// existing queues are left untouched.
func (c *Client) DeclareQueues(ctx context.Context) error {
	conn, err := kafka.Dial("tcp", c.cfg.Brokers[0])
	if err != nil {
		return apperrors.NewBrokerError("dial broker", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return apperrors.NewBrokerError("resolve controller", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return apperrors.NewBrokerError("dial controller", err)
	}
	defer controllerConn.Close()

	for _, queue := range Queues {
		topicConfig := kafka.TopicConfig{
			Topic:             queue.Name,
			NumPartitions:     queue.Partitions,
			ReplicationFactor: queue.ReplicationFactor,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: fmt.Sprintf("%d", queue.RetentionMs)},
				{ConfigName: "cleanup.policy", ConfigValue: "delete"},
			},
		}
		if err := controllerConn.CreateTopics(topicConfig); err != nil {
			// The queue usually exists already.
			c.logger.Debug("declare queue", zap.String("queue", queue.Name), zap.Error(err))
		}
	}
	return nil
}

// Publish sends the JSON-encoded payload to the named queue.
func (c *Client) Publish(ctx context.Context, queue string, payload any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.NewBrokerError("publish on closed client", nil)
	}
	writer := c.writer
	c.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewBrokerError("marshal payload", err)
	}

	msg := kafka.Message{
		Topic: queue,
		Key:   []byte(uuid.NewString()),
		Value: data,
		Time:  time.Now(),
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		return apperrors.NewBrokerError("publish to "+queue, err)
	}
	return nil
}

// Consume reads the queue one message at a time in delivery order and runs
// the handler for each. A handler error is logged together with the dropped
// payload and the message is committed anyway: there is no dead-letter
// queue, so a poison message is dropped rather than redelivered forever.
// Fetch failures tear down the reader, re-assert the queue declarations and
// retry after a fixed delay until ctx is cancelled.
func (c *Client) Consume(ctx context.Context, queue, group string, handler Handler) {
	log := c.logger.With(zap.String("queue", queue), zap.String("group", group))

	for {
		if ctx.Err() != nil {
			return
		}

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			GroupID:     group,
			Topic:       queue,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.FirstOffset,
		})

		c.consumeLoop(ctx, reader, handler, log)

		if err := reader.Close(); err != nil {
			log.Warn("close reader", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}

		log.Warn("consumer disconnected; reconnecting", zap.Duration("delay", c.cfg.ReconnectDelay()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay()):
		}
		if err := c.DeclareQueues(ctx); err != nil {
			log.Warn("re-assert queues", zap.Error(err))
		}
	}
}

func (c *Client) consumeLoop(ctx context.Context, reader *kafka.Reader, handler Handler, log *zap.Logger) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("fetch message", zap.Error(err))
			}
			return
		}

		if err := handler(ctx, msg.Value); err != nil {
			log.Error("handler failed; dropping message",
				zap.Error(err),
				zap.ByteString("payload", msg.Value))
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() == nil {
				log.Error("commit message", zap.Error(err))
			}
			return
		}
	}
}

// Close shuts down the producer side.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.writer.Close()
}
