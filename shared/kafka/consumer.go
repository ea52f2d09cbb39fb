// Package kafka consumes item save events from a Kafka consumer group.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"curio/logger"
)

// MessageHandler processes one consumed message.
type MessageHandler interface {
	// HandleMessage reports whether the message should be marked as processed. Unmarked
	// messages are redelivered after a rebalance or restart.
	HandleMessage(ctx context.Context, message []byte) (shouldMark bool, err error)
}

// Consumer runs a consumer group over one topic.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	topic   string
	groupID string
	log     logger.Logger
	ready   chan struct{}
	done    chan struct{}
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler MessageHandler
	Logger  logger.Logger
}

// NewConsumer connects a consumer group.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", cfg.GroupID, err)
	}
	return newConsumer(group, cfg), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig) *Consumer {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Consumer{
		group:   group,
		handler: cfg.Handler,
		topic:   cfg.Topic,
		groupID: cfg.GroupID,
		log:     log.With(logger.String("component", "kafka_consumer"), logger.String("topic", cfg.Topic)),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start consumes in the background until ctx is cancelled. It returns once the first session
// is set up, or with ctx's error if that never happens.
func (c *Consumer) Start(ctx context.Context) error {
	handler := &groupHandler{handler: c.handler, log: c.log, ready: c.ready}

	go func() {
		defer close(c.done)
		for {
			if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
					return
				}
				c.log.Error("Error from consumer group", logger.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		for err := range c.group.Errors() {
			c.log.Error("Consumer group error", logger.Error(err))
		}
	}()

	select {
	case <-c.ready:
		c.log.Info("Kafka consumer started", logger.String("group", c.groupID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops consuming and waits for the consume loop to exit.
func (c *Consumer) Close() error {
	c.log.Info("Closing Kafka consumer")
	err := c.group.Close()
	<-c.done
	return err
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	handler MessageHandler
	log     logger.Logger
	ready   chan struct{}
	started bool
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	if !h.started {
		h.started = true
		close(h.ready)
	}
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			h.log.Debug("Received message",
				logger.Int("partition", int(message.Partition)),
				logger.Any("offset", message.Offset),
				logger.String("key", string(message.Key)))

			shouldMark, err := h.handler.HandleMessage(session.Context(), message.Value)
			if err != nil {
				h.log.Error("Failed to handle message",
					logger.Int("partition", int(message.Partition)),
					logger.Any("offset", message.Offset),
					logger.Error(err))
			}
			if shouldMark {
				session.MarkMessage(message, "")
			}

		case <-session.Context().Done():
			return nil
		}
	}
}

// TypedMessageHandler decodes JSON messages into T before processing them.
type TypedMessageHandler[T any] struct {
	// Validate reports whether a decoded message should be processed. Optional.
	Validate func(msg *T) bool
	Process  func(ctx context.Context, msg *T) error
	// AlwaysMark marks undecodable and invalid messages so they are not redelivered.
	AlwaysMark bool
	Logger     logger.Logger
}

func (h *TypedMessageHandler[T]) HandleMessage(ctx context.Context, message []byte) (bool, error) {
	var msg T
	if err := json.Unmarshal(message, &msg); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("Failed to unmarshal message", logger.Error(err))
		}
		return h.AlwaysMark, nil
	}

	if h.Validate != nil && !h.Validate(&msg) {
		return h.AlwaysMark, nil
	}

	if err := h.Process(ctx, &msg); err != nil {
		return false, err
	}
	return true, nil
}
