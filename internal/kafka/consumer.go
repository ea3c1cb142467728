package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"violation-service/internal/apperr"
	"violation-service/internal/logging"
	"violation-service/internal/models"
	"violation-service/internal/utils"
)

// EventHandler turns a campus event into notifications and pushes.
type EventHandler interface {
	HandleExternal(ctx context.Context, ev models.CampusEvent) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads vehicle, RFID, account and gate events published by the other
// campus services.
type Consumer struct {
	reader     messageReader
	topic      string
	handler    EventHandler
	logger     *logging.Logger
	retryDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, handler EventHandler, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
	return &Consumer{reader: reader, topic: topic, handler: handler, logger: logger, retryDelay: time.Second}
}

// Start consumes until ctx is cancelled. Offsets are committed after the
// event has been handled, or after it has been given up on.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started on topic %s", c.topic)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				if !c.wait(ctx) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				continue
			}

			if err := c.process(ctx, msg.Value); err != nil {
				c.logger.Errorf("Dropping message at offset %d: %v", msg.Offset, err)
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
			}
		}
	}()
}

// wait pauses for retryDelay before the next fetch. It reports false if ctx
// ends first.
func (c *Consumer) wait(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// process decodes one message and hands it to the handler. Malformed events
// are not retried; store failures are.
func (c *Consumer) process(ctx context.Context, value []byte) error {
	ev, err := Decode(value)
	if err != nil {
		return err
	}
	var rejected error
	err = utils.Retry(ctx, c.logger, 3, c.retryDelay, func() error {
		err := c.handler.HandleExternal(ctx, ev)
		if apperr.IsValidation(err) {
			rejected = err
			return nil
		}
		return err
	})
	if rejected != nil {
		return rejected
	}
	if err != nil {
		return err
	}
	c.logger.Debugf("Processed %s event for entity %s", ev.Type, ev.EntityID)
	return nil
}

// Decode parses a campus event message body.
func Decode(value []byte) (models.CampusEvent, error) {
	var ev models.CampusEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal campus event: %w", err)
	}
	if ev.Type == "" {
		return ev, errors.New("campus event has no type")
	}
	return ev, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
