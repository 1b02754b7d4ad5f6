package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"parlomo-ticketing/internal/logger"
)

// PromoUpdatedEvent is published by the promo service whenever a code
// changes. Consumers drop any cached copy of the code.
type PromoUpdatedEvent struct {
	Code    string `json:"code"`
	EventID string `json:"event_id"`
}

// Consumer reads promo update events so the local promo cache never
// serves a stale code for long.
type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context, handler func(event PromoUpdatedEvent)) {
	c.logger.Info("KAFKA", "Promo update consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		var event PromoUpdatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal promo update: %v", err))
			continue
		}

		c.logger.LogKafka("CONSUME", msg.Topic, fmt.Sprintf("promo %s updated", event.Code))
		handler(event)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
