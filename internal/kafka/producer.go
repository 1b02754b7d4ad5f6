package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
)

// Producer writes checkout lifecycle events. One writer serves all
// topics; the topic is set per message.
type Producer struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer, logger: log}
}

func (p *Producer) publish(topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}

	p.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s", key))

	return p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// OrderEvent is the payload for order lifecycle topics.
type OrderEvent struct {
	OrderID    string    `json:"order_id"`
	SessionID  string    `json:"session_id"`
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Total      int64     `json:"total"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TicketEvent is the payload for ticket lifecycle topics. QR material
// never leaves the service; only the public identifiers travel.
type TicketEvent struct {
	Code          string    `json:"code"`
	OrderID       string    `json:"order_id"`
	EventID       string    `json:"event_id"`
	TicketTypeID  string    `json:"ticket_type_id"`
	AttendeeEmail string    `json:"attendee_email"`
	BarcodeNumber string    `json:"barcode_number"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ExpiredEvent is published once per session that ran out of time.
type ExpiredEvent struct {
	SessionID  string    `json:"session_id"`
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PublishOrderCompleted streams the order completion event.
func (p *Producer) PublishOrderCompleted(order models.Order) error {
	return p.publish(TopicOrderCompleted, order.OrderID, OrderEvent{
		OrderID:    order.OrderID,
		SessionID:  order.SessionID,
		EventID:    order.EventID,
		UserID:     order.UserID,
		Total:      order.Total,
		Currency:   order.Currency,
		Status:     string(order.Status),
		OccurredAt: time.Now(),
	})
}

// PublishOrderExpired streams the session expiry event.
func (p *Producer) PublishOrderExpired(sessionID, eventID string) error {
	return p.publish(TopicOrderExpired, sessionID, ExpiredEvent{
		SessionID:  sessionID,
		EventID:    eventID,
		OccurredAt: time.Now(),
	})
}

// PublishTicketIssued streams one event per issued ticket.
func (p *Producer) PublishTicketIssued(ticket models.Ticket) error {
	return p.publish(TopicTicketIssued, ticket.Code, TicketEvent{
		Code:          ticket.Code,
		OrderID:       ticket.OrderID,
		EventID:       ticket.EventID,
		TicketTypeID:  ticket.TicketTypeID,
		AttendeeEmail: ticket.AttendeeEmail,
		BarcodeNumber: ticket.BarcodeNumber,
		OccurredAt:    time.Now(),
	})
}

// Close flushes and shuts down the shared writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
