package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"parlomo-ticketing/internal/logger"
)

const (
	TopicOrderCompleted = "parlomo.order.completed"
	TopicOrderExpired   = "parlomo.order.expired"
	TopicTicketIssued   = "parlomo.ticket.issued"
	TopicPromoUpdated   = "parlomo.promo.updated"
)

// AllTopics lists every topic this service produces or consumes.
func AllTopics() []string {
	return []string{TopicOrderCompleted, TopicOrderExpired, TopicTicketIssued, TopicPromoUpdated}
}

// EnsureTopicsExist creates the given topics if the broker doesn't have
// them yet. Failures on individual topics are logged and skipped so a
// partially provisioned cluster doesn't block startup.
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find kafka controller: %w", err)
	}
	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err := controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.Debug("KAFKA", fmt.Sprintf("Topic %s already exists", topic))
				continue
			}
			log.Error("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
			continue
		}
		log.Info("KAFKA", fmt.Sprintf("Created topic: %s", topic))
	}

	// Give the brokers a moment to settle metadata
	time.Sleep(1 * time.Second)
	return nil
}
