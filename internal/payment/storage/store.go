package storage

import (
	"parlomo-ticketing/internal/models"
)

type Store interface {
	// Payment operations
	SavePayment(payment *models.Payment) error
	GetPayment(id string) (*models.Payment, error)
	GetPaymentBySessionID(sessionID string) (*models.Payment, error)
	UpdatePaymentStatus(id string, status models.PaymentStatus) error

	// Health and maintenance
	Close() error
	HealthCheck() error
}
