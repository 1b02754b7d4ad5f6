package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
	"parlomo-ticketing/internal/tickets/codegen"
	"parlomo-ticketing/internal/tickets/qr"
)

var (
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrInvalidQR        = errors.New("QR code could not be verified")
	ErrExpiredQR        = errors.New("QR code has expired")
	ErrAlreadyCheckedIn = errors.New("ticket has already been checked in")
	ErrTicketNotValid   = errors.New("ticket is not valid for entry")
)

// NotEligibleError carries the user-facing reason a transfer or refund
// was refused.
type NotEligibleError struct {
	Reason string
}

func (e *NotEligibleError) Error() string {
	return e.Reason
}

const qrImageSize = 256

// createAttempts bounds retries when a freshly generated code collides
// with the unique constraint.
const createAttempts = 3

type DBLayer interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, ticket models.Ticket) error
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	GetTicketType(ctx context.Context, id string) (*models.TicketType, error)
}

type KafkaPublisher interface {
	PublishTicketIssued(ticket models.Ticket) error
}

// Service issues tickets for completed orders and runs the scan,
// transfer and refund flows.
type Service struct {
	DB     DBLayer
	QR     *qr.Generator
	Kafka  KafkaPublisher
	logger *logger.Logger
}

func NewService(db DBLayer, qrGen *qr.Generator, kafka KafkaPublisher, log *logger.Logger) *Service {
	return &Service{DB: db, QR: qrGen, Kafka: kafka, logger: log}
}

// IssueForOrder creates one ticket per seat in the order's cart. Each
// ticket gets a fresh code, a signed QR token and a barcode number
// derived from its database ID.
func (s *Service) IssueForOrder(ctx context.Context, order models.Order, sess models.CheckoutSession) ([]models.Ticket, error) {
	attendeeName := strings.TrimSpace(order.BuyerFirstName + " " + order.BuyerLastName)
	issued := make([]models.Ticket, 0)

	for i, item := range sess.Items {
		for q := 0; q < item.Quantity; q++ {
			ticket, err := s.issueOne(ctx, codegen.TicketParams{
				OrderID:       order.OrderID,
				OrderItemID:   fmt.Sprintf("%s-%d", order.OrderID, i),
				TicketTypeID:  item.TicketTypeID,
				EventID:       order.EventID,
				SeatID:        item.SeatID,
				AttendeeName:  attendeeName,
				AttendeeEmail: order.BuyerEmail,
			})
			if err != nil {
				return issued, err
			}
			issued = append(issued, *ticket)

			if err := s.Kafka.PublishTicketIssued(*ticket); err != nil {
				s.logger.Error("KAFKA", fmt.Sprintf("failed to publish ticket issued for %s: %v", ticket.Code, err))
			}
		}
	}

	s.logger.LogTicket("ISSUED", order.OrderID, fmt.Sprintf("%d tickets issued", len(issued)))
	return issued, nil
}

func (s *Service) issueOne(ctx context.Context, params codegen.TicketParams) (*models.Ticket, error) {
	var ticket models.Ticket
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		ticket = codegen.NewTicket(params)
		if err = s.DB.CreateTicket(ctx, &ticket); err == nil {
			break
		}
		s.logger.Warn("TICKET", fmt.Sprintf("insert failed for code %s, regenerating: %v", ticket.Code, err))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket for order %s: %w", params.OrderID, err)
	}

	token, err := s.QR.Generate(qr.Payload{
		TicketID:     ticket.UUID,
		TicketCode:   ticket.Code,
		EventID:      ticket.EventID,
		TicketTypeID: ticket.TicketTypeID,
		OrderID:      ticket.OrderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign QR token for ticket %s: %w", ticket.Code, err)
	}

	image, err := s.QR.Image(token, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR image for ticket %s: %w", ticket.Code, err)
	}

	ticket.QRToken = token
	ticket.QRCode = image
	ticket.BarcodeNumber = codegen.BarcodeNumber(ticket.ID)

	if err := s.DB.UpdateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to store QR data for ticket %s: %w", ticket.Code, err)
	}
	return &ticket, nil
}

func (s *Service) GetTicket(ctx context.Context, code string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, code)
	}
	return ticket, nil
}

func (s *Service) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByOrder(ctx, orderID)
}

func (s *Service) GetTicketType(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	return s.DB.GetTicketType(ctx, ticketTypeID)
}

// ScanResult is what the door scanner sees after presenting a QR token.
type ScanResult struct {
	Ticket      *models.Ticket `json:"ticket"`
	CheckedInAt time.Time      `json:"checked_in_at"`
}

// Scan verifies a presented QR token and checks the ticket in. A token
// that fails signature verification never reaches the database.
func (s *Service) Scan(ctx context.Context, token string) (*ScanResult, error) {
	switch s.QR.CheckExpiry(token) {
	case qr.ExpiryExpired:
		return nil, ErrExpiredQR
	case qr.ExpiryInvalid:
		return nil, ErrInvalidQR
	}

	payload := s.QR.Verify(token)
	if payload == nil {
		return nil, ErrInvalidQR
	}

	ticket, err := s.DB.GetTicketByCode(ctx, payload.TicketCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, payload.TicketCode)
	}
	if ticket.UUID != payload.TicketID {
		// Token was signed for a different issuance of this code
		return nil, ErrInvalidQR
	}

	if ticket.Status == models.TicketUsed {
		return nil, fmt.Errorf("%w at %s", ErrAlreadyCheckedIn, ticket.CheckedInAt.Format(time.RFC3339))
	}
	if ticket.Status != models.TicketValid {
		return nil, fmt.Errorf("%w: status %s", ErrTicketNotValid, ticket.Status)
	}

	ticket.Status = models.TicketUsed
	ticket.CheckedInAt = time.Now()
	if err := s.DB.UpdateTicket(ctx, *ticket); err != nil {
		return nil, fmt.Errorf("failed to check in ticket %s: %w", ticket.Code, err)
	}

	s.logger.LogTicket("CHECKED_IN", ticket.Code, fmt.Sprintf("event %s", ticket.EventID))
	return &ScanResult{Ticket: ticket, CheckedInAt: ticket.CheckedInAt}, nil
}

// Transfer reassigns a ticket to a new attendee. The code and barcode
// stay the same; the QR token is reissued so the previous holder's copy
// stops scanning.
func (s *Service) Transfer(ctx context.Context, code, toName, toEmail string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, code)
	}

	ticketType, err := s.DB.GetTicketType(ctx, ticket.TicketTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket type %s: %w", ticket.TicketTypeID, err)
	}

	if eligibility := codegen.CanTransfer(*ticket, *ticketType); !eligibility.OK {
		return nil, &NotEligibleError{Reason: eligibility.Reason}
	}

	ticket.TransferHistory = append(ticket.TransferHistory, models.TransferRecord{
		FromEmail:     ticket.AttendeeEmail,
		ToEmail:       toEmail,
		TransferredAt: time.Now(),
	})
	ticket.AttendeeName = toName
	ticket.AttendeeEmail = toEmail

	token, err := s.QR.Generate(qr.Payload{
		TicketID:     ticket.UUID,
		TicketCode:   ticket.Code,
		EventID:      ticket.EventID,
		TicketTypeID: ticket.TicketTypeID,
		OrderID:      ticket.OrderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reissue QR token for ticket %s: %w", ticket.Code, err)
	}
	image, err := s.QR.Image(token, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR image for ticket %s: %w", ticket.Code, err)
	}
	ticket.QRToken = token
	ticket.QRCode = image

	if err := s.DB.UpdateTicket(ctx, *ticket); err != nil {
		return nil, fmt.Errorf("failed to transfer ticket %s: %w", ticket.Code, err)
	}

	s.logger.LogTicket("TRANSFERRED", ticket.Code, fmt.Sprintf("to %s", toEmail))
	return ticket, nil
}

// Refund marks a ticket refunded. Eligibility depends on the ticket
// type and the event not having started.
func (s *Service) Refund(ctx context.Context, code string, eventDate time.Time) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, code)
	}

	ticketType, err := s.DB.GetTicketType(ctx, ticket.TicketTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket type %s: %w", ticket.TicketTypeID, err)
	}

	if eligibility := codegen.CanRefund(*ticket, *ticketType, eventDate, time.Now()); !eligibility.OK {
		return nil, &NotEligibleError{Reason: eligibility.Reason}
	}

	ticket.Status = models.TicketRefunded
	if err := s.DB.UpdateTicket(ctx, *ticket); err != nil {
		return nil, fmt.Errorf("failed to refund ticket %s: %w", ticket.Code, err)
	}

	s.logger.LogTicket("REFUNDED", ticket.Code, fmt.Sprintf("event %s", ticket.EventID))
	return ticket, nil
}
