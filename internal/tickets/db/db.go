package db

import (
	"context"

	"github.com/uptrace/bun"

	"parlomo-ticketing/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// CreateTicket inserts a ticket and scans the generated numeric ID back
// into the model.
func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketByUUID(ctx context.Context, uuid string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("uuid = ?", uuid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// UpdateTicket updates the mutable fields. The code and numeric ID are
// immutable once issued.
func (d *DB) UpdateTicket(ctx context.Context, ticket models.Ticket) error {
	_, err := d.Bun.NewUpdate().
		Model(&ticket).
		Column("status", "attendee_name", "attendee_email", "transfer_history",
			"qr_token", "qr_code", "barcode_number", "checked_in_at").
		Where("code = ?", ticket.Code).
		Exec(ctx)
	return err
}

func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	var ticketType models.TicketType
	err := d.Bun.NewSelect().
		Model(&ticketType).
		Where("ticket_type_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticketType, nil
}
