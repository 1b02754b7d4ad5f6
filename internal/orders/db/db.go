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

// CreateOrder inserts a new order. The unique constraint on session_id
// makes a duplicate completion fail at the database even if the
// consume-once gate is somehow bypassed.
func (d *DB) CreateOrder(ctx context.Context, order models.Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(ctx)
	return err
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("session_id = ?", sessionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder updates the mutable fields of an order.
func (d *DB) UpdateOrder(ctx context.Context, order models.Order) error {
	_, err := d.Bun.NewUpdate().
		Model(&order).
		Column("status", "payment_intent_id", "payment_method", "completed_at").
		Where("order_id = ?", order.OrderID).
		Exec(ctx)
	return err
}

// GetOrdersWithTicketsByUser fetches a user's orders newest first, each
// with its issued tickets attached.
func (d *DB) GetOrdersWithTicketsByUser(ctx context.Context, userID string) ([]models.OrderWithTickets, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return []models.OrderWithTickets{}, nil
	}

	orderIDs := make([]string, len(orders))
	for i, order := range orders {
		orderIDs[i] = order.OrderID
	}

	var tickets []models.Ticket
	err = d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id IN (?)", bun.In(orderIDs)).
		Order("order_id", "generated_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	ticketsByOrder := make(map[string][]models.Ticket)
	for _, ticket := range tickets {
		ticketsByOrder[ticket.OrderID] = append(ticketsByOrder[ticket.OrderID], ticket)
	}

	result := make([]models.OrderWithTickets, len(orders))
	for i, order := range orders {
		result[i] = models.OrderWithTickets{
			Order:   order,
			Tickets: ticketsByOrder[order.OrderID],
		}
		if result[i].Tickets == nil {
			result[i].Tickets = []models.Ticket{}
		}
	}

	return result, nil
}
