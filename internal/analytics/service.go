package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"parlomo-ticketing/internal/models"
)

// Service aggregates sales figures from completed orders and issued
// tickets. All money figures are in minor units.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// EventAnalytics is the sales summary for one event.
type EventAnalytics struct {
	EventID          string      `json:"event_id"`
	OrdersCompleted  int         `json:"orders_completed"`
	TotalRevenue     int64       `json:"total_revenue"`
	TotalDiscount    int64       `json:"total_discount"`
	TotalFees        int64       `json:"total_fees"`
	TicketsSold      int         `json:"tickets_sold"`
	TicketsCheckedIn int         `json:"tickets_checked_in"`
	SalesByType      []TypeSales `json:"sales_by_type"`
	DailySales       []DailySale `json:"daily_sales"`
}

// TypeSales counts issued tickets per ticket type.
type TypeSales struct {
	TicketTypeID string `json:"ticket_type_id"`
	Name         string `json:"name"`
	TicketsSold  int    `json:"tickets_sold"`
	Revenue      int64  `json:"revenue"`
}

// DailySale is one day's completed orders and revenue.
type DailySale struct {
	Day     string `json:"day"` // YYYY-MM-DD
	Orders  int    `json:"orders"`
	Revenue int64  `json:"revenue"`
}

// PromoUsage reports how often a promo code was redeemed on completed
// orders and the discount it gave away.
type PromoUsage struct {
	PromoCodeID   string `json:"promo_code_id"`
	Orders        int    `json:"orders"`
	TotalDiscount int64  `json:"total_discount"`
}

func (s *Service) EventAnalytics(ctx context.Context, eventID string) (*EventAnalytics, error) {
	result := &EventAnalytics{EventID: eventID}

	var orderRows []models.Order
	err := s.db.NewSelect().
		Model(&orderRows).
		Where("event_id = ?", eventID).
		Where("status = ?", models.OrderCompleted).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders for event %s: %w", eventID, err)
	}

	daily := make(map[string]*DailySale)
	for _, o := range orderRows {
		result.OrdersCompleted++
		result.TotalRevenue += o.Total
		result.TotalDiscount += o.Discount
		result.TotalFees += o.Fees

		day := o.CompletedAt.UTC().Format("2006-01-02")
		if _, ok := daily[day]; !ok {
			daily[day] = &DailySale{Day: day}
		}
		daily[day].Orders++
		daily[day].Revenue += o.Total
	}
	for _, d := range daily {
		result.DailySales = append(result.DailySales, *d)
	}
	sort.Slice(result.DailySales, func(i, j int) bool {
		return result.DailySales[i].Day < result.DailySales[j].Day
	})

	byType, err := s.salesByType(ctx, eventID)
	if err != nil {
		return nil, err
	}
	result.SalesByType = byType
	for _, ts := range byType {
		result.TicketsSold += ts.TicketsSold
	}

	checkedIn, err := s.db.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.TicketUsed).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count check-ins for event %s: %w", eventID, err)
	}
	result.TicketsCheckedIn = checkedIn

	return result, nil
}

func (s *Service) salesByType(ctx context.Context, eventID string) ([]TypeSales, error) {
	var rows []struct {
		TicketTypeID string `bun:"ticket_type_id"`
		Name         string `bun:"name"`
		TicketsSold  int    `bun:"tickets_sold"`
		Price        int64  `bun:"price"`
	}

	err := s.db.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("ticket.ticket_type_id").
		ColumnExpr("tt.name AS name").
		ColumnExpr("COUNT(*) AS tickets_sold").
		ColumnExpr("tt.price AS price").
		Join("JOIN ticket_types AS tt ON tt.ticket_type_id = ticket.ticket_type_id").
		Where("ticket.event_id = ?", eventID).
		Where("ticket.status != ?", models.TicketRefunded).
		GroupExpr("ticket.ticket_type_id, tt.name, tt.price").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sales by type for event %s: %w", eventID, err)
	}

	sales := make([]TypeSales, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, TypeSales{
			TicketTypeID: row.TicketTypeID,
			Name:         row.Name,
			TicketsSold:  row.TicketsSold,
			Revenue:      int64(row.TicketsSold) * row.Price,
		})
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].TicketTypeID < sales[j].TicketTypeID })
	return sales, nil
}

// PromoUsageForEvent lists redemption counts per promo code on an
// event's completed orders.
func (s *Service) PromoUsageForEvent(ctx context.Context, eventID string) ([]PromoUsage, error) {
	var rows []struct {
		PromoCodeID   string `bun:"promo_code_id"`
		Orders        int    `bun:"orders"`
		TotalDiscount int64  `bun:"total_discount"`
	}

	err := s.db.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("promo_code_id").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("SUM(discount) AS total_discount").
		Where("event_id = ?", eventID).
		Where("status = ?", models.OrderCompleted).
		Where("promo_code_id IS NOT NULL AND promo_code_id != ''").
		GroupExpr("promo_code_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate promo usage for event %s: %w", eventID, err)
	}

	usage := make([]PromoUsage, 0, len(rows))
	for _, row := range rows {
		usage = append(usage, PromoUsage{
			PromoCodeID:   row.PromoCodeID,
			Orders:        row.Orders,
			TotalDiscount: row.TotalDiscount,
		})
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].PromoCodeID < usage[j].PromoCodeID })
	return usage, nil
}

// SalesWindow narrows daily sales to the given span, inclusive.
func (s *Service) SalesWindow(ctx context.Context, eventID string, from, to time.Time) ([]DailySale, error) {
	full, err := s.EventAnalytics(ctx, eventID)
	if err != nil {
		return nil, err
	}

	fromDay := from.UTC().Format("2006-01-02")
	toDay := to.UTC().Format("2006-01-02")
	var out []DailySale
	for _, d := range full.DailySales {
		if d.Day >= fromDay && d.Day <= toDay {
			out = append(out, d)
		}
	}
	return out, nil
}
