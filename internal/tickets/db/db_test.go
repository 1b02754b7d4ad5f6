package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"parlomo-ticketing/internal/models"
	"parlomo-ticketing/internal/tickets/db"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	_, err = bunDB.NewCreateTable().Model((*models.Ticket)(nil)).Exec(ctx)
	if err != nil {
		t.Fatalf("Failed to create tickets table: %v", err)
	}
	_, err = bunDB.NewCreateTable().Model((*models.TicketType)(nil)).Exec(ctx)
	if err != nil {
		t.Fatalf("Failed to create ticket_types table: %v", err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return db.NewDB(bunDB)
}

func testTicket(orderID string) models.Ticket {
	return models.Ticket{
		Code:          "TKT-" + uuid.NewString()[:8],
		UUID:          uuid.NewString(),
		OrderID:       orderID,
		OrderItemID:   uuid.NewString(),
		TicketTypeID:  "tt-ga",
		EventID:       "event-1",
		SeatID:        "seat-A1",
		AttendeeName:  "Ada Lovelace",
		AttendeeEmail: "ada@example.com",
		Status:        models.TicketValid,
		GeneratedAt:   time.Now(),
	}
}

func TestCreateAndGetTicket(t *testing.T) {
	ticketDB := setupTestDB(t)
	ctx := context.Background()

	ticket := testTicket("order-1")
	require.NoError(t, ticketDB.CreateTicket(ctx, &ticket))
	assert.NotZero(t, ticket.ID, "insert should scan the generated ID back")

	got, err := ticketDB.GetTicketByCode(ctx, ticket.Code)
	require.NoError(t, err)
	assert.Equal(t, ticket.Code, got.Code)
	assert.Equal(t, "Ada Lovelace", got.AttendeeName)
	assert.Equal(t, models.TicketValid, got.Status)
}

func TestGetTicketByUUID(t *testing.T) {
	ticketDB := setupTestDB(t)
	ctx := context.Background()

	ticket := testTicket("order-1")
	require.NoError(t, ticketDB.CreateTicket(ctx, &ticket))

	got, err := ticketDB.GetTicketByUUID(ctx, ticket.UUID)
	require.NoError(t, err)
	assert.Equal(t, ticket.Code, got.Code)

	_, err = ticketDB.GetTicketByUUID(ctx, "no-such-uuid")
	assert.Error(t, err)
}

func TestUpdateTicketMutableFields(t *testing.T) {
	ticketDB := setupTestDB(t)
	ctx := context.Background()

	ticket := testTicket("order-1")
	require.NoError(t, ticketDB.CreateTicket(ctx, &ticket))

	now := time.Now()
	ticket.Status = models.TicketUsed
	ticket.CheckedInAt = now
	ticket.AttendeeName = "Grace Hopper"
	require.NoError(t, ticketDB.UpdateTicket(ctx, ticket))

	got, err := ticketDB.GetTicketByCode(ctx, ticket.Code)
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, got.Status)
	assert.Equal(t, "Grace Hopper", got.AttendeeName)
	assert.False(t, got.CheckedInAt.IsZero())
}

func TestGetTicketsByOrderReturnsInIssueOrder(t *testing.T) {
	ticketDB := setupTestDB(t)
	ctx := context.Background()

	first := testTicket("order-1")
	second := testTicket("order-1")
	other := testTicket("order-2")
	for _, tk := range []*models.Ticket{&first, &second, &other} {
		require.NoError(t, ticketDB.CreateTicket(ctx, tk))
	}

	list, err := ticketDB.GetTicketsByOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Code, list[0].Code)
	assert.Equal(t, second.Code, list[1].Code)
}

func TestGetTicketType(t *testing.T) {
	ticketDB := setupTestDB(t)
	ctx := context.Background()

	tt := models.TicketType{
		ID:              "tt-vip",
		EventID:         "event-1",
		Name:            "VIP",
		Price:           5000,
		TransferAllowed: true,
		Refundable:      true,
	}
	_, err := ticketDB.Bun.NewInsert().Model(&tt).Exec(ctx)
	require.NoError(t, err)

	got, err := ticketDB.GetTicketType(ctx, "tt-vip")
	require.NoError(t, err)
	assert.Equal(t, "VIP", got.Name)
	assert.Equal(t, int64(5000), got.Price)

	_, err = ticketDB.GetTicketType(ctx, "tt-missing")
	assert.Error(t, err)
}
