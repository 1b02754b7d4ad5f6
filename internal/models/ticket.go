package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketValid       TicketStatus = "valid"
	TicketUsed        TicketStatus = "used"
	TicketCancelled   TicketStatus = "cancelled"
	TicketTransferred TicketStatus = "transferred"
	TicketRefunded    TicketStatus = "refunded"
)

// TicketType describes a purchasable class of ticket for an event.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID              string `bun:"ticket_type_id,pk" json:"id"`
	EventID         string `bun:"event_id" json:"event_id"`
	Name            string `bun:"name" json:"name"`
	Price           int64  `bun:"price" json:"price"`
	TransferAllowed bool   `bun:"transfer_allowed" json:"transfer_allowed"`
	Refundable      bool   `bun:"refundable" json:"refundable"`
}

// TransferRecord is one hop in a ticket's transfer history.
type TransferRecord struct {
	FromEmail     string    `json:"from_email"`
	ToEmail       string    `json:"to_email"`
	TransferredAt time.Time `json:"transferred_at"`
}

// Ticket is an issued ticket instance. Tickets are never deleted, only
// status-transitioned; the code is immutable once issued.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID              int64            `bun:"id,pk,autoincrement" json:"-"`
	Code            string           `bun:"code,unique" json:"code"`
	UUID            string           `bun:"uuid" json:"uuid"`
	OrderID         string           `bun:"order_id" json:"order_id"`
	OrderItemID     string           `bun:"order_item_id" json:"order_item_id"`
	TicketTypeID    string           `bun:"ticket_type_id" json:"ticket_type_id"`
	EventID         string           `bun:"event_id" json:"event_id"`
	SeatID          string           `bun:"seat_id,nullzero" json:"seat_id,omitempty"`
	AttendeeName    string           `bun:"attendee_name" json:"attendee_name"`
	AttendeeEmail   string           `bun:"attendee_email" json:"attendee_email"`
	Status          TicketStatus     `bun:"status" json:"status"`
	TransferHistory []TransferRecord `bun:"transfer_history,type:jsonb" json:"transfer_history"`
	QRToken         string           `bun:"qr_token" json:"-"`
	QRCode          []byte           `bun:"qr_code" json:"-"`
	BarcodeNumber   string           `bun:"barcode_number" json:"barcode_number"`
	GeneratedAt     time.Time        `bun:"generated_at" json:"generated_at"`
	CheckedInAt     time.Time        `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`
}
