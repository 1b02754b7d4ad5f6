package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/google/uuid"

	"parlomo-ticketing/internal/models"
)

// Alphabet deliberately excludes I, O, 0 and 1 so printed codes are
// never visually ambiguous.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codePrefix = "TKT-"
	codeLength = 9
)

// ErrCodeSpaceExhausted is returned when a batch request cannot collect
// enough distinct codes within the attempt limit.
var ErrCodeSpaceExhausted = errors.New("ticket code space exhausted")

// Validation accepts the full [A-Z0-9] range, wider than the generator
// alphabet. Codes issued by other systems may contain the ambiguous
// characters the generator avoids, and they must still scan.
var codePattern = regexp.MustCompile(`^TKT-[A-Z0-9]{9}$`)

// GenerateCode produces one ticket code: TKT- followed by nine
// characters drawn from the unambiguous alphabet.
func GenerateCode() string {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is
			// broken; fall back to a time-seeded index.
			buf[i] = codeAlphabet[int(time.Now().UnixNano())%len(codeAlphabet)]
			continue
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return codePrefix + string(buf)
}

// GenerateCodes produces count distinct codes. Duplicates are resampled
// via a uniqueness set; the attempt cap guards against pathological
// batch sizes.
func GenerateCodes(count int) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}

	maxAttempts := count*10 + 100
	seen := make(map[string]bool, count)
	codes := make([]string, 0, count)

	for attempts := 0; len(codes) < count; attempts++ {
		if attempts >= maxAttempts {
			return nil, fmt.Errorf("%w: generated %d of %d codes in %d attempts",
				ErrCodeSpaceExhausted, len(codes), count, attempts)
		}
		code := GenerateCode()
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}

	return codes, nil
}

// IsValidCode reports whether a string has the ticket code shape.
func IsValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// TicketParams carries the order context a new ticket is issued under.
type TicketParams struct {
	OrderID       string
	OrderItemID   string
	TicketTypeID  string
	EventID       string
	SeatID        string
	AttendeeName  string
	AttendeeEmail string
}

// NewTicket builds a fresh ticket instance: new code, new UUID, status
// valid, generation time stamped.
func NewTicket(params TicketParams) models.Ticket {
	return models.Ticket{
		Code:            GenerateCode(),
		UUID:            uuid.NewString(),
		OrderID:         params.OrderID,
		OrderItemID:     params.OrderItemID,
		TicketTypeID:    params.TicketTypeID,
		EventID:         params.EventID,
		SeatID:          params.SeatID,
		AttendeeName:    params.AttendeeName,
		AttendeeEmail:   params.AttendeeEmail,
		Status:          models.TicketValid,
		TransferHistory: []models.TransferRecord{},
		GeneratedAt:     time.Now(),
	}
}

// BarcodeNumber builds a 13-digit EAN-13-style number for alternate
// scanning: fixed prefix 200, the ticket ID zero-padded to nine digits,
// and the standard EAN-13 check digit.
func BarcodeNumber(ticketID int64) string {
	base := fmt.Sprintf("200%09d", ticketID)
	return base + string(rune('0'+ean13CheckDigit(base)))
}

// ean13CheckDigit computes (10 - weighted sum mod 10) mod 10 over the
// twelve payload digits: even positions (0-indexed) weigh 1, odd weigh 3.
func ean13CheckDigit(digits string) int {
	sum := 0
	for i, r := range digits {
		d := int(r - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += d * 3
		}
	}
	return (10 - sum%10) % 10
}

// Eligibility is the outcome of a transfer/refund guard: a pure
// predicate with a user-facing reason on failure, never an error.
type Eligibility struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// CanTransfer checks whether a ticket may be transferred to another
// attendee.
func CanTransfer(ticket models.Ticket, ticketType models.TicketType) Eligibility {
	if !ticketType.TransferAllowed {
		return Eligibility{OK: false, Reason: "This ticket type does not allow transfers"}
	}
	if ticket.Status != models.TicketValid {
		return Eligibility{OK: false, Reason: fmt.Sprintf("Only valid tickets can be transferred (status: %s)", ticket.Status)}
	}
	return Eligibility{OK: true}
}

// CanRefund checks whether a ticket may be refunded. Past events are
// never refundable.
func CanRefund(ticket models.Ticket, ticketType models.TicketType, eventDate, now time.Time) Eligibility {
	if !ticketType.Refundable {
		return Eligibility{OK: false, Reason: "This ticket type is not refundable"}
	}
	if ticket.Status != models.TicketValid {
		return Eligibility{OK: false, Reason: fmt.Sprintf("Only valid tickets can be refunded (status: %s)", ticket.Status)}
	}
	if eventDate.Before(now) {
		return Eligibility{OK: false, Reason: "Tickets for past events cannot be refunded"}
	}
	return Eligibility{OK: true}
}
