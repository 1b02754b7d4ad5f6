package qr

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skip2/go-qrcode"
)

const (
	issuer  = "parlomo-ticketing"
	subject = "ticket-qr"

	// QR payloads stay scannable for a year after issuance.
	validity = 365 * 24 * time.Hour
)

// ErrMissingSigningKey is returned when a Generator is constructed
// without a key. There is no default key to fall back to.
var ErrMissingSigningKey = errors.New("qr signing key must not be empty")

// Generator signs and verifies ticket QR payloads with a symmetric key.
type Generator struct {
	key []byte
}

func NewGenerator(signingKey string) (*Generator, error) {
	if signingKey == "" {
		return nil, ErrMissingSigningKey
	}
	return &Generator{key: []byte(signingKey)}, nil
}

// Payload binds a QR token to the ticket it was issued for. IssuedAt
// is stamped at generation time when left zero.
type Payload struct {
	TicketID     string    `json:"ticket_id"`
	TicketCode   string    `json:"ticket_code"`
	EventID      string    `json:"event_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	OrderID      string    `json:"order_id"`
	IssuedAt     time.Time `json:"issued_at"`
}

type qrClaims struct {
	TicketID     string `json:"ticket_id"`
	TicketCode   string `json:"ticket_code"`
	EventID      string `json:"event_id"`
	TicketTypeID string `json:"ticket_type_id"`
	OrderID      string `json:"order_id"`
	jwt.RegisteredClaims
}

// Generate signs a payload into a compact token. A new payload is a new
// signature; tokens are never mutated.
func (g *Generator) Generate(p Payload) (string, error) {
	issuedAt := p.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	claims := qrClaims{
		TicketID:     p.TicketID,
		TicketCode:   p.TicketCode,
		EventID:      p.EventID,
		TicketTypeID: p.TicketTypeID,
		OrderID:      p.OrderID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(validity)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.key)
}

func (g *Generator) keyFunc(_ *jwt.Token) (interface{}, error) {
	return g.key, nil
}

func (g *Generator) parse(tokenString string) (*qrClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &qrClaims{}, g.keyFunc,
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(subject),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*qrClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}

// Verify checks signature, issuer, subject and expiry. It returns the
// decoded payload, or nil on any failure: verification errors never
// cross this boundary as Go errors.
func (g *Generator) Verify(tokenString string) *Payload {
	claims, err := g.parse(tokenString)
	if err != nil {
		return nil
	}
	return &Payload{
		TicketID:     claims.TicketID,
		TicketCode:   claims.TicketCode,
		EventID:      claims.EventID,
		TicketTypeID: claims.TicketTypeID,
		OrderID:      claims.OrderID,
		IssuedAt:     claims.IssuedAt.Time,
	}
}

// ExtractCode decodes the ticket code without verifying the signature.
// It exists only for fast pre-lookup before a full Verify; the result
// must never be trusted for authorization.
func ExtractCode(tokenString string) string {
	var claims qrClaims
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims)
	if err != nil {
		return ""
	}
	return claims.TicketCode
}

// ExpiryStatus distinguishes a stale token from a forged one.
type ExpiryStatus int

const (
	ExpiryValid ExpiryStatus = iota
	ExpiryExpired
	ExpiryInvalid
)

// CheckExpiry reports whether a token is valid, expired, or fails
// verification for any other reason. Expired and invalid are distinct:
// an unverifiable token is not "not expired".
func (g *Generator) CheckExpiry(tokenString string) ExpiryStatus {
	_, err := g.parse(tokenString)
	switch {
	case err == nil:
		return ExpiryValid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ExpiryExpired
	default:
		return ExpiryInvalid
	}
}

// IsExpired collapses CheckExpiry to a boolean for legacy callers:
// only an expiry-specific failure counts as expired.
func (g *Generator) IsExpired(tokenString string) bool {
	return g.CheckExpiry(tokenString) == ExpiryExpired
}

// Image renders a signed token as a PNG QR image.
func (g *Generator) Image(tokenString string, size int) ([]byte, error) {
	return qrcode.Encode(tokenString, qrcode.Medium, size)
}
