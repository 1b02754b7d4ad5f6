package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrSessionExpired  = errors.New("checkout session expired")
)

const (
	sessionKeyPrefix  = "checkout:session:"
	consumedKeyPrefix = "checkout:consumed:"
	seatHoldKeyPrefix = "checkout:seat_hold:"
	promoUseKeyPrefix = "checkout:promo_uses:"

	// Consumed markers outlive the session so a late duplicate
	// confirmation is still rejected.
	consumedMarkerTTL = 24 * time.Hour
)

// Store persists checkout sessions in Redis. Sessions expire server-side
// via key TTL; the countdown shown to the buyer is advisory only.
type Store struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewStore(client *redis.Client, log *logger.Logger) *Store {
	return &Store{Client: client, Logger: log}
}

func sessionKey(sessionID string) string { return sessionKeyPrefix + sessionID }

// Save writes the session with a TTL matching its expiry time. Sessions
// that are already past expiry are rejected.
func (s *Store) Save(ctx context.Context, session models.CheckoutSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.SessionID, err)
	}

	if err := s.Client.Set(ctx, sessionKey(session.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", session.SessionID, err)
	}

	s.Logger.LogCheckout("SAVE", session.SessionID, fmt.Sprintf("session stored with %s TTL", ttl.Round(time.Second)))
	return nil
}

// Get loads a session. A missing key means the session never existed or
// its TTL elapsed; both surface as ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	data, err := s.Client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var session models.CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	return &session, nil
}

// Delete removes a session and releases any seats it holds.
func (s *Store) Delete(ctx context.Context, session models.CheckoutSession) error {
	if err := s.ReleaseSeats(ctx, seatIDs(session.Items), session.SessionID); err != nil {
		s.Logger.Warn("CHECKOUT", fmt.Sprintf("failed to release seats for session %s: %v", session.SessionID, err))
	}
	if err := s.Client.Del(ctx, sessionKey(session.SessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", session.SessionID, err)
	}
	return nil
}

// Consume marks a session as used exactly once. The first caller gets
// true; every later caller gets false. Completion and expiry both go
// through this gate so a session can never produce two orders.
func (s *Store) Consume(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.Client.SetNX(ctx, consumedKeyPrefix+sessionID, time.Now().UTC().Format(time.RFC3339), consumedMarkerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume session %s: %w", sessionID, err)
	}
	return ok, nil
}

// HoldSeat reserves a single seat for a session. Returns false when
// another session already holds it.
func (s *Store) HoldSeat(ctx context.Context, seatID, sessionID string, ttl time.Duration) (bool, error) {
	return s.Client.SetNX(ctx, seatHoldKeyPrefix+seatID, sessionID, ttl).Result()
}

// ReleaseSeat frees a seat, but only if this session holds it.
func (s *Store) ReleaseSeat(ctx context.Context, seatID, sessionID string) error {
	key := seatHoldKeyPrefix + seatID
	val, err := s.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == sessionID {
		return s.Client.Del(ctx, key).Err()
	}
	return nil
}

// HoldSeats reserves all seats or none. On any failure the seats
// already held are released before returning.
func (s *Store) HoldSeats(ctx context.Context, ids []string, sessionID string, ttl time.Duration) (bool, error) {
	held := []string{}
	for _, seatID := range ids {
		ok, err := s.HoldSeat(ctx, seatID, sessionID, ttl)
		if err != nil || !ok {
			for _, h := range held {
				_ = s.ReleaseSeat(ctx, h, sessionID)
			}
			return false, err
		}
		held = append(held, seatID)
	}
	return true, nil
}

func (s *Store) ReleaseSeats(ctx context.Context, ids []string, sessionID string) error {
	var firstErr error
	for _, seatID := range ids {
		if err := s.ReleaseSeat(ctx, seatID, sessionID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func promoUseKey(promoCodeID, userID string) string {
	return promoUseKeyPrefix + promoCodeID + ":" + userID
}

// IncrementPromoUse records one redemption of a promo code by a user
// and returns the new per-user count.
func (s *Store) IncrementPromoUse(ctx context.Context, promoCodeID, userID string) (int64, error) {
	count, err := s.Client.Incr(ctx, promoUseKey(promoCodeID, userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment promo use %s for user %s: %w", promoCodeID, userID, err)
	}
	return count, nil
}

// PromoUseCount returns how many times a user has redeemed a promo
// code. A missing key counts as zero.
func (s *Store) PromoUseCount(ctx context.Context, promoCodeID, userID string) (int, error) {
	count, err := s.Client.Get(ctx, promoUseKey(promoCodeID, userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read promo use %s for user %s: %w", promoCodeID, userID, err)
	}
	return count, nil
}

func seatIDs(items []models.CartItem) []string {
	ids := []string{}
	for _, item := range items {
		if item.SeatID != "" {
			ids = append(ids, item.SeatID)
		}
	}
	return ids
}
