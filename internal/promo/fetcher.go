package promo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
)

// cacheTTL bounds how stale a cached promo can get if the invalidation
// event is missed.
const cacheTTL = 5 * time.Minute

type cachedPromo struct {
	promo     *models.PromoCode
	fetchedAt time.Time
}

// TokenProvider supplies a bearer token for calls to the promo
// service's internal API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Fetcher looks up promo codes from the promo service, with a small
// in-process cache invalidated by promo update events.
type Fetcher struct {
	client  *http.Client
	baseURL string
	tokens  TokenProvider
	logger  *logger.Logger

	mu    sync.RWMutex
	cache map[string]cachedPromo
}

func NewFetcher(client *http.Client, baseURL string, log *logger.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log,
		cache:   make(map[string]cachedPromo),
	}
}

// WithTokenProvider makes the fetcher authenticate its requests.
func (f *Fetcher) WithTokenProvider(tp TokenProvider) *Fetcher {
	f.tokens = tp
	return f
}

// FetchByCode fetches a promo code scoped to an event. A missing code
// returns (nil, nil); the validator turns that into NOT_FOUND.
func (f *Fetcher) FetchByCode(ctx context.Context, code, eventID string) (*models.PromoCode, error) {
	code = SanitizeCode(code)
	if code == "" {
		return nil, nil
	}

	if promo, ok := f.cached(code); ok {
		return promo, nil
	}

	endpoint := fmt.Sprintf("%s/internal/v1/promo-codes/%s?event_id=%s", f.baseURL, url.PathEscape(code), url.QueryEscape(eventID))
	f.logger.Debug("PROMO", fmt.Sprintf("Fetching promo code: %s", endpoint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create promo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if f.tokens != nil {
		token, err := f.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("PROMO", fmt.Sprintf("Promo service error: %v", err))
		return nil, fmt.Errorf("promo service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		f.logger.Warn("PROMO", fmt.Sprintf("Promo code not found: %s", code))
		f.store(code, nil)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		f.logger.Error("PROMO", fmt.Sprintf("Promo service returned status: %d", resp.StatusCode))
		return nil, fmt.Errorf("promo service returned status: %d", resp.StatusCode)
	}

	var promo models.PromoCode
	if err := json.NewDecoder(resp.Body).Decode(&promo); err != nil {
		return nil, fmt.Errorf("failed to decode promo response: %w", err)
	}

	f.store(code, &promo)
	return &promo, nil
}

// Invalidate drops a code from the cache. Wired to promo update events.
func (f *Fetcher) Invalidate(code string) {
	code = SanitizeCode(code)
	f.mu.Lock()
	delete(f.cache, code)
	f.mu.Unlock()
}

func (f *Fetcher) cached(code string) (*models.PromoCode, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[code]
	if !ok || time.Since(entry.fetchedAt) > cacheTTL {
		return nil, false
	}
	return entry.promo, true
}

func (f *Fetcher) store(code string, promo *models.PromoCode) {
	f.mu.Lock()
	f.cache[code] = cachedPromo{promo: promo, fetchedAt: time.Now()}
	f.mu.Unlock()
}
